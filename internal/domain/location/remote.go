package location

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteSource is a Source backed by another deployment's lookup API. The
// peer may return the parent key as "parentId" or as the level-specific
// province_id/district_id field.
type RemoteSource struct {
	client *resty.Client
}

type remoteRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ParentID   string `json:"parentId"`
	ProvinceID string `json:"province_id"`
	DistrictID string `json:"district_id"`
}

func NewRemoteSource(baseURL string, timeout time.Duration) *RemoteSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	return &RemoteSource{client: client}
}

func (s *RemoteSource) ListProvinces(ctx context.Context) ([]Province, error) {
	recs, err := s.get(ctx, "/api/v1/provinces", "")
	if err != nil {
		return nil, err
	}
	items := make([]Province, 0, len(recs))
	for _, r := range recs {
		items = append(items, Province{ID: r.ID, Name: r.Name})
	}
	return items, nil
}

func (s *RemoteSource) ListDistricts(ctx context.Context, provinceID string) ([]District, error) {
	recs, err := s.get(ctx, "/api/v1/provinces/{id}/districts", provinceID)
	if err != nil {
		return nil, err
	}
	items := make([]District, 0, len(recs))
	for _, r := range recs {
		items = append(items, District{ID: r.ID, Name: r.Name, ProvinceID: firstNonEmpty(r.ParentID, r.ProvinceID, provinceID)})
	}
	return items, nil
}

func (s *RemoteSource) ListWards(ctx context.Context, districtID string) ([]Ward, error) {
	recs, err := s.get(ctx, "/api/v1/districts/{id}/wards", districtID)
	if err != nil {
		return nil, err
	}
	items := make([]Ward, 0, len(recs))
	for _, r := range recs {
		items = append(items, Ward{ID: r.ID, Name: r.Name, DistrictID: firstNonEmpty(r.ParentID, r.DistrictID, districtID)})
	}
	return items, nil
}

func (s *RemoteSource) get(ctx context.Context, path, id string) ([]remoteRecord, error) {
	var out []remoteRecord
	req := s.client.R().SetContext(ctx).SetResult(&out)
	if id != "" {
		req.SetPathParam("id", id)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("location api %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("location api %s: status %d", path, resp.StatusCode())
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
