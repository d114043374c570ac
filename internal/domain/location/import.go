package location

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ImportFile is the YAML seed format:
//
//	provinces:
//	  - id: "01"
//	    name: Hanoi
//	    districts:
//	      - id: "006"
//	        name: Dong Da
//	        wards:
//	          - id: "00199"
//	            name: Lang Ha
type ImportFile struct {
	Provinces []ImportProvince `yaml:"provinces"`
}

type ImportProvince struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Districts []ImportDistrict `yaml:"districts"`
}

type ImportDistrict struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Wards []ImportWard `yaml:"wards"`
}

type ImportWard struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type ImportStats struct {
	Provinces int `json:"provinces"`
	Districts int `json:"districts"`
	Wards     int `json:"wards"`
}

// TxRunner runs fn inside one transaction, e.g. db.WithTx bound to a pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Importer struct {
	svc *Service
	tx  TxRunner
}

func NewImporter(svc *Service, tx TxRunner) *Importer {
	return &Importer{svc: svc, tx: tx}
}

// ParseImport decodes a seed file, rejecting unknown keys.
func ParseImport(r io.Reader) (*ImportFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f ImportFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode location file: %w", err)
	}
	return &f, nil
}

// Import upserts the whole tree. Nothing is written when any entry fails.
func (im *Importer) Import(ctx context.Context, f *ImportFile) (ImportStats, error) {
	var stats ImportStats
	err := im.tx(ctx, func(ctx context.Context) error {
		stats = ImportStats{}
		for _, p := range f.Provinces {
			if err := im.svc.SaveProvince(ctx, &Province{ID: p.ID, Name: p.Name}); err != nil {
				return fmt.Errorf("province %q: %w", p.ID, err)
			}
			stats.Provinces++
			for _, d := range p.Districts {
				if err := im.svc.SaveDistrict(ctx, &District{ID: d.ID, Name: d.Name, ProvinceID: p.ID}); err != nil {
					return fmt.Errorf("district %q: %w", d.ID, err)
				}
				stats.Districts++
				for _, w := range d.Wards {
					if err := im.svc.SaveWard(ctx, &Ward{ID: w.ID, Name: w.Name, DistrictID: d.ID}); err != nil {
						return fmt.Errorf("ward %q: %w", w.ID, err)
					}
					stats.Wards++
				}
			}
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
