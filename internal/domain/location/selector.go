package location

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

// Source lists the options of each level. Calls may be slow or fail and are
// never cached by the selector.
type Source interface {
	ListProvinces(ctx context.Context) ([]Province, error)
	ListDistricts(ctx context.Context, provinceID string) ([]District, error)
	ListWards(ctx context.Context, districtID string) ([]Ward, error)
}

// FieldBinder reads and writes named fields of the enclosing form.
type FieldBinder interface {
	Field(name string) string
	SetField(name, value string)
}

type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseProvinceSelected
	PhaseDistrictSelected
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseProvinceSelected:
		return "province_selected"
	case PhaseDistrictSelected:
		return "district_selected"
	case PhaseComplete:
		return "complete"
	}
	return "empty"
}

const levelCount = 3

// Selector drives a province -> district -> ward choice bound to a form.
// It is safe for concurrent use. The lock is never held across a Source
// call; every fetch takes a sequence number for its level and a response
// that is no longer the newest for that level is dropped.
type Selector struct {
	src    Source
	form   FieldBinder
	logger zerolog.Logger

	mounted sync.Once

	mu        sync.Mutex
	provinces []Province
	districts []District
	wards     []Ward
	province  *Province
	district  *District
	ward      *Ward
	seq       [levelCount]uint64
	errs      [levelCount]error
	// restoring is set while a stored composite has not been fully
	// restored and no user selection has replaced it.
	restoring bool
}

func NewSelector(src Source, form FieldBinder, logger zerolog.Logger) *Selector {
	return &Selector{
		src:    src,
		form:   form,
		logger: logger.With().Str("component", "location_selector").Logger(),
	}
}

// Mount loads the province list and, when the form already holds a
// composite value, restores the selection it names. Only the first call on
// a Selector does anything. Restoration writes nothing back to the form and
// stops quietly at the first level whose name is not found. When a lookup
// fails part way the restore stays pending and Retry resumes it.
func (s *Selector) Mount(ctx context.Context) error {
	var err error
	s.mounted.Do(func() { err = s.restore(ctx) })
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

func (s *Selector) restore(ctx context.Context) error {
	raw := s.form.Field(FieldAddress)

	s.mu.Lock()
	s.restoring = raw != ""
	seq := s.issue(LevelProvince)
	s.mu.Unlock()
	if err := s.fetchProvinces(ctx, seq); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	s.mu.Lock()
	names := make([]string, len(s.provinces))
	for i, p := range s.provinces {
		names[i] = p.Name
	}
	i, rest, ok := matchPrefix(names, raw)
	if !ok || !s.restoring {
		s.restoring = false
		s.mu.Unlock()
		return nil
	}
	p := s.provinces[i]
	s.province = &p
	seq = s.issue(LevelDistrict)
	s.mu.Unlock()
	if err := s.fetchDistricts(ctx, seq, p.ID); err != nil {
		return err
	}

	s.mu.Lock()
	names = make([]string, len(s.districts))
	for i, d := range s.districts {
		names[i] = d.Name
	}
	j, rest, ok := matchPrefix(names, rest)
	if !ok || !s.restoring {
		s.restoring = false
		s.mu.Unlock()
		return nil
	}
	d := s.districts[j]
	s.district = &d
	seq = s.issue(LevelWard)
	s.mu.Unlock()
	if err := s.fetchWards(ctx, seq, d.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.restoring {
		return nil
	}
	s.restoring = false
	for _, w := range s.wards {
		if w.Name == rest {
			s.ward = &w
			break
		}
	}
	return nil
}

// SelectProvince picks a province from the loaded list, discards any
// district and ward selection, clears the form value and fetches the
// province's districts. Picking the current province again is a no-op.
func (s *Selector) SelectProvince(ctx context.Context, id string) error {
	s.mu.Lock()
	var picked *Province
	for _, p := range s.provinces {
		if p.ID == id {
			picked = &p
			break
		}
	}
	if picked == nil {
		s.mu.Unlock()
		return ErrUnknownOption
	}
	if s.province != nil && s.province.ID == id {
		s.mu.Unlock()
		return nil
	}
	s.province = picked
	s.restoring = false
	s.district, s.ward = nil, nil
	s.districts, s.wards = nil, nil
	s.invalidate(LevelWard)
	s.clearForm()
	seq := s.issue(LevelDistrict)
	s.mu.Unlock()

	return s.fetchDistricts(ctx, seq, id)
}

// SelectDistrict picks a district of the selected province, discards the
// ward selection, clears the form value and fetches the district's wards.
func (s *Selector) SelectDistrict(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.province == nil {
		s.mu.Unlock()
		return ErrNoParent
	}
	var picked *District
	for _, d := range s.districts {
		if d.ID == id && d.ProvinceID == s.province.ID {
			picked = &d
			break
		}
	}
	if picked == nil {
		s.mu.Unlock()
		return ErrUnknownOption
	}
	if s.district != nil && s.district.ID == id {
		s.mu.Unlock()
		return nil
	}
	s.district = picked
	s.restoring = false
	s.ward = nil
	s.wards = nil
	s.clearForm()
	seq := s.issue(LevelWard)
	s.mu.Unlock()

	return s.fetchWards(ctx, seq, id)
}

// SelectWard completes the selection and writes the composite and display
// values to the form.
func (s *Selector) SelectWard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.district == nil {
		return ErrNoParent
	}
	for _, w := range s.wards {
		if w.ID == id && w.DistrictID == s.district.ID {
			s.ward = &w
			s.restoring = false
			c := Composite{Province: s.province.Name, District: s.district.Name, Ward: w.Name}
			s.form.SetField(FieldAddress, c.String())
			s.form.SetField(FieldAddressDisplay, c.Display())
			return nil
		}
	}
	return ErrUnknownOption
}

// Retry resumes an interrupted restore, or else re-issues the fetch of the
// highest level whose last fetch failed. It returns nil when nothing has
// failed.
func (s *Selector) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.restoring {
		s.mu.Unlock()
		if err := s.restore(ctx); !errors.Is(err, ErrSuperseded) {
			return err
		}
		return nil
	}
	switch {
	case s.errs[LevelProvince] != nil:
		seq := s.issue(LevelProvince)
		s.mu.Unlock()
		return s.fetchProvinces(ctx, seq)
	case s.errs[LevelDistrict] != nil && s.province != nil:
		id := s.province.ID
		seq := s.issue(LevelDistrict)
		s.mu.Unlock()
		return s.fetchDistricts(ctx, seq, id)
	case s.errs[LevelWard] != nil && s.district != nil:
		id := s.district.ID
		seq := s.issue(LevelWard)
		s.mu.Unlock()
		return s.fetchWards(ctx, seq, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *Selector) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase()
}

func (s *Selector) phase() Phase {
	switch {
	case s.ward != nil:
		return PhaseComplete
	case s.district != nil:
		return PhaseDistrictSelected
	case s.province != nil:
		return PhaseProvinceSelected
	}
	return PhaseEmpty
}

// Err returns the error of the last fetch for level, or nil.
func (s *Selector) Err(level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[level]
}

func (s *Selector) Provinces() []Province {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Province{}, s.provinces...)
}

func (s *Selector) Districts() []District {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]District{}, s.districts...)
}

func (s *Selector) Wards() []Ward {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Ward{}, s.wards...)
}

// Value returns the selection once it is complete.
func (s *Selector) Value() (Composite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ward == nil {
		return Composite{}, false
	}
	return Composite{Province: s.province.Name, District: s.district.Name, Ward: s.ward.Name}, true
}

// Snapshot is the serializable state of a Selector.
type Snapshot struct {
	Phase     string            `json:"phase"`
	Provinces []Province        `json:"provinces"`
	Districts []District        `json:"districts"`
	Wards     []Ward            `json:"wards"`
	Province  *Province         `json:"province,omitempty"`
	District  *District         `json:"district,omitempty"`
	Ward      *Ward             `json:"ward,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	// Restoring reports a stored address whose restore was cut short by a
	// failed lookup.
	Restoring bool `json:"restoring,omitempty"`
}

func (s *Selector) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Phase:     s.phase().String(),
		Provinces: append([]Province{}, s.provinces...),
		Districts: append([]District{}, s.districts...),
		Wards:     append([]Ward{}, s.wards...),
		Province:  clone(s.province),
		District:  clone(s.district),
		Ward:      clone(s.ward),
		Restoring: s.restoring,
	}
	for _, l := range levels {
		if s.errs[l] != nil {
			if snap.Errors == nil {
				snap.Errors = make(map[string]string)
			}
			snap.Errors[l.String()] = s.errs[l].Error()
		}
	}
	return snap
}

// RestoreSnapshot replaces the selector's state with snap and marks it
// mounted. Recorded fetch errors survive so Retry still applies.
func (s *Selector) RestoreSnapshot(snap Snapshot) {
	s.mounted.Do(func() {})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.provinces = append([]Province(nil), snap.Provinces...)
	s.districts = append([]District(nil), snap.Districts...)
	s.wards = append([]Ward(nil), snap.Wards...)
	s.province = clone(snap.Province)
	s.district = clone(snap.District)
	s.ward = clone(snap.Ward)
	s.restoring = snap.Restoring
	for _, l := range levels {
		s.errs[l] = nil
		if msg, ok := snap.Errors[l.String()]; ok {
			s.errs[l] = errors.New(msg)
		}
	}
}

// issue and invalidate must be called with s.mu held.

func (s *Selector) issue(level Level) uint64 {
	s.seq[level]++
	return s.seq[level]
}

func (s *Selector) invalidate(level Level) {
	s.seq[level]++
	s.errs[level] = nil
}

func (s *Selector) clearForm() {
	if s.form.Field(FieldAddress) == "" && s.form.Field(FieldAddressDisplay) == "" {
		return
	}
	s.form.SetField(FieldAddress, "")
	s.form.SetField(FieldAddressDisplay, "")
}

func (s *Selector) fetchProvinces(ctx context.Context, seq uint64) error {
	items, err := s.src.ListProvinces(ctx)
	return settle(s, LevelProvince, seq, items, err, func(v []Province) { s.provinces = v })
}

func (s *Selector) fetchDistricts(ctx context.Context, seq uint64, provinceID string) error {
	items, err := s.src.ListDistricts(ctx, provinceID)
	return settle(s, LevelDistrict, seq, items, err, func(v []District) { s.districts = v })
}

func (s *Selector) fetchWards(ctx context.Context, seq uint64, districtID string) error {
	items, err := s.src.ListWards(ctx, districtID)
	return settle(s, LevelWard, seq, items, err, func(v []Ward) { s.wards = v })
}

// settle applies a fetch result unless a newer fetch for the same level was
// issued while it was in flight. A failed fetch leaves the level empty.
func settle[T any](s *Selector, level Level, seq uint64, items []T, err error, apply func([]T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq[level] {
		metrics.LocationFetches.WithLabelValues(level.String(), "superseded").Inc()
		s.logger.Debug().Str("level", level.String()).Uint64("seq", seq).Msg("dropping superseded location list")
		return ErrSuperseded
	}
	if err != nil {
		metrics.LocationFetches.WithLabelValues(level.String(), "error").Inc()
		s.logger.Warn().Err(err).Str("level", level.String()).Msg("location fetch failed")
		s.errs[level] = err
		apply(nil)
		return &FetchError{Level: level, Err: err}
	}
	metrics.LocationFetches.WithLabelValues(level.String(), "ok").Inc()
	s.errs[level] = nil
	apply(items)
	return nil
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
