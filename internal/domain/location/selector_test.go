package location

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

type fakeSource struct {
	mu        sync.Mutex
	provinces []Province
	districts map[string][]District
	wards     map[string][]Ward
	failures  map[Level]error
	calls     []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		provinces: []Province{
			{ID: "01", Name: "Hanoi"},
			{ID: "79", Name: "Ho Chi Minh"},
		},
		districts: map[string][]District{
			"01": {
				{ID: "001", Name: "Ba Dinh", ProvinceID: "01"},
				{ID: "006", Name: "Dong Da", ProvinceID: "01"},
			},
			"79": {
				{ID: "760", Name: "Quan_1", ProvinceID: "79"},
			},
		},
		wards: map[string][]Ward{
			"001": {{ID: "00004", Name: "Kim Ma", DistrictID: "001"}},
			"006": {
				{ID: "00199", Name: "Lang Ha", DistrictID: "006"},
				{ID: "00200", Name: "O Cho Dua", DistrictID: "006"},
			},
			"760": {{ID: "26734", Name: "Ben_Nghe", DistrictID: "760"}},
		},
		failures: map[Level]error{},
	}
}

func (f *fakeSource) record(call string, level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failures[level]
}

func (f *fakeSource) setFailure(level Level, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[level] = err
}

func (f *fakeSource) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) ListProvinces(context.Context) ([]Province, error) {
	if err := f.record("provinces", LevelProvince); err != nil {
		return nil, err
	}
	return append([]Province(nil), f.provinces...), nil
}

func (f *fakeSource) ListDistricts(_ context.Context, provinceID string) ([]District, error) {
	if err := f.record("districts:"+provinceID, LevelDistrict); err != nil {
		return nil, err
	}
	return append([]District(nil), f.districts[provinceID]...), nil
}

func (f *fakeSource) ListWards(_ context.Context, districtID string) ([]Ward, error) {
	if err := f.record("wards:"+districtID, LevelWard); err != nil {
		return nil, err
	}
	return append([]Ward(nil), f.wards[districtID]...), nil
}

// gatedSource blocks the district lookup for one province until released.
type gatedSource struct {
	*fakeSource
	gateFor string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) ListDistricts(ctx context.Context, provinceID string) ([]District, error) {
	if provinceID == g.gateFor {
		close(g.entered)
		<-g.release
	}
	return g.fakeSource.ListDistricts(ctx, provinceID)
}

type mapForm struct {
	values map[string]string
	writes int
}

func newForm(address string) *mapForm {
	f := &mapForm{values: map[string]string{}}
	if address != "" {
		f.values[FieldAddress] = address
	}
	return f
}

func (f *mapForm) Field(name string) string { return f.values[name] }

func (f *mapForm) SetField(name, value string) {
	f.writes++
	f.values[name] = value
}

func newTestSelector(t *testing.T, src Source, form FieldBinder) *Selector {
	t.Helper()
	return NewSelector(src, form, zerolog.Nop())
}

func selectAll(t *testing.T, s *Selector, provinceID, districtID, wardID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.SelectProvince(ctx, provinceID); err != nil {
		t.Fatalf("SelectProvince(%s): %v", provinceID, err)
	}
	if err := s.SelectDistrict(ctx, districtID); err != nil {
		t.Fatalf("SelectDistrict(%s): %v", districtID, err)
	}
	if err := s.SelectWard(wardID); err != nil {
		t.Fatalf("SelectWard(%s): %v", wardID, err)
	}
}

func TestSelector_MountWithoutValue(t *testing.T) {
	src := newFakeSource()
	s := newTestSelector(t, src, newForm(""))

	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if len(s.Provinces()) != 2 {
		t.Errorf("expected 2 provinces, got %d", len(s.Provinces()))
	}
	if s.Phase() != PhaseEmpty {
		t.Errorf("expected empty phase, got %s", s.Phase())
	}
	if diff := cmp.Diff([]string{"provinces"}, src.callLog()); diff != "" {
		t.Errorf("unexpected calls (-want +got):\n%s", diff)
	}
}

func TestSelector_MountOnlyOnce(t *testing.T) {
	src := newFakeSource()
	s := newTestSelector(t, src, newForm("Hanoi_Dong Da_Lang Ha"))

	for i := 0; i < 3; i++ {
		if err := s.Mount(context.Background()); err != nil {
			t.Fatalf("Mount #%d: %v", i, err)
		}
	}
	if got := len(src.callLog()); got != 3 {
		t.Errorf("expected 3 lookups from a single restore, got %d: %v", got, src.callLog())
	}
}

func TestSelector_IndependentInstances(t *testing.T) {
	src := newFakeSource()
	a := newTestSelector(t, src, newForm("Hanoi_Dong Da_Lang Ha"))
	b := newTestSelector(t, src, newForm("Hanoi_Ba Dinh_Kim Ma"))

	if err := a.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Value(); v.Ward != "Kim Ma" {
		t.Errorf("second selector did not restore, got %+v", v)
	}
}

func TestSelector_FullSelectionWritesForm(t *testing.T) {
	form := newForm("")
	s := newTestSelector(t, newFakeSource(), form)
	if err := s.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}

	selectAll(t, s, "01", "006", "00199")

	if s.Phase() != PhaseComplete {
		t.Errorf("expected complete, got %s", s.Phase())
	}
	if got := form.Field(FieldAddress); got != "Hanoi_Dong Da_Lang Ha" {
		t.Errorf("address = %q", got)
	}
	if got := form.Field(FieldAddressDisplay); got != "Lang Ha, Dong Da, Hanoi" {
		t.Errorf("address_display = %q", got)
	}
}

func TestSelector_RestoreFromComposite(t *testing.T) {
	form := newForm("Hanoi_Dong Da_Lang Ha")
	s := newTestSelector(t, newFakeSource(), form)

	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	v, ok := s.Value()
	if !ok {
		t.Fatalf("expected complete selection, phase %s", s.Phase())
	}
	if got := v.Display(); got != "Lang Ha, Dong Da, Hanoi" {
		t.Errorf("Display() = %q", got)
	}
	if form.writes != 0 {
		t.Errorf("restore wrote to the form %d times", form.writes)
	}
	if len(s.Wards()) != 2 {
		t.Errorf("expected ward list of the restored district, got %v", s.Wards())
	}
}

func TestSelector_RoundTrip(t *testing.T) {
	triples := []struct{ province, district, ward string }{
		{"01", "001", "00004"},
		{"01", "006", "00199"},
		{"01", "006", "00200"},
		{"79", "760", "26734"},
	}
	for _, tt := range triples {
		t.Run(tt.province+"/"+tt.district+"/"+tt.ward, func(t *testing.T) {
			src := newFakeSource()
			form := newForm("")
			first := newTestSelector(t, src, form)
			if err := first.Mount(context.Background()); err != nil {
				t.Fatal(err)
			}
			selectAll(t, first, tt.province, tt.district, tt.ward)
			want, _ := first.Value()

			second := newTestSelector(t, src, newForm(form.Field(FieldAddress)))
			if err := second.Mount(context.Background()); err != nil {
				t.Fatal(err)
			}
			got, ok := second.Value()
			if !ok {
				t.Fatalf("restore stopped at %s", second.Phase())
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelector_PartialRestore(t *testing.T) {
	s := newTestSelector(t, newFakeSource(), newForm("Hanoi_Nowhere_Lang Ha"))

	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("partial restore should not fail: %v", err)
	}
	if s.Phase() != PhaseProvinceSelected {
		t.Errorf("expected province_selected, got %s", s.Phase())
	}
	if len(s.Districts()) != 2 {
		t.Errorf("expected Hanoi districts loaded, got %v", s.Districts())
	}
}

func TestSelector_ChangeProvinceInvalidatesDescendants(t *testing.T) {
	src := newFakeSource()
	form := newForm("")
	s := newTestSelector(t, src, form)
	if err := s.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	selectAll(t, s, "01", "006", "00199")

	if err := s.SelectProvince(context.Background(), "79"); err != nil {
		t.Fatalf("SelectProvince: %v", err)
	}

	if s.Phase() != PhaseProvinceSelected {
		t.Errorf("expected province_selected, got %s", s.Phase())
	}
	if len(s.Wards()) != 0 {
		t.Errorf("expected ward list cleared, got %v", s.Wards())
	}
	want := []District{{ID: "760", Name: "Quan_1", ProvinceID: "79"}}
	if diff := cmp.Diff(want, s.Districts()); diff != "" {
		t.Errorf("districts (-want +got):\n%s", diff)
	}
	if form.Field(FieldAddress) != "" || form.Field(FieldAddressDisplay) != "" {
		t.Errorf("expected form value cleared, got %v", form.values)
	}
	calls := src.callLog()
	if calls[len(calls)-1] != "districts:79" {
		t.Errorf("expected last call districts:79, got %v", calls)
	}
}

func TestSelector_ChangeDistrictClearsWard(t *testing.T) {
	form := newForm("")
	s := newTestSelector(t, newFakeSource(), form)
	if err := s.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	selectAll(t, s, "01", "006", "00199")

	if err := s.SelectDistrict(context.Background(), "001"); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseDistrictSelected {
		t.Errorf("expected district_selected, got %s", s.Phase())
	}
	if form.Field(FieldAddress) != "" {
		t.Errorf("expected address cleared, got %q", form.Field(FieldAddress))
	}
	if diff := cmp.Diff([]Ward{{ID: "00004", Name: "Kim Ma", DistrictID: "001"}}, s.Wards()); diff != "" {
		t.Errorf("wards (-want +got):\n%s", diff)
	}
}

func TestSelector_SameProvinceIsNoop(t *testing.T) {
	src := newFakeSource()
	s := newTestSelector(t, src, newForm(""))
	if err := s.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	selectAll(t, s, "01", "006", "00199")
	before := len(src.callLog())

	if err := s.SelectProvince(context.Background(), "01"); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseComplete {
		t.Errorf("expected selection kept, got %s", s.Phase())
	}
	if len(src.callLog()) != before {
		t.Errorf("expected no new lookups")
	}
}

func TestSelector_RejectsOptionsOutsideParent(t *testing.T) {
	s := newTestSelector(t, newFakeSource(), newForm(""))
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}

	if err := s.SelectDistrict(ctx, "006"); !errors.Is(err, ErrNoParent) {
		t.Errorf("SelectDistrict without province: got %v", err)
	}
	if err := s.SelectWard("00199"); !errors.Is(err, ErrNoParent) {
		t.Errorf("SelectWard without district: got %v", err)
	}
	if err := s.SelectProvince(ctx, "99"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("unknown province: got %v", err)
	}
	if err := s.SelectProvince(ctx, "79"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectDistrict(ctx, "006"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("district of another province: got %v", err)
	}
}

func TestSelector_FetchErrorAndRetry(t *testing.T) {
	src := newFakeSource()
	s := newTestSelector(t, src, newForm(""))
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("connection refused")
	src.setFailure(LevelDistrict, boom)

	err := s.SelectProvince(ctx, "01")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Level != LevelDistrict || !errors.Is(err, boom) {
		t.Errorf("unexpected fetch error %+v", fe)
	}
	if s.Err(LevelDistrict) == nil {
		t.Error("expected district error recorded")
	}
	if len(s.Districts()) != 0 || s.Phase() != PhaseProvinceSelected {
		t.Errorf("expected consistent state after failure, phase %s districts %v", s.Phase(), s.Districts())
	}

	src.setFailure(LevelDistrict, nil)
	if err := s.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if s.Err(LevelDistrict) != nil {
		t.Errorf("expected error cleared, got %v", s.Err(LevelDistrict))
	}
	if len(s.Districts()) != 2 {
		t.Errorf("expected districts after retry, got %v", s.Districts())
	}
	if err := s.Retry(ctx); err != nil {
		t.Errorf("Retry with nothing failed should be nil, got %v", err)
	}
}

func TestSelector_MountProvinceFailure(t *testing.T) {
	src := newFakeSource()
	src.setFailure(LevelProvince, errors.New("timeout"))
	s := newTestSelector(t, src, newForm(""))

	err := s.Mount(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Level != LevelProvince {
		t.Fatalf("expected province FetchError, got %v", err)
	}

	src.setFailure(LevelProvince, nil)
	if err := s.Retry(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.Provinces()) != 2 {
		t.Errorf("expected provinces after retry")
	}
}

func TestSelector_RetryResumesRestore(t *testing.T) {
	tests := []struct {
		name  string
		level Level
	}{
		{"province", LevelProvince},
		{"district", LevelDistrict},
		{"ward", LevelWard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.setFailure(tt.level, errors.New("timeout"))
			form := newForm("Hanoi_Dong Da_Lang Ha")
			s := newTestSelector(t, src, form)
			ctx := context.Background()

			var fe *FetchError
			if err := s.Mount(ctx); !errors.As(err, &fe) || fe.Level != tt.level {
				t.Fatalf("expected %s FetchError, got %v", tt.level, err)
			}
			if !s.Snapshot().Restoring {
				t.Fatal("expected snapshot to report the interrupted restore")
			}

			restored := newTestSelector(t, src, form)
			restored.RestoreSnapshot(s.Snapshot())
			src.setFailure(tt.level, nil)
			if err := restored.Retry(ctx); err != nil {
				t.Fatalf("Retry: %v", err)
			}

			v, ok := restored.Value()
			if !ok {
				t.Fatalf("expected restore to finish, phase %s", restored.Phase())
			}
			if got := v.String(); got != "Hanoi_Dong Da_Lang Ha" {
				t.Errorf("value = %q", got)
			}
			if restored.Snapshot().Restoring {
				t.Error("restore still reported pending")
			}
			if form.writes != 0 {
				t.Errorf("restore wrote to the form %d times", form.writes)
			}
		})
	}
}

func TestSelector_SelectionCancelsPendingRestore(t *testing.T) {
	src := newFakeSource()
	src.setFailure(LevelDistrict, errors.New("timeout"))
	s := newTestSelector(t, src, newForm("Hanoi_Dong Da_Lang Ha"))
	ctx := context.Background()
	if err := s.Mount(ctx); err == nil {
		t.Fatal("expected district failure")
	}

	src.setFailure(LevelDistrict, nil)
	if err := s.SelectProvince(ctx, "79"); err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Restoring {
		t.Error("selection should cancel the pending restore")
	}
	if err := s.Retry(ctx); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Province == nil || snap.Province.ID != "79" || s.Phase() != PhaseProvinceSelected {
		t.Errorf("Retry overrode the user's choice: %+v", snap.Province)
	}
}

func TestSelector_StaleResponseDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := &gatedSource{
		fakeSource: newFakeSource(),
		gateFor:    "01",
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	s := newTestSelector(t, src, newForm(""))
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = s.SelectProvince(ctx, "01")
	}()
	<-src.entered

	if err := s.SelectProvince(ctx, "79"); err != nil {
		t.Fatalf("SelectProvince(79): %v", err)
	}
	close(src.release)
	wg.Wait()

	if !errors.Is(slowErr, ErrSuperseded) {
		t.Errorf("expected stale fetch to be superseded, got %v", slowErr)
	}
	want := []District{{ID: "760", Name: "Quan_1", ProvinceID: "79"}}
	if diff := cmp.Diff(want, s.Districts()); diff != "" {
		t.Errorf("stale list overwrote newer one (-want +got):\n%s", diff)
	}
	snap := s.Snapshot()
	if snap.Province == nil || snap.Province.ID != "79" {
		t.Errorf("expected province 79 selected, got %+v", snap.Province)
	}
}

func TestSelector_SnapshotRoundTrip(t *testing.T) {
	src := newFakeSource()
	s := newTestSelector(t, src, newForm(""))
	ctx := context.Background()
	if err := s.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	selectAll(t, s, "79", "760", "26734")
	if err := s.SelectProvince(ctx, "01"); err != nil {
		t.Fatal(err)
	}
	src.setFailure(LevelWard, errors.New("down"))
	if err := s.SelectDistrict(ctx, "006"); err == nil {
		t.Fatal("expected ward fetch failure")
	}

	raw, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}

	calls := len(src.callLog())
	restored := newTestSelector(t, src, newForm(""))
	restored.RestoreSnapshot(snap)
	if err := restored.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	if len(src.callLog()) != calls {
		t.Errorf("Mount after RestoreSnapshot should not fetch")
	}
	if diff := cmp.Diff(s.Snapshot(), restored.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if restored.Err(LevelWard) == nil {
		t.Error("expected ward error to survive the snapshot")
	}
}
