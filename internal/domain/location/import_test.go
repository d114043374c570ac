package location

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const seedYAML = `
provinces:
  - id: "01"
    name: Hanoi
    districts:
      - id: "006"
        name: Dong Da
        wards:
          - id: "00199"
            name: Lang Ha
          - id: "00200"
            name: O Cho Dua
  - id: "79"
    name: Ho Chi Minh
`

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestImporter_Import(t *testing.T) {
	f, err := ParseImport(strings.NewReader(seedYAML))
	if err != nil {
		t.Fatal(err)
	}
	repo := newMockRepo()
	stats, err := NewImporter(NewService(repo), passthroughTx).Import(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (ImportStats{Provinces: 2, Districts: 1, Wards: 2}) {
		t.Errorf("unexpected stats %+v", stats)
	}
	if repo.wards["00200"].DistrictID != "006" {
		t.Errorf("ward not linked to its district: %+v", repo.wards["00200"])
	}
}

func TestImporter_StopsOnInvalidEntry(t *testing.T) {
	f, err := ParseImport(strings.NewReader(`
provinces:
  - id: "01"
    name: ""
`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewImporter(newTestService(), passthroughTx).Import(context.Background(), f)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestParseImport_UnknownField(t *testing.T) {
	_, err := ParseImport(strings.NewReader("regions: []\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}
