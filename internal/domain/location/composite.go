package location

import "strings"

// Form fields written by a Selector once a ward is chosen.
const (
	FieldAddress        = "address"
	FieldAddressDisplay = "address_display"
)

const compositeSep = "_"

// Composite is a complete selection by name. Its String form is the value
// persisted in forms and submissions.
type Composite struct {
	Province string `json:"province"`
	District string `json:"district"`
	Ward     string `json:"ward"`
}

// String returns "{province}_{district}_{ward}".
func (c Composite) String() string {
	return c.Province + compositeSep + c.District + compositeSep + c.Ward
}

// Display returns "{ward}, {district}, {province}".
func (c Composite) Display() string {
	return c.Ward + ", " + c.District + ", " + c.Province
}

// ParseComposite splits a composite value whose names contain no separator.
// Values built from names containing "_" can only be resolved against the
// option lists, which is what Selector.Mount does.
func ParseComposite(s string) (Composite, error) {
	parts := strings.Split(s, compositeSep)
	if len(parts) != 3 {
		return Composite{}, ErrInvalidComposite
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Composite{}, ErrInvalidComposite
		}
	}
	return Composite{Province: parts[0], District: parts[1], Ward: parts[2]}, nil
}

// matchPrefix returns the index of the name that, followed by the separator,
// is the longest prefix of raw, together with the remainder of raw.
func matchPrefix(names []string, raw string) (int, string, bool) {
	best, bestLen := -1, -1
	for i, n := range names {
		prefix := n + compositeSep
		if strings.HasPrefix(raw, prefix) && len(prefix) > bestLen {
			best, bestLen = i, len(prefix)
		}
	}
	if best < 0 {
		return -1, "", false
	}
	return best, raw[bestLen:], true
}
