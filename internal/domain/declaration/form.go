// Package declaration implements the donor medical declaration: the
// five-step questionnaire, its reducer and validation, the summary handed
// to the caller on submit, and persisted submissions awaiting staff review.
package declaration

import "strings"

// Field names a questionnaire answer. The names double as JSON keys.
type Field string

const (
	FieldFeelingHealthy     Field = "feelingHealthy"
	FieldCurrentSymptoms    Field = "currentSymptoms"
	FieldChronicConditions  Field = "chronicConditions"
	FieldMedications        Field = "medications"
	FieldRecentTreatments   Field = "recentTreatments"
	FieldRiskFactors        Field = "riskFactors"
	FieldGender             Field = "gender"
	FieldPregnancyStatus    Field = "pregnancyStatus"
	FieldMenstruation       Field = "menstruation"
	FieldRecentChildbirth   Field = "recentChildbirth"
	FieldMaleRecentDonation Field = "maleRecentDonation"
	FieldMaleHormoneTherapy Field = "maleHormoneTherapy"
	FieldAgreement          Field = "agreement"
)

type Kind int

const (
	KindText Kind = iota
	KindFlag
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindFlag:
		return "flag"
	case KindMulti:
		return "multi"
	}
	return "text"
}

var fieldKinds = map[Field]Kind{
	FieldFeelingHealthy:     KindText,
	FieldCurrentSymptoms:    KindMulti,
	FieldChronicConditions:  KindMulti,
	FieldMedications:        KindText,
	FieldRecentTreatments:   KindMulti,
	FieldRiskFactors:        KindMulti,
	FieldGender:             KindText,
	FieldPregnancyStatus:    KindText,
	FieldMenstruation:       KindText,
	FieldRecentChildbirth:   KindText,
	FieldMaleRecentDonation: KindText,
	FieldMaleHormoneTherapy: KindText,
	FieldAgreement:          KindFlag,
}

// Kind reports the value kind of f, or false for an unknown field.
func (f Field) Kind() (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// TagNone is the sentinel that excludes every other entry of a field.
const TagNone = "None"

// Entry is one member of a multi-select answer: either a catalog tag or the
// field's single free-text Other entry.
type Entry struct {
	Tag   string  `json:"tag,omitempty"`
	Other *string `json:"other,omitempty"`
}

func Tag(name string) Entry { return Entry{Tag: name} }

func Other(text string) Entry { return Entry{Other: &text} }

func (e Entry) IsOther() bool { return e.Other != nil }

// Label renders the entry as shown in summaries: the tag itself or
// "Other: <text>".
func (e Entry) Label() string {
	if e.Other != nil {
		return "Other: " + strings.TrimSpace(*e.Other)
	}
	return e.Tag
}

// MultiSelect is an ordered set of entries. Its methods never modify the
// receiver; they return the updated set.
type MultiSelect []Entry

func (m MultiSelect) Has(tag string) bool {
	for _, e := range m {
		if !e.IsOther() && e.Tag == tag {
			return true
		}
	}
	return false
}

func (m MultiSelect) HasNone() bool { return m.Has(TagNone) }

// OtherText returns the Other entry's text and whether Other is checked.
func (m MultiSelect) OtherText() (string, bool) {
	for _, e := range m {
		if e.IsOther() {
			return *e.Other, true
		}
	}
	return "", false
}

// Toggle checks or unchecks tag. Checking None replaces the set with {None};
// checking any other tag drops None. Unchecking may leave the set empty.
func (m MultiSelect) Toggle(tag string, checked bool) MultiSelect {
	if checked && tag == TagNone {
		return MultiSelect{Tag(TagNone)}
	}
	if !checked {
		return m.filter(func(e Entry) bool { return e.IsOther() || e.Tag != tag })
	}
	if m.Has(tag) {
		return m.clone()
	}
	out := m.filter(func(e Entry) bool { return e.IsOther() || e.Tag != TagNone })
	return append(out, Tag(tag))
}

// ToggleOther adds an empty Other entry or removes it. Only one Other entry
// exists per set.
func (m MultiSelect) ToggleOther(checked bool) MultiSelect {
	if !checked {
		return m.filter(func(e Entry) bool { return !e.IsOther() })
	}
	if _, ok := m.OtherText(); ok {
		return m.clone()
	}
	out := m.filter(func(e Entry) bool { return e.IsOther() || e.Tag != TagNone })
	return append(out, Other(""))
}

// SetOtherText replaces the Other entry's text in place. It is a no-op when
// Other is not checked.
func (m MultiSelect) SetOtherText(text string) MultiSelect {
	out := m.clone()
	for i, e := range out {
		if e.IsOther() {
			out[i] = Other(text)
		}
	}
	return out
}

// BlurOther drops an Other entry whose text is blank. A set left empty by
// that becomes {None}.
func (m MultiSelect) BlurOther() MultiSelect {
	text, ok := m.OtherText()
	if !ok || strings.TrimSpace(text) != "" {
		return m.clone()
	}
	out := m.filter(func(e Entry) bool { return !e.IsOther() })
	if len(out) == 0 {
		return MultiSelect{Tag(TagNone)}
	}
	return out
}

// Labels returns the entry labels in order, skipping blank Other entries.
func (m MultiSelect) Labels() []string {
	labels := make([]string, 0, len(m))
	for _, e := range m {
		if e.IsOther() && strings.TrimSpace(*e.Other) == "" {
			continue
		}
		if !e.IsOther() && e.Tag == "" {
			continue
		}
		labels = append(labels, e.Label())
	}
	return labels
}

func (m MultiSelect) clone() MultiSelect {
	if m == nil {
		return nil
	}
	out := make(MultiSelect, len(m))
	for i, e := range m {
		if e.Other != nil {
			e = Other(*e.Other)
		}
		out[i] = e
	}
	return out
}

func (m MultiSelect) filter(keep func(Entry) bool) MultiSelect {
	out := MultiSelect{}
	for _, e := range m.clone() {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// State is the full set of answers. The zero value is the empty form.
type State struct {
	FeelingHealthy     string      `json:"feelingHealthy"`
	CurrentSymptoms    MultiSelect `json:"currentSymptoms"`
	ChronicConditions  MultiSelect `json:"chronicConditions"`
	Medications        string      `json:"medications"`
	RecentTreatments   MultiSelect `json:"recentTreatments"`
	RiskFactors        MultiSelect `json:"riskFactors"`
	Gender             string      `json:"gender"`
	PregnancyStatus    string      `json:"pregnancyStatus"`
	Menstruation       string      `json:"menstruation"`
	RecentChildbirth   string      `json:"recentChildbirth"`
	MaleRecentDonation string      `json:"maleRecentDonation"`
	MaleHormoneTherapy string      `json:"maleHormoneTherapy"`
	Agreement          bool        `json:"agreement"`
}

// Text returns a text field's value.
func (s State) Text(f Field) string {
	switch f {
	case FieldFeelingHealthy:
		return s.FeelingHealthy
	case FieldMedications:
		return s.Medications
	case FieldGender:
		return s.Gender
	case FieldPregnancyStatus:
		return s.PregnancyStatus
	case FieldMenstruation:
		return s.Menstruation
	case FieldRecentChildbirth:
		return s.RecentChildbirth
	case FieldMaleRecentDonation:
		return s.MaleRecentDonation
	case FieldMaleHormoneTherapy:
		return s.MaleHormoneTherapy
	}
	return ""
}

// Multi returns a copy of a multi-select field's value.
func (s State) Multi(f Field) MultiSelect {
	switch f {
	case FieldCurrentSymptoms:
		return s.CurrentSymptoms.clone()
	case FieldChronicConditions:
		return s.ChronicConditions.clone()
	case FieldRecentTreatments:
		return s.RecentTreatments.clone()
	case FieldRiskFactors:
		return s.RiskFactors.clone()
	}
	return nil
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.CurrentSymptoms = s.CurrentSymptoms.clone()
	s.ChronicConditions = s.ChronicConditions.clone()
	s.RecentTreatments = s.RecentTreatments.clone()
	s.RiskFactors = s.RiskFactors.clone()
	return s
}
