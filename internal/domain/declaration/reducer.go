package declaration

// FieldValue is the payload of UpdateField: Text, Flag or MultiSelect.
type FieldValue interface {
	kind() Kind
}

type Text string

type Flag bool

func (Text) kind() Kind        { return KindText }
func (Flag) kind() Kind        { return KindFlag }
func (MultiSelect) kind() Kind { return KindMulti }

// Action is a state transition: UpdateField or ResetForm.
type Action interface {
	isAction()
}

// UpdateField replaces one field's value.
type UpdateField struct {
	Field Field
	Value FieldValue
}

// ResetForm returns the empty form.
type ResetForm struct{}

func (UpdateField) isAction() {}
func (ResetForm) isAction()   {}

// Reduce applies a to s and returns the new state. s is never modified. An
// UpdateField naming an unknown field, or carrying a value of the wrong
// kind, leaves the state unchanged.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case UpdateField:
		if next, ok := s.with(a.Field, a.Value); ok {
			return next
		}
	case ResetForm:
		return State{}
	}
	return s.Clone()
}

func (s State) with(f Field, v FieldValue) (State, bool) {
	k, ok := f.Kind()
	if !ok || v == nil || v.kind() != k {
		return s, false
	}
	next := s.Clone()
	switch v := v.(type) {
	case Text:
		next.setText(f, string(v))
	case Flag:
		next.Agreement = bool(v)
	case MultiSelect:
		next.setMulti(f, v.clone())
	}
	return next, true
}

func (s *State) setText(f Field, v string) {
	switch f {
	case FieldFeelingHealthy:
		s.FeelingHealthy = v
	case FieldMedications:
		s.Medications = v
	case FieldGender:
		s.Gender = v
	case FieldPregnancyStatus:
		s.PregnancyStatus = v
	case FieldMenstruation:
		s.Menstruation = v
	case FieldRecentChildbirth:
		s.RecentChildbirth = v
	case FieldMaleRecentDonation:
		s.MaleRecentDonation = v
	case FieldMaleHormoneTherapy:
		s.MaleHormoneTherapy = v
	}
}

func (s *State) setMulti(f Field, v MultiSelect) {
	switch f {
	case FieldCurrentSymptoms:
		s.CurrentSymptoms = v
	case FieldChronicConditions:
		s.ChronicConditions = v
	case FieldRecentTreatments:
		s.RecentTreatments = v
	case FieldRiskFactors:
		s.RiskFactors = v
	}
}
