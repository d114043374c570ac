package declaration

// Steps is the number of wizard screens.
const Steps = 5

// FieldErrors maps a field to the message shown under it.
type FieldErrors map[Field]string

const (
	msgRequired  = "This answer is required"
	msgSelectOne = "Select at least one option"
	msgAgreement = "You must confirm that your answers are truthful"
)

// ValidateStep checks the fields required by one step. It returns nil when
// the step is complete. A multi-select holding only None is non-empty.
func ValidateStep(s State, step int) FieldErrors {
	errs := FieldErrors{}
	switch step {
	case 1:
		if s.FeelingHealthy == "" {
			errs[FieldFeelingHealthy] = msgRequired
		}
	case 2:
		if len(s.ChronicConditions) == 0 {
			errs[FieldChronicConditions] = msgSelectOne
		}
	case 3:
		if len(s.RecentTreatments) == 0 {
			errs[FieldRecentTreatments] = msgSelectOne
		}
		if len(s.RiskFactors) == 0 {
			errs[FieldRiskFactors] = msgSelectOne
		}
	case 4:
		switch s.Gender {
		case "":
			errs[FieldGender] = msgRequired
		case GenderFemale:
			requireText(errs, s, FieldPregnancyStatus, FieldMenstruation, FieldRecentChildbirth)
		case GenderMale:
			requireText(errs, s, FieldMaleRecentDonation, FieldMaleHormoneTherapy)
		}
	case 5:
		if !s.Agreement {
			errs[FieldAgreement] = msgAgreement
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func requireText(errs FieldErrors, s State, fields ...Field) {
	for _, f := range fields {
		if s.Text(f) == "" {
			errs[f] = msgRequired
		}
	}
}
