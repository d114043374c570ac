package declaration

import "strings"

// Summary renders the answers as the fixed-order, labeled block handed to
// the submit callback and stored with the submission.
func Summary(s State) string {
	lines := []string{
		"Feeling healthy today: " + s.FeelingHealthy,
		"Current symptoms: " + joinOrNone(s.CurrentSymptoms),
		"Chronic diseases: " + joinOrNone(s.ChronicConditions),
		"Medications in use: " + textOrNone(s.Medications),
		"Recent treatments: " + joinOrNone(s.RecentTreatments),
		"Risk factors: " + joinOrNone(s.RiskFactors),
		"Gender: " + s.Gender,
	}
	switch s.Gender {
	case GenderFemale:
		lines = append(lines,
			"Pregnancy status: "+s.PregnancyStatus,
			"Menstruation: "+s.Menstruation,
			"Recent childbirth: "+s.RecentChildbirth,
		)
	case GenderMale:
		lines = append(lines,
			"Recent blood donation: "+s.MaleRecentDonation,
			"Hormone therapy: "+s.MaleHormoneTherapy,
		)
	}
	return strings.Join(lines, "\n")
}

func joinOrNone(m MultiSelect) string {
	labels := m.Labels()
	if len(labels) == 0 {
		return TagNone
	}
	return strings.Join(labels, ", ")
}

func textOrNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return TagNone
	}
	return s
}
