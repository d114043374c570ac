package declaration

// Option is one choice of a radio or multi-select question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Condition shows a question only while another field holds a value.
type Condition struct {
	Field  Field  `json:"field"`
	Equals string `json:"equals"`
}

// Question describes one field as rendered by clients.
type Question struct {
	Field      Field      `json:"field"`
	Step       int        `json:"step"`
	Kind       Kind       `json:"kind"`
	Label      string     `json:"label"`
	Options    []Option   `json:"options,omitempty"`
	AllowNone  bool       `json:"allow_none,omitempty"`
	AllowOther bool       `json:"allow_other,omitempty"`
	ShowWhen   *Condition `json:"show_when,omitempty"`
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func opts(values ...string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Value: v, Label: v}
	}
	return out
}

var yesNo = opts("Yes", "No")

var questions = []Question{
	{Field: FieldFeelingHealthy, Step: 1, Kind: KindText, Label: "Are you feeling healthy today?", Options: yesNo},
	{Field: FieldCurrentSymptoms, Step: 1, Kind: KindMulti, Label: "Do you currently have any of these symptoms?",
		Options:   opts("Fever", "Cough", "Sore throat", "Headache", "Fatigue", "Diarrhea", "Skin rash"),
		AllowNone: true, AllowOther: true},

	{Field: FieldChronicConditions, Step: 2, Kind: KindMulti, Label: "Have you ever been diagnosed with any of these conditions?",
		Options:   opts("Hypertension", "Diabetes", "Heart disease", "Asthma", "Hepatitis B", "Hepatitis C", "HIV/AIDS", "Cancer", "Epilepsy", "Blood disorder"),
		AllowNone: true, AllowOther: true},
	{Field: FieldMedications, Step: 2, Kind: KindText, Label: "Which medications are you currently taking?"},

	{Field: FieldRecentTreatments, Step: 3, Kind: KindMulti, Label: "In the last 12 months, have you had any of the following?",
		Options:   opts("Surgery", "Blood transfusion", "Tattoo or piercing", "Vaccination", "Dental treatment", "Antibiotics"),
		AllowNone: true, AllowOther: true},
	{Field: FieldRiskFactors, Step: 3, Kind: KindMulti, Label: "Do any of these apply to you?",
		Options:   opts("Travel to a malaria area", "Close contact with a hepatitis patient", "Multiple sexual partners", "Injected drug use", "Recent imprisonment"),
		AllowNone: true, AllowOther: true},

	{Field: FieldGender, Step: 4, Kind: KindText, Label: "Gender", Options: []Option{
		{Value: GenderMale, Label: "Male"},
		{Value: GenderFemale, Label: "Female"},
	}},
	{Field: FieldPregnancyStatus, Step: 4, Kind: KindText, Label: "Are you pregnant?",
		Options: opts("Not pregnant", "Pregnant", "Not sure"), ShowWhen: &Condition{Field: FieldGender, Equals: GenderFemale}},
	{Field: FieldMenstruation, Step: 4, Kind: KindText, Label: "Are you currently menstruating?",
		Options: yesNo, ShowWhen: &Condition{Field: FieldGender, Equals: GenderFemale}},
	{Field: FieldRecentChildbirth, Step: 4, Kind: KindText, Label: "Have you given birth or miscarried in the last 12 months?",
		Options: yesNo, ShowWhen: &Condition{Field: FieldGender, Equals: GenderFemale}},
	{Field: FieldMaleRecentDonation, Step: 4, Kind: KindText, Label: "Have you donated blood in the last 12 weeks?",
		Options: yesNo, ShowWhen: &Condition{Field: FieldGender, Equals: GenderMale}},
	{Field: FieldMaleHormoneTherapy, Step: 4, Kind: KindText, Label: "Are you receiving hormone therapy?",
		Options: yesNo, ShowWhen: &Condition{Field: FieldGender, Equals: GenderMale}},

	{Field: FieldAgreement, Step: 5, Kind: KindFlag, Label: "I confirm that my answers are complete and truthful"},
}

// Catalog returns the questionnaire in display order.
func Catalog() []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	return out
}

// QuestionFor returns the question asking for f.
func QuestionFor(f Field) (Question, bool) {
	for _, q := range questions {
		if q.Field == f {
			return q, true
		}
	}
	return Question{}, false
}

// accepts reports whether value is a valid choice for q. Free-text
// questions accept anything; the empty string clears any answer.
func (q Question) accepts(value string) bool {
	if len(q.Options) == 0 || value == "" {
		return true
	}
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// acceptsTag reports whether tag may be toggled on a multi-select question.
func (q Question) acceptsTag(tag string) bool {
	if tag == TagNone {
		return q.AllowNone
	}
	return tag != "" && q.accepts(tag)
}
