package declaration

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReduce_UpdateField(t *testing.T) {
	s := Reduce(State{}, UpdateField{Field: FieldFeelingHealthy, Value: Text("Yes")})
	s = Reduce(s, UpdateField{Field: FieldAgreement, Value: Flag(true)})
	s = Reduce(s, UpdateField{Field: FieldRiskFactors, Value: MultiSelect{Tag(TagNone)}})

	want := State{FeelingHealthy: "Yes", Agreement: true, RiskFactors: MultiSelect{Tag(TagNone)}}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReduce_IgnoresMismatchedKind(t *testing.T) {
	start := State{Gender: GenderMale}
	tests := []Action{
		UpdateField{Field: FieldGender, Value: Flag(true)},
		UpdateField{Field: FieldAgreement, Value: Text("yes")},
		UpdateField{Field: FieldRiskFactors, Value: Text("None")},
		UpdateField{Field: "bloodType", Value: Text("O+")},
		UpdateField{Field: FieldGender},
	}
	for _, a := range tests {
		if diff := cmp.Diff(start, Reduce(start, a)); diff != "" {
			t.Errorf("Reduce(%+v) changed state:\n%s", a, diff)
		}
	}
}

func TestReduce_ResetForm(t *testing.T) {
	s := State{FeelingHealthy: "No", ChronicConditions: MultiSelect{Tag("Asthma")}, Agreement: true}
	if diff := cmp.Diff(State{}, Reduce(s, ResetForm{})); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestReduce_DoesNotAliasInput(t *testing.T) {
	symptoms := MultiSelect{Other("rash")}
	s := Reduce(State{}, UpdateField{Field: FieldCurrentSymptoms, Value: symptoms})
	*symptoms[0].Other = "changed"

	if text, _ := s.CurrentSymptoms.OtherText(); text != "rash" {
		t.Errorf("state shares memory with the action value, got %q", text)
	}
}
