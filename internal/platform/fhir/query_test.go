package fhir

import (
	"encoding/json"
	"testing"

	"github.com/rehab/rehab/internal/platform/docstore"
)

func decodeDoc(t *testing.T, b *Bundle) interface{} {
	t.Helper()
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEntryMatch_SingleEntryScoping(t *testing.T) {
	b := NewBundle()
	b.Add(&Observation{ID: "o-1", Code: CodeableConcept{Text: "Email"}, Value: StringValue("other@z.com")})
	b.Add(&Observation{ID: "o-2", Code: CodeableConcept{Text: "Username"}, Value: StringValue("y@z.com")})
	doc := decodeDoc(t, b)

	ok, err := docstore.Matches(ObservationIs("Email", "y@z.com"), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Email code and y@z.com value sit on different entries; must not match")
	}

	ok, err = docstore.Matches(ObservationIs("Username", "y@z.com"), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected match on the Username entry")
	}
}

func TestSubjectLookup(t *testing.T) {
	b := NewBundle()
	b.Add(&Patient{ID: "p-1", Name: []HumanName{{Family: "Doe", Given: []string{"Jane"}}}})
	b.Add(&Observation{ID: "o-1", Code: CodeableConcept{Text: "Email"}, Value: StringValue("jane@x.com")})
	doc := decodeDoc(t, b)

	tests := []struct {
		name                 string
		email, given, family string
		want                 bool
	}{
		{"match", "jane@x.com", "Jane", "Doe", true},
		{"wrong email", "john@x.com", "Jane", "Doe", false},
		{"wrong given", "jane@x.com", "John", "Doe", false},
		{"swapped names", "jane@x.com", "Doe", "Jane", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := docstore.Matches(SubjectLookup(tt.email, tt.given, tt.family), doc, "")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPatientNamed_TypeScoped(t *testing.T) {
	// A non-Patient entry carrying the same name fields must not satisfy the filter.
	doc := map[string]interface{}{
		"entry": []interface{}{
			map[string]interface{}{"resource": map[string]interface{}{
				"resourceType": "Practitioner",
				"name":         []interface{}{map[string]interface{}{"family": "Doe", "given": []interface{}{"Jane"}}},
			}},
		},
	}
	ok, err := docstore.Matches(PatientNamed("Jane", "Doe"), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match for a Practitioner entry")
	}
}

func TestPractitionerEmail(t *testing.T) {
	b := NewBundle()
	b.Add(&Practitioner{ID: "pr-1", Telecom: []ContactPoint{
		{System: "phone", Value: "t@x.com"},
		{System: "email", Value: "real@x.com"},
	}})
	doc := decodeDoc(t, b)

	ok, err := docstore.Matches(PractitionerEmail("real@x.com"), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected match on email telecom")
	}
	ok, err = docstore.Matches(PractitionerEmail("t@x.com"), doc, "")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("phone telecom value must not match an email lookup")
	}
}
