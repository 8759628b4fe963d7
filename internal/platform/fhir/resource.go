package fhir

import (
	"encoding/json"
	"strconv"

	"github.com/rehab/rehab/pkg/fhirmodels"
)

// Resource is one typed variant of the FHIR resources stored in bundles:
// *Patient, *Practitioner, *Observation or *DiagnosticReport.
type Resource interface {
	ResourceType() string
	ResourceID() string
}

const (
	TypePatient          = "Patient"
	TypePractitioner     = "Practitioner"
	TypeObservation      = "Observation"
	TypeDiagnosticReport = "DiagnosticReport"
)

type Narrative struct {
	Status string `json:"status"`
	Div    string `json:"div"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type HumanName struct {
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
}

type Qualification struct {
	Code CodeableConcept `json:"code"`
}

// Value holds the value[x] choice of an Observation or component. At most
// one field is set.
type Value struct {
	ValueString          *string          `json:"valueString,omitempty"`
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueInteger         *int             `json:"valueInteger,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
}

func StringValue(s string) Value { return Value{ValueString: &s} }
func QuantityValue(q Quantity) Value { return Value{ValueQuantity: &q} }
func IntegerValue(n int) Value { return Value{ValueInteger: &n} }
func ConceptValue(c CodeableConcept) Value { return Value{ValueCodeableConcept: &c} }

type Patient struct {
	ID        string      `json:"id"`
	Text      *Narrative  `json:"text,omitempty"`
	Name      []HumanName `json:"name,omitempty"`
	Gender    string      `json:"gender,omitempty"`
	BirthDate string      `json:"birthDate,omitempty"`
}

func (*Patient) ResourceType() string { return TypePatient }
func (p *Patient) ResourceID() string { return p.ID }

func (p Patient) MarshalJSON() ([]byte, error) {
	type plain Patient
	return marshalTagged(TypePatient, plain(p))
}

type Practitioner struct {
	ID            string          `json:"id"`
	Text          *Narrative      `json:"text,omitempty"`
	Name          []HumanName     `json:"name,omitempty"`
	Telecom       []ContactPoint  `json:"telecom,omitempty"`
	BirthDate     string          `json:"birthDate,omitempty"`
	Qualification []Qualification `json:"qualification,omitempty"`
	Photo         []Attachment    `json:"photo,omitempty"`
}

func (*Practitioner) ResourceType() string { return TypePractitioner }
func (p *Practitioner) ResourceID() string { return p.ID }

func (p Practitioner) MarshalJSON() ([]byte, error) {
	type plain Practitioner
	return marshalTagged(TypePractitioner, plain(p))
}

// Email returns the first email telecom value.
func (p *Practitioner) Email() string {
	for _, t := range p.Telecom {
		if t.System == fhirmodels.TelecomEmail {
			return t.Value
		}
	}
	return ""
}

type Observation struct {
	ID                string                 `json:"id"`
	Text              *Narrative             `json:"text,omitempty"`
	Status            string                 `json:"status,omitempty"`
	Code              CodeableConcept        `json:"code"`
	Subject           *Reference             `json:"subject,omitempty"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	Performer         []Reference            `json:"performer,omitempty"`
	Component         []ObservationComponent `json:"component,omitempty"`

	Value
}

type ObservationComponent struct {
	Code CodeableConcept `json:"code"`
	Value
}

func (*Observation) ResourceType() string { return TypeObservation }
func (o *Observation) ResourceID() string { return o.ID }

func (o Observation) MarshalJSON() ([]byte, error) {
	type plain Observation
	return marshalTagged(TypeObservation, plain(o))
}

type DiagnosticReport struct {
	ID                string          `json:"id"`
	Text              *Narrative      `json:"text,omitempty"`
	Status            string          `json:"status,omitempty"`
	Code              CodeableConcept `json:"code"`
	Subject           *Reference      `json:"subject,omitempty"`
	EffectiveDateTime string          `json:"effectiveDateTime,omitempty"`
	Issued            string          `json:"issued,omitempty"`
	Result            []Reference     `json:"result,omitempty"`
	Performer         []Reference     `json:"performer,omitempty"`
	Identifier        []Identifier    `json:"identifier,omitempty"`
}

func (*DiagnosticReport) ResourceType() string { return TypeDiagnosticReport }
func (d *DiagnosticReport) ResourceID() string { return d.ID }

func (d DiagnosticReport) MarshalJSON() ([]byte, error) {
	type plain DiagnosticReport
	return marshalTagged(TypeDiagnosticReport, plain(d))
}

// marshalTagged encodes v with resourceType as its first member.
func marshalTagged(resourceType string, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(resourceType)+20)
	out = append(out, `{"resourceType":`...)
	out = append(out, strconv.Quote(resourceType)...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}
