package fhir

import (
	"encoding/json"
	"fmt"

	"github.com/rehab/rehab/internal/platform/apperr"
)

// MIMEJSON is the content type bundles are served with.
const MIMEJSON = "application/fhir+json"

// Bundle is a collection bundle. Entries are only ever appended.
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	Type         string  `json:"type"`
	Entry        []Entry `json:"entry"`
}

// Entry pairs a resource with its fullUrl. FullURL always equals
// FullURL(Resource.ResourceID()).
type Entry struct {
	FullURL  string   `json:"fullUrl"`
	Resource Resource `json:"resource"`
}

// NewBundle returns an empty collection bundle.
func NewBundle() *Bundle {
	return &Bundle{ResourceType: "Bundle", Type: "collection", Entry: []Entry{}}
}

// FullURL is the urn:uuid form of a resource id.
func FullURL(id string) string { return "urn:uuid:" + id }

// Ref references the resource with the given id.
func Ref(id string) Reference { return Reference{Reference: FullURL(id)} }

// Add appends r and returns the reference other resources should use.
func (b *Bundle) Add(r Resource) Reference {
	b.Entry = append(b.Entry, Entry{FullURL: FullURL(r.ResourceID()), Resource: r})
	return Ref(r.ResourceID())
}

// Patient returns the first Patient entry, or nil.
func (b *Bundle) Patient() *Patient {
	for _, e := range b.Entry {
		if p, ok := e.Resource.(*Patient); ok {
			return p
		}
	}
	return nil
}

// Practitioner returns the first Practitioner entry, or nil.
func (b *Bundle) Practitioner() *Practitioner {
	for _, e := range b.Entry {
		if p, ok := e.Resource.(*Practitioner); ok {
			return p
		}
	}
	return nil
}

// Observation returns the first Observation whose code.text is code, or nil.
func (b *Bundle) Observation(code string) *Observation {
	for _, e := range b.Entry {
		if o, ok := e.Resource.(*Observation); ok && o.Code.Text == code {
			return o
		}
	}
	return nil
}

// ObservationString returns the valueString of the first Observation coded
// code. ok is false when there is no such Observation or it has no string value.
func (b *Bundle) ObservationString(code string) (value string, ok bool) {
	o := b.Observation(code)
	if o == nil || o.ValueString == nil {
		return "", false
	}
	return *o.ValueString, true
}

func (b *Bundle) DiagnosticReports() []*DiagnosticReport {
	var out []*DiagnosticReport
	for _, e := range b.Entry {
		if d, ok := e.Resource.(*DiagnosticReport); ok {
			out = append(out, d)
		}
	}
	return out
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		FullURL  string          `json:"fullUrl"`
		Resource json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperr.Inconsistent("malformed bundle entry: %v", err)
	}
	r, err := DecodeResource(raw.Resource)
	if err != nil {
		return err
	}
	e.FullURL = raw.FullURL
	e.Resource = r
	return nil
}

// DecodeResource decodes a stored resource into its typed variant using the
// resourceType discriminant.
func DecodeResource(data []byte) (Resource, error) {
	if len(data) == 0 {
		return nil, apperr.Inconsistent("bundle entry has no resource")
	}
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, apperr.Inconsistent("malformed resource: %v", err)
	}
	var r Resource
	switch head.ResourceType {
	case TypePatient:
		r = &Patient{}
	case TypePractitioner:
		r = &Practitioner{}
	case TypeObservation:
		r = &Observation{}
	case TypeDiagnosticReport:
		r = &DiagnosticReport{}
	case "":
		return nil, apperr.Inconsistent("resource has no resourceType")
	default:
		return nil, apperr.Inconsistent("unsupported resourceType %q", head.ResourceType)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, apperr.Inconsistent("decode %s: %v", head.ResourceType, err)
	}
	return r, nil
}

// DecodeBundle decodes a stored bundle document.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		if apperr.Is(err, apperr.KindInconsistent) {
			return nil, err
		}
		return nil, apperr.Inconsistent("decode bundle: %v", err)
	}
	if b.ResourceType != "Bundle" {
		return nil, apperr.Inconsistent("document is not a Bundle (resourceType %q)", b.ResourceType)
	}
	return &b, nil
}

func (b *Bundle) String() string {
	return fmt.Sprintf("Bundle(%s, %d entries)", b.Type, len(b.Entry))
}
