package therapist

import (
	"time"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// BuildBundle shapes a therapist registration into a bundle holding a single
// Practitioner. Unlike patients, the birth date is required and is given as
// YYYY-MM-DD.
func BuildBundle(b *fhir.Builder, t TherapistData) (*fhir.Bundle, error) {
	if t.DOB == nil || *t.DOB == "" {
		return nil, apperr.Validation("DOB is required for FHIR Practitioner")
	}
	dob, err := time.Parse("2006-1-2", *t.DOB)
	if err != nil {
		return nil, apperr.Validation("Invalid DOB format: %s. Expected YYYY-MM-DD.", *t.DOB)
	}

	p := &fhir.Practitioner{
		ID:        b.ID(),
		Text:      fhir.Generated("Practitioner record for " + t.Email),
		Name:      []fhir.HumanName{{Text: t.Username}},
		Telecom:   []fhir.ContactPoint{{System: fhirmodels.TelecomEmail, Value: t.Email}},
		BirthDate: dob.Format("2006-01-02"),
		Qualification: []fhir.Qualification{{
			Code: fhir.CodeableConcept{Text: fhirmodels.QualificationTherapist},
		}},
	}
	if t.ProfileImage != nil && *t.ProfileImage != "" {
		p.Photo = []fhir.Attachment{{ContentType: fhirmodels.PhotoContentType, URL: *t.ProfileImage}}
	}

	bundle := fhir.NewBundle()
	bundle.Add(p)
	return bundle, nil
}
