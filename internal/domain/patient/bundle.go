package patient

import (
	"strconv"
	"time"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// dobLayout is the DD-MM-YYYY form patients register their birth date in;
// leading zeros are optional.
const dobLayout = "2-1-2006"

// BuildBundle shapes a registration record into a patient bundle: one Patient
// followed by one Observation per populated field, all referencing the Patient.
func BuildBundle(b *fhir.Builder, p PatientData) (*fhir.Bundle, error) {
	birthDate := fhirmodels.BirthDateUnknown
	if present(p.DOB) {
		t, err := time.Parse(dobLayout, *p.DOB)
		if err != nil {
			return nil, apperr.Validation("DOB must be in 'DD-MM-YYYY' format")
		}
		birthDate = t.Format("2006-01-02")
	}
	gender := fhirmodels.GenderUnknown
	if present(p.Gender) {
		gender = *p.Gender
	}

	bundle := fhir.NewBundle()
	subject := bundle.Add(&fhir.Patient{
		ID:        b.ID(),
		Text:      fhir.Generated("Patient record for " + p.FirstName + " " + p.LastName),
		Name:      []fhir.HumanName{{Family: p.LastName, Given: []string{p.FirstName}}},
		Gender:    gender,
		BirthDate: birthDate,
	})

	now := b.Timestamp()
	add := func(display, code string, v fhir.Value) {
		o := b.Observation(code, subject, now, display+" Observation")
		o.Value = v
		bundle.Add(o)
	}
	quantity := func(v float64, unit string) fhir.Value {
		return fhir.QuantityValue(fhir.Quantity{Value: v, Unit: unit, System: fhirmodels.UnitsOfMeasureSystem, Code: unit})
	}

	add("User ID", fhirmodels.CodeUserID, fhir.StringValue(p.UserID))
	add("Therapist Assigned", fhirmodels.CodeTherapistAssigned, fhir.StringValue(p.TherapistAssigned))
	if present(p.Username) {
		add("Username", fhirmodels.CodeUsername, fhir.StringValue(*p.Username))
	}
	add("Email", fhirmodels.CodeEmail, fhir.StringValue(p.Email))
	add("Phone Number", fhirmodels.CodePhoneNumber, fhir.StringValue(p.PhoneNumber))
	if present(p.BloodGroup) {
		add("Blood Group", fhirmodels.CodeBloodGroup, fhir.StringValue(*p.BloodGroup))
	}
	flag := 0
	if p.Flag != nil {
		flag = *p.Flag
	}
	add("Flag", fhirmodels.CodeFlag, fhir.StringValue(strconv.Itoa(flag)))
	if p.Height != nil {
		add("Height", fhirmodels.CodeHeight, quantity(*p.Height, fhirmodels.UnitCentimetre))
	}
	if p.Weight != nil {
		add("Weight", fhirmodels.CodeWeight, quantity(*p.Weight, fhirmodels.UnitKilogram))
	}
	return bundle, nil
}
