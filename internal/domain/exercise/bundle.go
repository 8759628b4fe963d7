package exercise

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// dateLayout accepts DD-MM-YYYY with or without leading zeros.
const dateLayout = "2-1-2006"

// BuildBundle turns exercise records into FHIR entries: one Observation per
// reading followed by a DiagnosticReport per record. With includeSubject the
// bundle starts with a Patient stub and the User Id Observation that later
// uploads are matched on. Tests are numbered from 1 within each call.
func BuildBundle(b *fhir.Builder, userID, patientID string, records []ExerciseRecord, includeSubject bool) (*fhir.Bundle, error) {
	dates, err := parseDates(records)
	if err != nil {
		return nil, err
	}

	now := b.Timestamp()
	subject := fhir.Ref(patientID)
	bundle := fhir.NewBundle()

	if includeSubject {
		bundle.Add(&fhir.Patient{
			ID:   patientID,
			Text: fhir.Generated("Patient reference for user ID " + userID),
		})
		o := b.Observation(fhirmodels.CodeUserID, subject, now, "User ID Observation")
		o.Value = fhir.StringValue(userID)
		bundle.Add(o)
	}

	for i, rec := range records {
		n := i + 1
		effective := b.StartOfDay(dates[i])
		var results []fhir.Reference

		for _, rep := range rec.IndividualReps {
			for _, m := range rep.Muscles {
				code := rec.DeviceName + " - " + m.Muscle + " - " + rep.Label
				for j, v := range m.Values {
					narrative := fmt.Sprintf("%s - %s - %s - Value %d", rec.DeviceName, rep.Label, m.Muscle, j+1)
					o := b.Observation(code, subject, effective, narrative)
					o.Value = fhir.QuantityValue(fhir.Quantity{
						Value:  v,
						Unit:   fhirmodels.UnitKilogramForce,
						System: fhirmodels.UnitsOfMeasureSystem,
						Code:   fhirmodels.UnitKilogramForce,
					})
					o.Component = []fhir.ObservationComponent{
						{Code: fhir.CodeableConcept{Text: fhirmodels.ComponentMuscleGroup}, Value: fhir.ConceptValue(fhir.CodeableConcept{Text: m.Muscle})},
						{Code: fhir.CodeableConcept{Text: fhirmodels.ComponentRepLabel}, Value: fhir.StringValue(rep.Label)},
						{Code: fhir.CodeableConcept{Text: fhirmodels.ComponentDeviceUsed}, Value: fhir.StringValue(rec.DeviceName)},
						{Code: fhir.CodeableConcept{Text: fhirmodels.ComponentValueIndex}, Value: fhir.IntegerValue(j + 1)},
					}
					results = append(results, bundle.Add(o))
				}
			}
		}

		bundle.Add(&fhir.DiagnosticReport{
			ID:                b.ID(),
			Text:              fhir.Generated(fmt.Sprintf("Full Exercise Report for %s (Test %d)", rec.DeviceName, n)),
			Status:            fhirmodels.StatusFinal,
			Code:              fhir.CodeableConcept{Text: fmt.Sprintf("Test %d - %s Exercise Test Report", n, rec.DeviceName)},
			Subject:           &subject,
			EffectiveDateTime: effective,
			Issued:            now,
			Result:            results,
			Performer:         fhir.SystemPerformer(),
			Identifier:        []fhir.Identifier{{System: fhirmodels.TestIDSystem, Value: "Test-" + strconv.Itoa(n)}},
		})
	}
	return bundle, nil
}

// parseDates checks every record date before anything is built.
func parseDates(records []ExerciseRecord) ([]time.Time, error) {
	dates := make([]time.Time, len(records))
	for i, rec := range records {
		d, err := time.Parse(dateLayout, rec.Date)
		if err != nil {
			return nil, apperr.Validation("date %q of test %d must be in 'DD-MM-YYYY' format", rec.Date, i+1)
		}
		dates[i] = d
	}
	return dates, nil
}
