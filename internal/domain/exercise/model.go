package exercise

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/validate"
)

// ExerciseRecord is one test uploaded from a device.
type ExerciseRecord struct {
	UserID         string `json:"user_id" validate:"notblank"`
	TotalMuscles   *int   `json:"total_muscles" validate:"required"`
	DeviceName     string `json:"device_name" validate:"notblank"`
	Date           string `json:"date" validate:"notblank"`
	IndividualReps Reps   `json:"individual_reps" validate:"required"`
}

func (r *ExerciseRecord) Validate() error { return validate.Struct(r) }

// validateRecords checks every record's fields and date before anything is
// read or written.
func validateRecords(records []ExerciseRecord) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return apperr.Validation("test %d: %s", i+1, apperr.Detail(err))
		}
	}
	_, err := parseDates(records)
	return err
}

// MuscleReadings are the force samples of one muscle within a rep.
type MuscleReadings struct {
	Muscle string
	Values []float64
}

// RepReadings are the per-muscle samples of one rep.
type RepReadings struct {
	Label   string
	Muscles []MuscleReadings
}

// Reps maps rep label to muscle to readings, keeping the order the keys had
// in the uploaded JSON. Observations are emitted in that order.
type Reps []RepReadings

func (r *Reps) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("individual_reps: %w", err)
	}
	out := Reps{}
	for dec.More() {
		label, err := objectKey(dec)
		if err != nil {
			return fmt.Errorf("individual_reps: %w", err)
		}
		muscles, err := decodeMuscles(dec)
		if err != nil {
			return fmt.Errorf("individual_reps[%q]: %w", label, err)
		}
		rep := RepReadings{Label: label, Muscles: muscles}
		if i := out.index(label); i >= 0 {
			out[i] = rep
		} else {
			out = append(out, rep)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return fmt.Errorf("individual_reps: %w", err)
	}
	*r = out
	return nil
}

func decodeMuscles(dec *json.Decoder) ([]MuscleReadings, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []MuscleReadings
	for dec.More() {
		muscle, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		var values []float64
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("%q: %w", muscle, err)
		}
		m := MuscleReadings{Muscle: muscle, Values: values}
		replaced := false
		for i := range out {
			if out[i].Muscle == muscle {
				out[i], replaced = m, true
			}
		}
		if !replaced {
			out = append(out, m)
		}
	}
	return out, expectDelim(dec, '}')
}

func (r Reps) index(label string) int {
	for i, rep := range r {
		if rep.Label == label {
			return i
		}
	}
	return -1
}

func (r Reps) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rep := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, rep.Label); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, m := range rep.Muscles {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, m.Muscle); err != nil {
				return nil, err
			}
			values := m.Values
			if values == nil {
				values = []float64{}
			}
			b, err := json.Marshal(values)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	b, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// SubjectKey identifies the patient an upload belongs to.
type SubjectKey struct {
	Email     string `query:"email" validate:"notblank,email"`
	FirstName string `query:"first_name" validate:"notblank"`
	LastName  string `query:"last_name" validate:"notblank"`
}

func (k SubjectKey) Validate() error { return validate.Struct(k) }

// UploadResult reports how an upload was merged.
type UploadResult struct {
	Outcome  string `json:"-"`
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	BundleID string `json:"bundle_id,omitempty"`
}

// TestsSummary counts the exercise tests recorded for a therapist's patients.
type TestsSummary struct {
	TherapistEmail string `json:"therapist_email"`
	TotalTests     int    `json:"total_tests"`
	TodayTests     int    `json:"today_tests"`
}
