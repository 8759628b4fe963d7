package fhir

import (
	"time"

	"github.com/google/uuid"

	"github.com/rehab/rehab/pkg/fhirmodels"
)

// DateTimeLayout is the second-precision dateTime form written into
// resources, e.g. 2025-07-10T14:03:11+05:30.
const DateTimeLayout = "2006-01-02T15:04:05-07:00"

// DefaultTimezone is the zone bundle timestamps are rendered in.
const DefaultTimezone = "Asia/Kolkata"

// IDFunc produces resource ids.
type IDFunc func() string

// NewID returns a fresh lowercase v4 UUID.
func NewID() string { return uuid.NewString() }

// LoadLocation resolves name, falling back to a fixed +05:30 zone when the
// tz database does not know it.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// Builder carries the two impure inputs of bundle construction: id
// generation and the wall clock.
type Builder struct {
	NewID    IDFunc
	Now      func() time.Time
	Location *time.Location
}

// NewBuilder returns a Builder using random ids and the system clock.
func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = LoadLocation(DefaultTimezone)
	}
	return &Builder{NewID: NewID, Now: time.Now, Location: loc}
}

// ID returns a new resource id.
func (b *Builder) ID() string {
	if b.NewID == nil {
		return NewID()
	}
	return b.NewID()
}

func (b *Builder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// Timestamp is the current time in the builder's zone.
func (b *Builder) Timestamp() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().In(b.location()).Truncate(time.Second).Format(DateTimeLayout)
}

// StartOfDay renders midnight of the calendar date d in the builder's zone.
func (b *Builder) StartOfDay(d time.Time) string {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, b.location()).Format(DateTimeLayout)
}

// Observation starts a final, system-performed Observation about subject.
// The caller sets the value and any components.
func (b *Builder) Observation(code string, subject Reference, effective, narrative string) *Observation {
	return &Observation{
		ID:                b.ID(),
		Text:              Generated(narrative),
		Status:            fhirmodels.StatusFinal,
		Code:              CodeableConcept{Text: code},
		Subject:           &subject,
		EffectiveDateTime: effective,
		Performer:         SystemPerformer(),
	}
}

// SystemPerformer is the performer recorded on generated resources.
func SystemPerformer() []Reference {
	return []Reference{{Display: fhirmodels.PerformerSystemAuto}}
}

// Today is the current calendar date (YYYY-MM-DD) in the builder's zone.
func (b *Builder) Today() string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return now().In(b.location()).Format("2006-01-02")
}
