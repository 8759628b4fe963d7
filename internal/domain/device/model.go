package device

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/validate"
)

// LicensedDevice maps to a licensed_devices document. Devices are provisioned
// out of band with an id and an activation token; the remaining fields are
// filled in on first activation.
type LicensedDevice struct {
	ID               string     `json:"-"`
	DeviceID         string     `json:"device_id"`
	Token            string     `json:"token"`
	CompanyName      *string    `json:"company_name,omitempty"`
	LocationScanned  *string    `json:"location_scanned,omitempty"`
	TherapistEmail   *string    `json:"therapist_email,omitempty"`
	LicenseActivated *Timestamp `json:"license_activated,omitempty"`
}

func (d *LicensedDevice) Activated() bool { return d.LicenseActivated != nil }

// Timestamp is an instant stored on device documents. It is written as an
// RFC 3339 string and also reads the {"$date": ...} form Mongo extended JSON
// uses for native dates.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := parseTime(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	var ext struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(data, &ext); err != nil || len(ext.Date) == 0 {
		return fmt.Errorf("timestamp: unsupported value %s", data)
	}
	if err := json.Unmarshal(ext.Date, &s); err == nil {
		parsed, err := parseTime(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	// Canonical extended JSON: {"$date": {"$numberLong": "<millis>"}}.
	var long struct {
		Millis string `json:"$numberLong"`
	}
	if err := json.Unmarshal(ext.Date, &long); err != nil {
		return fmt.Errorf("timestamp: unsupported value %s", data)
	}
	ms, err := strconv.ParseInt(long.Millis, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// timeLayouts are the forms accepted for activity and activation times.
// Naive values are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

// ActivateRequest is the query of GET /activate.
type ActivateRequest struct {
	DeviceID        string `query:"device_id" validate:"notblank"`
	Token           string `query:"token" validate:"notblank"`
	CompanyName     string `query:"company_name" validate:"notblank"`
	LocationScanned string `query:"location_scanned" validate:"notblank"`
	TherapistEmail  string `query:"therapist_email" validate:"notblank"`
}

func (r *ActivateRequest) Validate() error { return validate.Struct(r) }

type ActivationResponse struct {
	Message        string     `json:"message"`
	DeviceID       string     `json:"device_id"`
	Company        *string    `json:"company"`
	Location       *string    `json:"location"`
	TherapistEmail *string    `json:"therapist_email"`
	ActivatedAt    *Timestamp `json:"activated_at,omitempty"`
}

type VerifyResponse struct {
	Message        string `json:"message"`
	DeviceID       string `json:"device_id"`
	TherapistEmail string `json:"therapist_email"`
}

// ActivityQuery is the query of POST /log-device-activity.
type ActivityQuery struct {
	DeviceID       string `query:"device_id" validate:"notblank"`
	Time           string `query:"time" validate:"notblank"`
	TherapistEmail string `query:"therapist_email" validate:"notblank,email"`
	Location       string `query:"location" validate:"notblank"`
}

// ActivityLog maps to a device_log document.
type ActivityLog struct {
	DeviceID       string `json:"device_id"`
	Time           string `json:"time"`
	TherapistEmail string `json:"therapist_email"`
	Location       string `json:"location"`
}

// Entry validates q and normalises its time, keeping the caller's offset.
func (q *ActivityQuery) Entry() (*ActivityLog, error) {
	if err := validate.Struct(q); err != nil {
		return nil, err
	}
	t, err := parseTime(q.Time)
	if err != nil {
		return nil, apperr.Validation("time: %v", err)
	}
	return &ActivityLog{
		DeviceID:       q.DeviceID,
		Time:           t.Format(time.RFC3339Nano),
		TherapistEmail: q.TherapistEmail,
		Location:       q.Location,
	}, nil
}

type LogResponse struct {
	Message string       `json:"message"`
	LogID   string       `json:"log_id"`
	Data    *ActivityLog `json:"data"`
}
