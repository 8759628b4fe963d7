package patient

import (
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/validate"
)

// PatientData is the flat registration record a patient bundle is built from.
// Optional fields are pointers; an absent or empty optional field produces no
// Observation.
type PatientData struct {
	UserID            string   `json:"user_id" validate:"notblank"`
	TherapistAssigned string   `json:"therapist_assigned" validate:"notblank"`
	Username          *string  `json:"username,omitempty"`
	FirstName         string   `json:"first_name" validate:"notblank"`
	LastName          string   `json:"last_name" validate:"notblank"`
	Email             string   `json:"email" validate:"notblank,email"`
	PhoneNumber       string   `json:"phone_number" validate:"notblank"`
	DOB               *string  `json:"dob,omitempty"`
	BloodGroup        *string  `json:"blood_grp,omitempty"`
	Flag              *int     `json:"flag" validate:"required"`
	Height            *float64 `json:"height,omitempty"`
	Weight            *float64 `json:"weight,omitempty"`
	Gender            *string  `json:"gender,omitempty"`
}

func (p *PatientData) Validate() error { return validate.Struct(p) }

func present(s *string) bool { return s != nil && *s != "" }

// Subject is a stored patient bundle resolved for an exercise upload.
type Subject struct {
	DocumentID string
	Bundle     *fhir.Bundle
}

type RegisterResponse struct {
	Message   string `json:"message"`
	PatientID string `json:"patient_id"`
}

type CountResponse struct {
	TherapistEmail               string `json:"therapist_email"`
	AssignedToThisTherapist      int64  `json:"assigned_to_this_therapist"`
	TotalAssignedToAllTherapists int64  `json:"total_assigned_to_all_therapists"`
}
