package account

import (
	"github.com/rehab/rehab/internal/platform/validate"
)

// User types.
const (
	TypePatient   = "patient"
	TypeTherapist = "therapist"
)

// therapistPhone is stored for therapist user rows, which carry no phone.
const therapistPhone = "string"

// User is a row of the User collection.
type User struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Type        string `json:"type"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"notblank,email"`
	Password string `json:"password"`
	Type     string `json:"type" validate:"oneof=therapist"`
}

func (r *LoginRequest) Validate() error { return validate.Struct(r) }

type LoginResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Type     string `json:"type"`
}

type RegisterRequest struct {
	Username    string  `json:"username" validate:"notblank"`
	Email       string  `json:"email" validate:"notblank,email"`
	Type        string  `json:"type" validate:"oneof=patient therapist"`
	Password    *string `json:"password"`
	PhoneNumber string  `json:"phone_number" validate:"notblank"`
}

func (r *RegisterRequest) Validate() error { return validate.Struct(r) }

type ChangePasswordRequest struct {
	Email       string `json:"email" validate:"notblank,email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"notblank"`
}

func (r *ChangePasswordRequest) Validate() error { return validate.Struct(r) }

// MessageResponse is the body of operations that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}
