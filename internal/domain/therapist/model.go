package therapist

import (
	"github.com/rehab/rehab/internal/platform/validate"
)

// TypeTherapist is the only accepted value of TherapistData.Type.
const TypeTherapist = "therapist"

// TherapistData is the registration record a therapist bundle is built from.
type TherapistData struct {
	Username     string  `json:"username" validate:"notblank"`
	Email        string  `json:"email" validate:"notblank,email"`
	Password     string  `json:"password"`
	Type         string  `json:"type" validate:"oneof=therapist"`
	DOB          *string `json:"dob,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

func (t *TherapistData) Validate() error { return validate.Struct(t) }

type MessageResponse struct {
	Message string `json:"message"`
}

type PhotoResponse struct {
	Message         string `json:"message,omitempty"`
	Email           string `json:"email"`
	ProfileImageURL string `json:"profile_image_url"`
}
