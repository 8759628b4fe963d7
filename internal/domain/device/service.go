package device

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/validate"
)

type Service struct {
	devices DeviceRepository
	logs    ActivityRepository
	now     func() time.Time
	logger  zerolog.Logger
}

func NewService(devices DeviceRepository, logs ActivityRepository, logger zerolog.Logger) *Service {
	return &Service{
		devices: devices,
		logs:    logs,
		now:     time.Now,
		logger:  logger.With().Str("component", "device").Logger(),
	}
}

// Activate binds a device to a company, location and therapist the first
// time it is scanned. Later activations report the original binding.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*ActivationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	d, err := s.devices.GetByIDAndToken(ctx, req.DeviceID, req.Token)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Device not found or token mismatch")
	}
	if err != nil {
		return nil, apperr.Store("find licensed device", err)
	}

	if d.Activated() {
		return &ActivationResponse{
			Message:        "Device already activated",
			DeviceID:       req.DeviceID,
			Company:        d.CompanyName,
			Location:       d.LocationScanned,
			TherapistEmail: d.TherapistEmail,
			ActivatedAt:    d.LicenseActivated,
		}, nil
	}

	at := s.now().UTC()
	if _, err := s.devices.Activate(ctx, d.ID, req.CompanyName, req.LocationScanned, req.TherapistEmail, at); err != nil {
		return nil, apperr.Store("activate licensed device", err)
	}
	s.logger.Info().
		Str("device_id", req.DeviceID).
		Str("company", req.CompanyName).
		Str("therapist_email", req.TherapistEmail).
		Msg("device activated")
	return &ActivationResponse{
		Message:        "Device activated successfully",
		DeviceID:       req.DeviceID,
		Company:        &req.CompanyName,
		Location:       &req.LocationScanned,
		TherapistEmail: &req.TherapistEmail,
	}, nil
}

// Verify checks that deviceID is bound to therapistEmail.
func (s *Service) Verify(ctx context.Context, deviceID, therapistEmail string) (*VerifyResponse, error) {
	if err := validate.First(
		validate.Required("device_id", deviceID),
		validate.Required("therapist_email", therapistEmail),
	); err != nil {
		return nil, err
	}
	_, err := s.devices.GetByIDAndTherapist(ctx, deviceID, therapistEmail)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Device ID and therapist email do not match")
	}
	if err != nil {
		return nil, apperr.Store("find licensed device", err)
	}
	return &VerifyResponse{
		Message:        "Device ID and therapist email match",
		DeviceID:       deviceID,
		TherapistEmail: therapistEmail,
	}, nil
}

// LogActivity records one usage event of a device.
func (s *Service) LogActivity(ctx context.Context, q ActivityQuery) (*LogResponse, error) {
	entry, err := q.Entry()
	if err != nil {
		return nil, err
	}
	id, err := s.logs.Insert(ctx, entry)
	if err != nil {
		return nil, apperr.Store("insert device activity", err)
	}
	return &LogResponse{
		Message: "Device activity logged successfully",
		LogID:   id,
		Data:    entry,
	}, nil
}
