package account

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
)

type Service struct {
	users           UserRepository
	defaultPassword string
	logger          zerolog.Logger
}

func NewService(users UserRepository, defaultPassword string, logger zerolog.Logger) *Service {
	return &Service{
		users:           users,
		defaultPassword: defaultPassword,
		logger:          logger.With().Str("component", "account").Logger(),
	}
}

// DefaultPassword is assigned to accounts registered without one.
func (s *Service) DefaultPassword() string { return s.defaultPassword }

// Login checks the password of the user registered under req.Email. The
// comparison is plaintext, matching how passwords are stored.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Store("find user", err)
	}
	if u.Password != req.Password {
		return nil, apperr.Unauthorized("Incorrect password")
	}
	return &LoginResponse{Message: "Login successful", Username: u.Username, Type: u.Type}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	taken, err := s.EmailTaken(ctx, req.Email)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("Email already registered")
	}
	_, err = s.users.GetByUsername(ctx, req.Username)
	switch {
	case err == nil:
		return apperr.Conflict("Username already taken")
	case !errors.Is(err, docstore.ErrNotFound):
		return apperr.Store("find user", err)
	}

	password := s.defaultPassword
	if req.Password != nil && *req.Password != "" {
		password = *req.Password
	}
	if _, err := s.users.Create(ctx, &User{
		Username:    req.Username,
		Email:       req.Email,
		Type:        req.Type,
		Password:    password,
		PhoneNumber: req.PhoneNumber,
	}); err != nil {
		return apperr.Store("insert user", err)
	}
	s.logger.Info().Str("username", req.Username).Str("type", req.Type).Msg("user registered")
	return nil
}

// EmailTaken reports whether a user row exists for email.
func (s *Service) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, docstore.ErrNotFound):
		return false, nil
	default:
		return false, apperr.Store("find user", err)
	}
}

// CreateTherapistUser inserts the login row backing a therapist record.
func (s *Service) CreateTherapistUser(ctx context.Context, username, email, password string) error {
	if password == "" {
		password = s.defaultPassword
	}
	_, err := s.users.Create(ctx, &User{
		Username:    username,
		Email:       email,
		Type:        TypeTherapist,
		Password:    password,
		PhoneNumber: therapistPhone,
	})
	return apperr.Store("insert therapist user", err)
}

func (s *Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	u, err := s.users.GetByEmailAndType(ctx, req.Email, TypeTherapist)
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound("Therapist not found")
	}
	if err != nil {
		return apperr.Store("find therapist user", err)
	}
	if u.Password != req.OldPassword {
		return apperr.Unauthorized("Incorrect old password")
	}
	n, err := s.users.UpdatePassword(ctx, req.Email, TypeTherapist, req.NewPassword)
	if err != nil {
		return apperr.Store("update password", err)
	}
	if n != 1 {
		return apperr.Inconsistent("Password update failed")
	}
	s.logger.Info().Str("email", req.Email).Msg("therapist password changed")
	return nil
}
