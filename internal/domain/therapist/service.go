package therapist

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/validate"
)

// Accounts is what therapist registration needs from the User collection.
type Accounts interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateTherapistUser(ctx context.Context, username, email, password string) error
	DefaultPassword() string
}

// PhotoUpload is a profile image received for a therapist.
type PhotoUpload struct {
	Email       string
	Filename    string
	ContentType string
	Data        []byte
}

type Service struct {
	bundles     docstore.Collection
	accounts    Accounts
	blobs       blobstore.BlobStore
	imagePrefix string
	builder     *fhir.Builder
	logger      zerolog.Logger
}

func NewService(store docstore.Store, accounts Accounts, blobs blobstore.BlobStore, imagePrefix string, builder *fhir.Builder, logger zerolog.Logger) *Service {
	return &Service{
		bundles:     store.Collection(docstore.Therapists),
		accounts:    accounts,
		blobs:       blobs,
		imagePrefix: imagePrefix,
		builder:     builder,
		logger:      logger.With().Str("component", "therapist").Logger(),
	}
}

// Register stores the therapist's Practitioner bundle and the login row that
// goes with it.
func (s *Service) Register(ctx context.Context, t TherapistData) error {
	if err := t.Validate(); err != nil {
		return err
	}
	n, err := s.bundles.Count(ctx, fhir.PractitionerEmail(t.Email))
	if err != nil {
		return apperr.Store("count therapist bundles", err)
	}
	if n > 0 {
		return apperr.Conflict("Email already registered as therapist")
	}
	taken, err := s.accounts.EmailTaken(ctx, t.Email)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("Email already registered in user collection")
	}
	if t.Password == "" {
		t.Password = s.accounts.DefaultPassword()
	}

	bundle, err := BuildBundle(s.builder, t)
	if err != nil {
		return err
	}
	id, err := s.bundles.InsertOne(ctx, bundle)
	if err != nil {
		return apperr.Store("insert therapist bundle", err)
	}
	if err := s.accounts.CreateTherapistUser(ctx, t.Username, t.Email, t.Password); err != nil {
		return err
	}
	s.logger.Info().Str("bundle_id", id).Str("email", t.Email).Msg("therapist registered")
	return nil
}

// Get returns the therapist bundle whose Practitioner has email.
func (s *Service) Get(ctx context.Context, email string) (*docstore.Document, error) {
	doc, err := s.bundles.FindOne(ctx, fhir.PractitionerEmail(email))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Therapist not found")
	}
	if err != nil {
		return nil, apperr.Store("find therapist bundle", err)
	}
	return doc, nil
}

// photoKey names the blob for an upload: <prefix>/<email>_<uuid>.<ext>.
func (s *Service) photoKey(email, filename string) string {
	ext := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = filename[i+1:]
	}
	return path.Join(s.imagePrefix, email+"_"+uuid.NewString()+"."+ext)
}

// UploadProfilePhoto stores the image and points the Practitioner's photo at
// it, replacing any previous photo.
func (s *Service) UploadProfilePhoto(ctx context.Context, up PhotoUpload) (*PhotoResponse, error) {
	if err := validate.Email("email", up.Email); err != nil {
		return nil, err
	}
	if err := blobstore.ValidateImage(up.ContentType, len(up.Data)); err != nil {
		return nil, apperr.Validation("profile_image: %v", err)
	}
	doc, err := s.Get(ctx, up.Email)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.Put(ctx, s.photoKey(up.Email, up.Filename), up.ContentType, up.Data)
	if err != nil {
		return nil, apperr.Store("upload profile image", err)
	}

	n, err := s.bundles.UpdateOne(ctx,
		docstore.ByID(doc.ID),
		docstore.SetWhere("entry",
			[]docstore.Filter{
				docstore.Eq("resource.resourceType", fhir.TypePractitioner),
				docstore.Eq("resource.telecom.value", up.Email),
			},
			"resource.photo", []fhir.Attachment{{ContentType: up.ContentType, URL: url}}),
	)
	if err != nil {
		return nil, apperr.Store("update practitioner photo", err)
	}
	if n == 0 {
		return nil, apperr.Inconsistent("Practitioner not found in bundle")
	}
	s.logger.Info().Str("email", up.Email).Str("url", url).Msg("profile photo updated")
	return &PhotoResponse{
		Message:         "Profile photo uploaded and linked to therapist successfully",
		Email:           up.Email,
		ProfileImageURL: url,
	}, nil
}

// ProfileImage returns the URL of the Practitioner's first photo.
func (s *Service) ProfileImage(ctx context.Context, email string) (*PhotoResponse, error) {
	doc, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	bundle, err := fhir.DecodeBundle(doc.Body)
	if err != nil {
		return nil, err
	}
	p := bundle.Practitioner()
	if p == nil || len(p.Photo) == 0 || p.Photo[0].URL == "" {
		return nil, apperr.NotFound("Profile image not found")
	}
	return &PhotoResponse{Email: email, ProfileImageURL: p.Photo[0].URL}, nil
}
