package patient

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/validate"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// Service owns the PatientData collection of patient bundles.
type Service struct {
	bundles docstore.Collection
	builder *fhir.Builder
	logger  zerolog.Logger
}

func NewService(store docstore.Store, builder *fhir.Builder, logger zerolog.Logger) *Service {
	return &Service{
		bundles: store.Collection(docstore.PatientData),
		builder: builder,
		logger:  logger.With().Str("component", "patient").Logger(),
	}
}

// Register stores a new patient bundle. Email and username must not already
// appear on another patient bundle.
func (s *Service) Register(ctx context.Context, p PatientData) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if exists, err := s.exists(ctx, fhir.ObservationIs(fhirmodels.CodeEmail, p.Email)); err != nil {
		return "", err
	} else if exists {
		return "", apperr.Conflict("Email already registered with a patient")
	}
	if present(p.Username) {
		if exists, err := s.exists(ctx, fhir.ObservationIs(fhirmodels.CodeUsername, *p.Username)); err != nil {
			return "", err
		} else if exists {
			return "", apperr.Conflict("Username already registered with a patient")
		}
	}

	bundle, err := BuildBundle(s.builder, p)
	if err != nil {
		return "", err
	}
	id, err := s.bundles.InsertOne(ctx, bundle)
	if err != nil {
		return "", apperr.Store("Database insert failed", err)
	}
	s.logger.Info().Str("patient_id", id).Str("user_id", p.UserID).Msg("patient registered")
	return id, nil
}

func (s *Service) exists(ctx context.Context, f docstore.Filter) (bool, error) {
	n, err := s.bundles.Count(ctx, f)
	if err != nil {
		return false, apperr.Store("count patient bundles", err)
	}
	return n > 0, nil
}

// ExportByTherapist returns every patient bundle assigned to therapistEmail.
func (s *Service) ExportByTherapist(ctx context.Context, therapistEmail string) ([]*docstore.Document, error) {
	docs, err := s.bundles.Find(ctx, fhir.ObservationIs(fhirmodels.CodeTherapistAssigned, therapistEmail))
	if err != nil {
		return nil, apperr.Store("find patient bundles", err)
	}
	if docs == nil {
		docs = []*docstore.Document{}
	}
	return docs, nil
}

// ExportByEmail returns the patient bundle registered under email.
func (s *Service) ExportByEmail(ctx context.Context, email string) (*docstore.Document, error) {
	doc, err := s.bundles.FindOne(ctx, fhir.ObservationIs(fhirmodels.CodeEmail, email))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Patient not found")
	}
	if err != nil {
		return nil, apperr.Store("find patient bundle", err)
	}
	return doc, nil
}

// FindSubject resolves the patient bundle holding both an Email observation
// equal to email and a Patient named given/family.
func (s *Service) FindSubject(ctx context.Context, email, given, family string) (*Subject, error) {
	doc, err := s.bundles.FindOne(ctx, fhir.SubjectLookup(email, given, family))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("Patient not found in patient_data_collection")
	}
	if err != nil {
		return nil, apperr.Store("find patient bundle", err)
	}
	bundle, err := fhir.DecodeBundle(doc.Body)
	if err != nil {
		return nil, err
	}
	return &Subject{DocumentID: doc.ID, Bundle: bundle}, nil
}

// MarkHasExercises sets the Flag observation of the patient bundle in place.
// It returns the number of documents modified, 0 when the flag was already set.
func (s *Service) MarkHasExercises(ctx context.Context, documentID string) (int64, error) {
	n, err := s.bundles.UpdateOne(ctx,
		docstore.ByID(documentID),
		docstore.SetWhere("entry",
			[]docstore.Filter{docstore.Eq("resource.code.text", fhirmodels.CodeFlag)},
			"resource.valueString", fhirmodels.FlagHasExercises),
	)
	if err != nil {
		return 0, apperr.Store("update patient flag", err)
	}
	return n, nil
}

// UserIDsForTherapist lists the user ids of the patients assigned to
// therapistEmail.
func (s *Service) UserIDsForTherapist(ctx context.Context, therapistEmail string) ([]string, error) {
	docs, err := s.ExportByTherapist(ctx, therapistEmail)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		bundle, err := fhir.DecodeBundle(doc.Body)
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("skipping undecodable patient bundle")
			continue
		}
		if id, ok := bundle.ObservationString(fhirmodels.CodeUserID); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountForTherapist counts the patients assigned to therapistEmail and the
// patients assigned to any therapist.
func (s *Service) CountForTherapist(ctx context.Context, therapistEmail string) (*CountResponse, error) {
	if err := validate.Email("email", therapistEmail); err != nil {
		return nil, err
	}
	mine, err := s.bundles.Count(ctx, fhir.ObservationIs(fhirmodels.CodeTherapistAssigned, therapistEmail))
	if err != nil {
		return nil, apperr.Store("count patient bundles", err)
	}
	all, err := s.bundles.Count(ctx, fhir.ObservationCoded(fhirmodels.CodeTherapistAssigned))
	if err != nil {
		return nil, apperr.Store("count patient bundles", err)
	}
	return &CountResponse{
		TherapistEmail:               therapistEmail,
		AssignedToThisTherapist:      mine,
		TotalAssignedToAllTherapists: all,
	}, nil
}
