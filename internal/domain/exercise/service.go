package exercise

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/domain/patient"
	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/subjectlock"
	"github.com/rehab/rehab/internal/platform/telemetry"
	"github.com/rehab/rehab/internal/platform/validate"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

// SubjectDirectory resolves and updates the patient bundles exercise data
// is recorded against. patient.Service implements it.
type SubjectDirectory interface {
	FindSubject(ctx context.Context, email, given, family string) (*patient.Subject, error)
	MarkHasExercises(ctx context.Context, documentID string) (int64, error)
	UserIDsForTherapist(ctx context.Context, therapistEmail string) ([]string, error)
}

// Service merges uploaded exercise tests into one exercise bundle per user.
type Service struct {
	reports  docstore.Collection
	subjects SubjectDirectory
	locker   subjectlock.Locker
	builder  *fhir.Builder
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

func NewService(store docstore.Store, subjects SubjectDirectory, locker subjectlock.Locker, builder *fhir.Builder, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		reports:  store.Collection(docstore.Reports),
		subjects: subjects,
		locker:   locker,
		builder:  builder,
		metrics:  metrics,
		logger:   logger.With().Str("component", "exercise").Logger(),
	}
}

// UploadExercises appends the records to the user's exercise bundle, creating
// the bundle and flagging the patient on the first upload.
func (s *Service) UploadExercises(ctx context.Context, key SubjectKey, records []ExerciseRecord) (*UploadResult, error) {
	res, err := s.upload(ctx, key, records)
	switch {
	case err == nil:
		s.metrics.RecordUpload(res.Outcome)
		s.logger.Info().Str("user_id", res.UserID).Str("outcome", res.Outcome).Int("tests", len(records)).Msg("exercise upload merged")
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound):
		s.metrics.RecordUpload(telemetry.UploadRejected)
	default:
		s.metrics.RecordUpload(telemetry.UploadFailed)
		s.logger.Error().Err(err).Str("email", key.Email).Msg("exercise upload failed")
	}
	return res, err
}

func (s *Service) upload(ctx context.Context, key SubjectKey, records []ExerciseRecord) (*UploadResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := validateRecords(records); err != nil {
		return nil, err
	}
	subject, err := s.subjects.FindSubject(ctx, key.Email, key.FirstName, key.LastName)
	if err != nil {
		return nil, err
	}
	userID, _ := subject.Bundle.ObservationString(fhirmodels.CodeUserID)
	p := subject.Bundle.Patient()
	if userID == "" || p == nil || p.ID == "" {
		return nil, apperr.Inconsistent("User ID or Patient ID not found in patient record")
	}

	unlock, err := s.locker.Lock(ctx, "exercise:"+userID)
	if err != nil {
		return nil, apperr.Store("acquire subject lock", err)
	}
	defer unlock()

	existing, err := s.reports.FindOne(ctx, fhir.ObservationIs(fhirmodels.CodeUserID, userID))
	switch {
	case err == nil:
		return s.appendTo(ctx, existing.ID, userID, p.ID, records)
	case errors.Is(err, docstore.ErrNotFound):
		return s.create(ctx, subject.DocumentID, userID, p.ID, records)
	default:
		return nil, apperr.Store("find exercise bundle", err)
	}
}

func (s *Service) appendTo(ctx context.Context, bundleID, userID, patientID string, records []ExerciseRecord) (*UploadResult, error) {
	bundle, err := BuildBundle(s.builder, userID, patientID, records, false)
	if err != nil {
		return nil, err
	}
	entries := make([]interface{}, len(bundle.Entry))
	for i, e := range bundle.Entry {
		entries[i] = e
	}
	if len(entries) > 0 {
		if _, err := s.reports.UpdateOne(ctx, docstore.ByID(bundleID), docstore.Push("entry", entries...)); err != nil {
			return nil, apperr.Store("append exercise entries", err)
		}
	}
	return &UploadResult{
		Outcome: telemetry.UploadAppended,
		Message: "Exercise data added to existing test_data_collection bundle",
		UserID:  userID,
	}, nil
}

func (s *Service) create(ctx context.Context, subjectDocID, userID, patientID string, records []ExerciseRecord) (*UploadResult, error) {
	bundle, err := BuildBundle(s.builder, userID, patientID, records, true)
	if err != nil {
		return nil, err
	}
	id, err := s.reports.InsertOne(ctx, bundle)
	if err != nil {
		return nil, apperr.Store("insert exercise bundle", err)
	}
	if _, err := s.subjects.MarkHasExercises(ctx, subjectDocID); err != nil {
		return nil, err
	}
	return &UploadResult{
		Outcome:  telemetry.UploadCreated,
		Message:  "New exercise bundle created in test_data_collection",
		UserID:   userID,
		BundleID: id,
	}, nil
}

// GetBundles returns every exercise bundle recorded for userID.
func (s *Service) GetBundles(ctx context.Context, userID string) ([]*docstore.Document, error) {
	docs, err := s.reports.Find(ctx, fhir.ObservationIs(fhirmodels.CodeUserID, userID))
	if err != nil {
		return nil, apperr.Store("find exercise bundles", err)
	}
	if len(docs) == 0 {
		return nil, apperr.NotFound("No exercise bundles found for this user ID")
	}
	return docs, nil
}

// TestsSummary counts the DiagnosticReports in the exercise bundles of every
// patient assigned to therapistEmail, in total and dated today.
func (s *Service) TestsSummary(ctx context.Context, therapistEmail string) (*TestsSummary, error) {
	if err := validate.Required("therapist_email", therapistEmail); err != nil {
		return nil, err
	}
	summary := &TestsSummary{TherapistEmail: therapistEmail}
	ids, err := s.subjects.UserIDsForTherapist(ctx, therapistEmail)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return summary, nil
	}

	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	docs, err := s.reports.Find(ctx, fhir.EntryMatch(fhir.TypeObservation,
		docstore.Eq("resource.code.text", fhirmodels.CodeUserID),
		docstore.In("resource.valueString", values...),
	))
	if err != nil {
		return nil, apperr.Store("find exercise bundles", err)
	}

	today := s.builder.Today()
	for _, doc := range docs {
		bundle, err := fhir.DecodeBundle(doc.Body)
		if err != nil {
			s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("skipping undecodable exercise bundle")
			continue
		}
		for _, r := range bundle.DiagnosticReports() {
			summary.TotalTests++
			if strings.HasPrefix(r.EffectiveDateTime, today) {
				summary.TodayTests++
			}
		}
	}
	return summary, nil
}
