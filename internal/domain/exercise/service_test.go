package exercise

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/domain/patient"
	"github.com/rehab/rehab/internal/platform/apperr"
	"github.com/rehab/rehab/internal/platform/docstore"
	"github.com/rehab/rehab/internal/platform/fhir"
	"github.com/rehab/rehab/internal/platform/subjectlock"
	"github.com/rehab/rehab/internal/platform/telemetry"
	"github.com/rehab/rehab/pkg/fhirmodels"
)

type testEnv struct {
	svc      *Service
	patients *patient.Service
	store    *docstore.MemoryStore
	metrics  *telemetry.Metrics
}

func newTestEnv() *testEnv {
	store := docstore.NewMemoryStore()
	b := testBuilder()
	patients := patient.NewService(store, b, zerolog.Nop())
	metrics := telemetry.New()
	return &testEnv{
		svc:      NewService(store, patients, subjectlock.NewMemoryLocker(), b, metrics, zerolog.Nop()),
		patients: patients,
		store:    store,
		metrics:  metrics,
	}
}

var anirudh = SubjectKey{Email: "APM@gmail.com", FirstName: "Anirudh", LastName: "Menon"}

func (env *testEnv) registerPatient(t *testing.T, userID string, key SubjectKey, therapist string) {
	t.Helper()
	flag := 0
	_, err := env.patients.Register(context.Background(), patient.PatientData{
		UserID:            userID,
		TherapistAssigned: therapist,
		FirstName:         key.FirstName,
		LastName:          key.LastName,
		Email:             key.Email,
		PhoneNumber:       "+9199202222",
		Flag:              &flag,
	})
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}
}

func (env *testEnv) flag(t *testing.T, email string) string {
	t.Helper()
	doc, err := env.patients.ExportByEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fhir.DecodeBundle(doc.Body)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := b.ObservationString(fhirmodels.CodeFlag)
	return v
}

func rawEntries(t *testing.T, doc *docstore.Document) []json.RawMessage {
	t.Helper()
	var body struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := doc.Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.Entry
}

func TestUploadExercises_CreatesBundleAndSetsFlag(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")

	if got := env.flag(t, anirudh.Email); got != "0" {
		t.Fatalf("expected initial flag 0, got %s", got)
	}

	res, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("10-07-2025")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != telemetry.UploadCreated || res.Message != "New exercise bundle created in test_data_collection" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.UserID != "12345" || res.BundleID == "" {
		t.Errorf("expected user id and bundle id, got %+v", res)
	}
	if got := env.flag(t, anirudh.Email); got != "1" {
		t.Errorf("expected flag 1 after first upload, got %s", got)
	}

	docs, err := env.svc.GetBundles(ctx, "12345")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != res.BundleID {
		t.Fatalf("expected the created bundle, got %d docs", len(docs))
	}
	b, err := fhir.DecodeBundle(docs[0].Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Entry) != 5 || b.Patient() == nil || len(b.DiagnosticReports()) != 1 {
		t.Errorf("unexpected bundle %s", b)
	}
	p, _ := env.patients.ExportByEmail(ctx, anirudh.Email)
	pb, _ := fhir.DecodeBundle(p.Body)
	if b.Patient().ID != pb.Patient().ID {
		t.Errorf("patient stub %s does not reuse patient id %s", b.Patient().ID, pb.Patient().ID)
	}
}

func TestUploadExercises_AppendLeavesExistingEntries(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")

	if _, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("10-07-2025")}); err != nil {
		t.Fatal(err)
	}
	docs, _ := env.svc.GetBundles(ctx, "12345")
	before := rawEntries(t, docs[0])

	second := fsr16Record("11-07-2025")
	second.IndividualReps = append(second.IndividualReps, RepReadings{
		Label:   "rep 2",
		Muscles: []MuscleReadings{{Muscle: "Triceps", Values: []float64{2.0, 2.2, 2.4}}},
	})
	res, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{second})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != telemetry.UploadAppended || res.Message != "Exercise data added to existing test_data_collection bundle" || res.BundleID != "" {
		t.Errorf("unexpected result %+v", res)
	}

	docs, _ = env.svc.GetBundles(ctx, "12345")
	if len(docs) != 1 {
		t.Fatalf("expected a single bundle, got %d", len(docs))
	}
	after := rawEntries(t, docs[0])
	// 5 samples + 1 report.
	if len(after) != len(before)+6 {
		t.Fatalf("expected %d entries, got %d", len(before)+6, len(after))
	}
	for i := range before {
		if string(before[i]) != string(after[i]) {
			t.Errorf("entry %d changed:\n%s\n%s", i, before[i], after[i])
		}
	}
	if got := env.flag(t, anirudh.Email); got != "1" {
		t.Errorf("expected flag to stay 1, got %s", got)
	}

	b, _ := fhir.DecodeBundle(docs[0].Body)
	reports := b.DiagnosticReports()
	if len(reports) != 2 || reports[1].Identifier[0].Value != "Test-1" {
		t.Errorf("expected per-call numbering, got %+v", reports)
	}

	expected := `
# HELP rehab_exercise_uploads_total Exercise session uploads by outcome.
# TYPE rehab_exercise_uploads_total counter
rehab_exercise_uploads_total{outcome="appended"} 1
rehab_exercise_uploads_total{outcome="created"} 1
`
	if err := testutil.GatherAndCompare(env.metrics.Gatherer(), strings.NewReader(expected), "rehab_exercise_uploads_total"); err != nil {
		t.Error(err)
	}
}

func TestUploadExercises_ConcurrentFirstUploadsCreateOneBundle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("10-07-2025")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	docs, _ := env.svc.GetBundles(ctx, "12345")
	if len(docs) != 1 {
		t.Fatalf("expected one bundle, got %d", len(docs))
	}
	b, _ := fhir.DecodeBundle(docs[0].Body)
	if len(b.DiagnosticReports()) != 8 {
		t.Errorf("expected 8 reports, got %d", len(b.DiagnosticReports()))
	}
}

func TestUploadExercises_Errors(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")

	_, err := env.svc.UploadExercises(ctx, SubjectKey{Email: "APM@gmail.com", FirstName: "Someone", LastName: "Else"}, nil)
	if !apperr.Is(err, apperr.KindNotFound) || apperr.Detail(err) != "Patient not found in patient_data_collection" {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("2025-07-10")})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.svc.GetBundles(ctx, "12345"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("rejected upload must not create a bundle, got %v", err)
	}
	if got := env.flag(t, anirudh.Email); got != "0" {
		t.Errorf("rejected upload must not set flag, got %s", got)
	}

	_, err = env.svc.UploadExercises(ctx, SubjectKey{Email: "bad", FirstName: "A", LastName: "B"}, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for email, got %v", err)
	}
}

// -- Mock SubjectDirectory --

type mockSubjects struct {
	subject *patient.Subject
}

func (m *mockSubjects) FindSubject(context.Context, string, string, string) (*patient.Subject, error) {
	return m.subject, nil
}

func (m *mockSubjects) MarkHasExercises(context.Context, string) (int64, error) { return 1, nil }

func (m *mockSubjects) UserIDsForTherapist(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestUploadExercises_SubjectWithoutUserID(t *testing.T) {
	bundle := fhir.NewBundle()
	bundle.Add(&fhir.Patient{ID: "p1"})
	subjects := &mockSubjects{subject: &patient.Subject{DocumentID: "d1", Bundle: bundle}}
	svc := NewService(docstore.NewMemoryStore(), subjects, subjectlock.NewMemoryLocker(), testBuilder(), nil, zerolog.Nop())

	_, err := svc.UploadExercises(context.Background(), anirudh, []ExerciseRecord{fsr16Record("10-07-2025")})
	if !apperr.Is(err, apperr.KindInconsistent) || apperr.Detail(err) != "User ID or Patient ID not found in patient record" {
		t.Errorf("expected inconsistent error, got %v", err)
	}
}

func TestTestsSummary(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")
	other := SubjectKey{Email: "other@gmail.com", FirstName: "Other", LastName: "Patient"}
	env.registerPatient(t, "777", other, "therapist@gmail.com")
	elsewhere := SubjectKey{Email: "else@gmail.com", FirstName: "Else", LastName: "Where"}
	env.registerPatient(t, "999", elsewhere, "someone@gmail.com")

	if _, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("10-07-2025"), fsr16Record("01-07-2025")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UploadExercises(ctx, other, []ExerciseRecord{fsr16Record("10-07-2025")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UploadExercises(ctx, elsewhere, []ExerciseRecord{fsr16Record("10-07-2025")}); err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.TestsSummary(ctx, "therapist@gmail.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalTests != 3 || got.TodayTests != 2 {
		t.Errorf("expected 3 total / 2 today, got %+v", got)
	}

	got, err = env.svc.TestsSummary(ctx, "nobody@gmail.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalTests != 0 || got.TodayTests != 0 || got.TherapistEmail != "nobody@gmail.com" {
		t.Errorf("expected empty summary, got %+v", got)
	}
}

func TestUploadExercises_IncompleteRecordHasNoSideEffect(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ExerciseRecord)
		detail string
	}{
		{"device name", func(r *ExerciseRecord) { r.DeviceName = "" }, "test 2: device_name is required"},
		{"user id", func(r *ExerciseRecord) { r.UserID = " " }, "test 2: user_id is required"},
		{"total muscles", func(r *ExerciseRecord) { r.TotalMuscles = nil }, "test 2: total_muscles is required"},
		{"individual reps", func(r *ExerciseRecord) { r.IndividualReps = nil }, "test 2: individual_reps is required"},
		{"date", func(r *ExerciseRecord) { r.Date = "" }, "test 2: date is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			env.registerPatient(t, "12345", anirudh, "therapist@gmail.com")

			bad := fsr16Record("11-07-2025")
			tt.mutate(&bad)
			_, err := env.svc.UploadExercises(ctx, anirudh, []ExerciseRecord{fsr16Record("10-07-2025"), bad})
			if !apperr.Is(err, apperr.KindValidation) || apperr.Detail(err) != tt.detail {
				t.Fatalf("expected validation error %q, got %v", tt.detail, err)
			}
			if _, err := env.svc.GetBundles(ctx, "12345"); !apperr.Is(err, apperr.KindNotFound) {
				t.Errorf("rejected upload must not create a bundle, got %v", err)
			}
			if got := env.flag(t, anirudh.Email); got != "0" {
				t.Errorf("rejected upload must not set flag, got %s", got)
			}
		})
	}
}
