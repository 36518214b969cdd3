package images

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/cloudgallery/pkg/db/dbtest"
	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	dbtypes "github.com/angelmondragon/cloudgallery/pkg/db/types"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cloudgallery/pkg/errors"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/google/uuid"
)

type stubSigner struct {
	calls       int
	key         string
	contentType string
	ttl         time.Duration
	err         error
}

func (s *stubSigner) SignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	s.calls++
	s.key = key
	s.contentType = contentType
	s.ttl = ttl
	if s.err != nil {
		return "", s.err
	}
	return "https://blobs.test/bucket/" + key + "?X-Goog-Expires=900", nil
}

type failingRepo struct {
	createErr error
	listErr   error
}

func (f failingRepo) Create(context.Context, *models.Image) error { return f.createErr }
func (f failingRepo) List(context.Context) ([]models.Image, error) {
	return nil, f.listErr
}
func (f failingRepo) MarkFailed(context.Context, string, enums.FailureReason) (bool, error) {
	return false, nil
}

type countingRecorder struct {
	outcomes []string
}

func (c *countingRecorder) RecordUploadIssued(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func newTestService(t *testing.T, repo imageRepository, signer UploadSigner, bind bool, rec uploadRecorder) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:            repo,
		Signer:          signer,
		Keys:            NewKeyScheme("thumb/"),
		BindContentType: bind,
		Metrics:         rec,
		Logger:          logger.New(logger.Options{ServiceName: "images-test"}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "images-test"})
	if _, err := NewService(ServiceParams{Signer: &stubSigner{}, Logger: logg}); err == nil {
		t.Fatal("expected missing repo error")
	}
	if _, err := NewService(ServiceParams{Repo: failingRepo{}, Logger: logg}); err == nil {
		t.Fatal("expected missing signer error")
	}
	if _, err := NewService(ServiceParams{Repo: failingRepo{}, Signer: &stubSigner{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
	if _, err := NewService(ServiceParams{Repo: failingRepo{}, Signer: &stubSigner{}, Logger: logg, UploadTTL: -time.Second}); err == nil {
		t.Fatal("expected negative ttl error")
	}
}

func TestCreateUploadRecordsThenSigns(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	signer := &stubSigner{}
	rec := &countingRecorder{}
	svc := newTestService(t, repo, signer, true, rec)

	out, err := svc.CreateUpload(ctx, CreateUploadInput{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}

	id, err := uuid.Parse(out.ImageID)
	if err != nil || id.Version() != 4 {
		t.Fatalf("expected a v4 uuid, got %q (%v)", out.ImageID, err)
	}
	if signer.key != out.ImageID+".jpg" {
		t.Fatalf("signer got key %q", signer.key)
	}
	if signer.contentType != "image/png" {
		t.Fatalf("expected bound content type, got %q", signer.contentType)
	}
	if signer.ttl != DefaultUploadTTL {
		t.Fatalf("expected default ttl, got %v", signer.ttl)
	}
	if !strings.Contains(out.UploadURL, out.ImageID+".jpg") {
		t.Fatalf("upload url %q does not reference the raw key", out.UploadURL)
	}

	listed, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var found bool
	for _, img := range listed {
		if img.ImageID == out.ImageID {
			found = true
			if img.Status != enums.ImageStatusUploading {
				t.Fatalf("expected UPLOADING, got %s", img.Status)
			}
			if img.Labels != nil || img.ThumbKey != nil {
				t.Fatal("UPLOADING records must not expose labels or thumbKey")
			}
		}
	}
	if !found {
		t.Fatal("created record missing from listing")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "issued" {
		t.Fatalf("unexpected metrics %v", rec.outcomes)
	}
}

func TestCreateUploadIssuesFreshIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewRepository(dbtest.NewSQLite(t)), &stubSigner{}, true, nil)

	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		out, err := svc.CreateUpload(ctx, CreateUploadInput{ContentType: "image/jpeg"})
		if err != nil {
			t.Fatalf("CreateUpload: %v", err)
		}
		if _, dup := seen[out.ImageID]; dup {
			t.Fatalf("duplicate id %s", out.ImageID)
		}
		seen[out.ImageID] = struct{}{}
	}
}

func TestCreateUploadUnboundContentType(t *testing.T) {
	signer := &stubSigner{}
	svc := newTestService(t, NewRepository(dbtest.NewSQLite(t)), signer, false, nil)

	if _, err := svc.CreateUpload(context.Background(), CreateUploadInput{ContentType: "image/png"}); err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if signer.contentType != "" {
		t.Fatalf("expected no content type binding, got %q", signer.contentType)
	}
}

func TestCreateUploadStoreFailureReturnsNoURL(t *testing.T) {
	signer := &stubSigner{}
	rec := &countingRecorder{}
	svc := newTestService(t, failingRepo{createErr: errors.New("connection refused")}, signer, true, rec)

	out, err := svc.CreateUpload(context.Background(), CreateUploadInput{})
	if out != nil {
		t.Fatalf("expected no output, got %+v", out)
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStoreUnavailable {
		t.Fatalf("expected STORE_UNAVAILABLE, got %v", err)
	}
	if signer.calls != 0 {
		t.Fatal("signer must not run when the record could not be written")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "store_unavailable" {
		t.Fatalf("unexpected metrics %v", rec.outcomes)
	}
}

func TestCreateUploadSignerFailureSettlesRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	svc := newTestService(t, repo, &stubSigner{err: errors.New("kms down")}, true, nil)

	out, err := svc.CreateUpload(ctx, CreateUploadInput{ContentType: "image/png"})
	if out != nil {
		t.Fatalf("expected no output, got %+v", out)
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeIssuerUnavailable {
		t.Fatalf("expected ISSUER_UNAVAILABLE, got %v", err)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one record, got %d", len(rows))
	}
	if rows[0].Status != enums.ImageStatusFailed {
		t.Fatalf("expected FAILED, got %s", rows[0].Status)
	}
	if rows[0].FailureReason == nil || *rows[0].FailureReason != enums.FailureReasonIssuerUnavailable {
		t.Fatalf("unexpected failure reason %v", rows[0].FailureReason)
	}
}

func TestListStoreFailure(t *testing.T) {
	svc := newTestService(t, failingRepo{listErr: errors.New("timeout")}, &stubSigner{}, true, nil)
	if _, err := svc.List(context.Background()); pkgerrors.CodeOf(err) != pkgerrors.CodeStoreUnavailable {
		t.Fatalf("expected STORE_UNAVAILABLE, got %v", err)
	}
}

func TestNormalizeContentType(t *testing.T) {
	tests := map[string]string{
		"":                          DefaultContentType,
		"   ":                       DefaultContentType,
		"image/png":                 "image/png",
		"IMAGE/JPEG; charset=utf-8": "image/jpeg",
		"not a type":                DefaultContentType,
		"image/":                    DefaultContentType,
		";;;":                       DefaultContentType,
	}
	for in, want := range tests {
		if got := NormalizeContentType(in); got != want {
			t.Fatalf("NormalizeContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromModelExposesReadyFieldsOnly(t *testing.T) {
	thumb := "thumb/x.jpg"
	ready := FromModel(models.Image{ImageID: "x", Status: enums.ImageStatusReady, ThumbKey: &thumb})
	if ready.Labels == nil || len(*ready.Labels) != 0 {
		t.Fatalf("READY records expose an empty label list, got %v", ready.Labels)
	}
	if ready.ThumbKey == nil || *ready.ThumbKey != thumb {
		t.Fatalf("unexpected thumb key %v", ready.ThumbKey)
	}

	failed := FromModel(models.Image{ImageID: "y", Status: enums.ImageStatusFailed, ThumbKey: &thumb})
	if failed.Labels != nil || failed.ThumbKey != nil {
		t.Fatal("FAILED records must not expose labels or thumbKey")
	}
}

func TestCreateUploadRedrawsCollidingID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.NewSQLite(t))
	taken := uuid.New()
	thumb := "thumbnails/" + taken.String() + ".jpg"
	seed := &models.Image{
		ImageID:     taken.String(),
		Status:      enums.ImageStatusReady,
		Labels:      dbtypes.StringList{"cat"},
		ThumbKey:    &thumb,
		ContentType: "image/jpeg",
	}
	if err := repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newTestService(t, repo, &stubSigner{}, true, nil).(*service)
	fresh := uuid.New()
	ids := []uuid.UUID{taken, fresh}
	svc.newID = func() uuid.UUID {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	out, err := svc.CreateUpload(ctx, CreateUploadInput{})
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if out.ImageID != fresh.String() {
		t.Fatalf("expected redrawn id %s, got %s", fresh, out.ImageID)
	}
	existing, err := repo.FindByID(ctx, taken.String())
	if err != nil || existing.Status != enums.ImageStatusReady {
		t.Fatalf("existing record must be untouched: %+v %v", existing, err)
	}
}
