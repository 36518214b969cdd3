package images

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/angelmondragon/cloudgallery/pkg/db"
	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	pkgerrors "github.com/angelmondragon/cloudgallery/pkg/errors"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
	"github.com/google/uuid"
)

const (
	DefaultContentType = "application/octet-stream"
	DefaultUploadTTL   = 900 * time.Second

	createAttempts = 3
)

type imageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	List(ctx context.Context) ([]models.Image, error)
	MarkFailed(ctx context.Context, imageID string, reason enums.FailureReason) (bool, error)
}

// UploadSigner mints a time-limited write URL for exactly one object key.
// An empty contentType leaves the URL unbound to a media type.
type UploadSigner interface {
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

type uploadRecorder interface {
	RecordUploadIssued(outcome string)
}

// Service handles upload requests and listings.
type Service interface {
	CreateUpload(ctx context.Context, input CreateUploadInput) (*CreateUploadOutput, error)
	List(ctx context.Context) ([]ImageDTO, error)
}

type ServiceParams struct {
	Repo            imageRepository
	Signer          UploadSigner
	Keys            KeyScheme
	UploadTTL       time.Duration
	BindContentType bool
	Metrics         uploadRecorder
	Logger          *logger.Logger
}

type service struct {
	repo            imageRepository
	signer          UploadSigner
	keys            KeyScheme
	uploadTTL       time.Duration
	bindContentType bool
	metrics         uploadRecorder
	logg            *logger.Logger
	newID           func() uuid.UUID
	now             func() time.Time
}

// NewService validates dependencies and builds the upload coordinator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("image repository required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("upload signer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.UploadTTL
	if ttl == 0 {
		ttl = DefaultUploadTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("upload ttl must be positive")
	}
	keys := params.Keys
	if keys.DerivativePrefix() == "" {
		keys = NewKeyScheme(DefaultDerivativePrefix)
	}
	return &service{
		repo:            params.Repo,
		signer:          params.Signer,
		keys:            keys,
		uploadTTL:       ttl,
		bindContentType: params.BindContentType,
		metrics:         params.Metrics,
		logg:            params.Logger,
		newID:           uuid.New,
		now:             time.Now,
	}, nil
}

type CreateUploadInput struct {
	ContentType string
}

type CreateUploadOutput struct {
	ImageID   string    `json:"imageId"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"-"`
}

// CreateUpload writes the UPLOADING record before minting the URL, so a
// credential never exists for an untracked key.
func (s *service) CreateUpload(ctx context.Context, input CreateUploadInput) (*CreateUploadOutput, error) {
	contentType := NormalizeContentType(input.ContentType)
	id, record, err := s.createRecord(ctx, contentType)
	if err != nil {
		s.record("store_unavailable")
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "create image record")
	}
	ctx = s.logg.WithImageID(ctx, id.String())

	bound := ""
	if s.bindContentType {
		bound = contentType
	}
	expiresAt := s.now().Add(s.uploadTTL)
	url, err := s.signer.SignUpload(ctx, s.keys.RawKey(id), bound, s.uploadTTL)
	if err != nil {
		s.record("issuer_unavailable")
		if _, markErr := s.repo.MarkFailed(ctx, record.ImageID, enums.FailureReasonIssuerUnavailable); markErr != nil {
			s.logg.Error(ctx, "failed to settle record after signer error", markErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeIssuerUnavailable, err, "sign upload url")
	}

	s.record("issued")
	s.logg.Info(s.logg.WithField(ctx, "content_type", contentType), "upload target issued")
	return &CreateUploadOutput{
		ImageID:   record.ImageID,
		UploadURL: url,
		ExpiresAt: expiresAt,
	}, nil
}

// createRecord draws a fresh id when the first one collides with an
// existing record.
func (s *service) createRecord(ctx context.Context, contentType string) (uuid.UUID, *models.Image, error) {
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		id := s.newID()
		record := &models.Image{
			ImageID:     id.String(),
			Status:      enums.ImageStatusUploading,
			ContentType: contentType,
		}
		err = s.repo.Create(ctx, record)
		if err == nil {
			return id, record, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return uuid.Nil, nil, err
		}
	}
	return uuid.Nil, nil, err
}

func (s *service) List(ctx context.Context) ([]ImageDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "list image records")
	}
	return FromModels(rows), nil
}

func (s *service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordUploadIssued(outcome)
	}
}

// NormalizeContentType returns the bare, lower-cased media type, or the
// generic binary type when the input is absent or malformed.
func NormalizeContentType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil || !strings.Contains(mediaType, "/") {
		return DefaultContentType
	}
	return mediaType
}
