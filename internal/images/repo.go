package images

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	dbtypes "github.com/angelmondragon/cloudgallery/pkg/db/types"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no record exists for an image id.
var ErrNotFound = errors.New("image record not found")

// Repository exposes image record persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an image repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new record.
func (r *Repository) Create(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// FindByID retrieves a record by image id.
func (r *Repository) FindByID(ctx context.Context, imageID string) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).First(&image, "image_id = ?", imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// List scans every record. Order is unspecified.
func (r *Repository) List(ctx context.Context) ([]models.Image, error) {
	var rows []models.Image
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkReady moves an UPLOADING record to READY. It reports false when the
// record was not UPLOADING, in which case nothing changed.
func (r *Repository) MarkReady(ctx context.Context, imageID string, labels []string, thumbKey string) (bool, error) {
	if labels == nil {
		labels = []string{}
	}
	return r.transition(ctx, imageID, map[string]any{
		"status":    enums.ImageStatusReady,
		"labels":    dbtypes.StringList(labels),
		"thumb_key": thumbKey,
	})
}

// MarkFailed moves an UPLOADING record to FAILED with the given reason.
func (r *Repository) MarkFailed(ctx context.Context, imageID string, reason enums.FailureReason) (bool, error) {
	return r.transition(ctx, imageID, map[string]any{
		"status":         enums.ImageStatusFailed,
		"failure_reason": reason,
	})
}

// ListUploadingBefore returns records still UPLOADING that were created
// before cutoff, oldest first.
func (r *Repository) ListUploadingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Image, error) {
	var rows []models.Image
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ImageStatusUploading, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) transition(ctx context.Context, imageID string, updates map[string]any) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Image{}).
		Where("image_id = ? AND status = ?", imageID, enums.ImageStatusUploading).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
