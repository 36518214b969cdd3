package models

import (
	"time"

	dbtypes "github.com/angelmondragon/cloudgallery/pkg/db/types"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
)

// Image is the lifecycle record for one uploaded image.
type Image struct {
	ImageID       string               `gorm:"column:image_id;primaryKey"`
	Status        enums.ImageStatus    `gorm:"column:status;not null;default:UPLOADING"`
	Labels        dbtypes.StringList   `gorm:"column:labels;type:text"`
	ThumbKey      *string              `gorm:"column:thumb_key"`
	ContentType   string               `gorm:"column:content_type;not null"`
	FailureReason *enums.FailureReason `gorm:"column:failure_reason"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Image) TableName() string {
	return "images"
}
