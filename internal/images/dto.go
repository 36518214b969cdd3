package images

import (
	"github.com/angelmondragon/cloudgallery/pkg/db/models"
	"github.com/angelmondragon/cloudgallery/pkg/enums"
)

// ImageDTO is the public record shape. Labels and ThumbKey are only present
// for READY records.
type ImageDTO struct {
	ImageID  string            `json:"imageId"`
	Status   enums.ImageStatus `json:"status"`
	Labels   *[]string         `json:"labels,omitempty"`
	ThumbKey *string           `json:"thumbKey,omitempty"`
}

func FromModel(m models.Image) ImageDTO {
	dto := ImageDTO{
		ImageID: m.ImageID,
		Status:  m.Status,
	}
	if m.Status != enums.ImageStatusReady {
		return dto
	}

	labels := []string{}
	if m.Labels != nil {
		labels = append(labels, m.Labels...)
	}
	dto.Labels = &labels
	if m.ThumbKey != nil {
		thumb := *m.ThumbKey
		dto.ThumbKey = &thumb
	}
	return dto
}

func FromModels(rows []models.Image) []ImageDTO {
	out := make([]ImageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out
}
