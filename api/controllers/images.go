package controllers

import (
	"net/http"

	"github.com/angelmondragon/cloudgallery/api/responses"
	"github.com/angelmondragon/cloudgallery/api/validators"
	"github.com/angelmondragon/cloudgallery/internal/images"
	pkgerrors "github.com/angelmondragon/cloudgallery/pkg/errors"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

const maxContentTypeLen = 255

// ContentType is decoded loosely: a malformed value falls back to the
// generic binary type rather than failing the request.
type createImageRequest struct {
	ContentType any `json:"contentType"`
}

// ImagesPreflight answers OPTIONS /images.
func ImagesPreflight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, "ok")
	}
}

// ImagesList returns every image record as a bare JSON array.
func ImagesList(svc images.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if items == nil {
			items = []images.ImageDTO{}
		}
		responses.WriteSuccess(w, items)
	}
}

// ImagesCreate records a new upload and returns its signed upload target.
func ImagesCreate(svc images.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createImageRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := svc.CreateUpload(r.Context(), images.CreateUploadInput{
			ContentType: validators.LenientString(req.ContentType, maxContentTypeLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusCreated, out)
	}
}

// MethodNotAllowed is the router's 405 handler.
func MethodNotAllowed(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMethodNotAllowed, r.Method+" "+r.URL.Path))
	}
}

func NotFound(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	}
}
