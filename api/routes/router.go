package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/cloudgallery/api/controllers"
	"github.com/angelmondragon/cloudgallery/api/middleware"
	"github.com/angelmondragon/cloudgallery/internal/images"
	"github.com/angelmondragon/cloudgallery/pkg/config"
	"github.com/angelmondragon/cloudgallery/pkg/logger"
)

// NewRouter builds the HTTP surface. dispatcher and metricsHandler are
// optional; their routes are only mounted when they are set.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	imageService images.Service,
	dispatcher controllers.Dispatcher,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	if cfg.FeatureFlags.EnableCORS {
		r.Use(middleware.CORS())
	}
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	r.MethodNotAllowed(controllers.MethodNotAllowed(logg))
	r.NotFound(controllers.NotFound(logg))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Options("/images", controllers.ImagesPreflight())
	r.Get("/images", controllers.ImagesList(imageService, logg))
	r.Post("/images", controllers.ImagesCreate(imageService, logg))

	if dispatcher != nil {
		r.Post("/events/s3", controllers.S3Events(dispatcher, logg))
	}
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	return r
}
