package config

// EnvPrefix is handed to envconfig; every field sets its full name explicitly.
const EnvPrefix = "GALLERY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	BlobBackendGCS = "gcs"
	BlobBackendS3  = "s3"

	LabelsBackendVision      = "vision"
	LabelsBackendRekognition = "rekognition"
)

const defaultSQLiteDSN = "file:gallery.db?cache=shared&_busy_timeout=5000"

const (
	EnvAppEnv            = "GALLERY_APP_ENV"
	EnvPort              = "GALLERY_APP_PORT"
	EnvDBDSN             = "GALLERY_DB_DSN"
	EnvDBHost            = "GALLERY_DB_HOST"
	EnvDBUser            = "GALLERY_DB_USER"
	EnvDBName            = "GALLERY_DB_NAME"
	EnvUseSQLite         = "GALLERY_USE_SQLITE"
	EnvRedisURL          = "GALLERY_REDIS_URL"
	EnvEnableCORS        = "GALLERY_ENABLE_CORS"
	EnvBindContentType   = "GALLERY_BIND_CONTENT_TYPE"
	EnvEnableWebhook     = "GALLERY_ENABLE_EVENT_WEBHOOK"
	EnvGCPProjectID      = "GALLERY_GCP_PROJECT_ID"
	EnvBlobBackend       = "GALLERY_BLOB_BACKEND"
	EnvBlobBucket        = "GALLERY_BLOB_BUCKET"
	EnvUploadURLTTL      = "GALLERY_UPLOAD_URL_TTL"
	EnvDerivativePrefix  = "GALLERY_DERIVATIVE_PREFIX"
	EnvLabelsBackend     = "GALLERY_LABELS_BACKEND"
	EnvLabelsMax         = "GALLERY_LABELS_MAX"
	EnvThumbMaxDimension = "GALLERY_THUMB_MAX_DIMENSION"
	EnvMaxDeliveries     = "GALLERY_PIPELINE_MAX_DELIVERIES"
	EnvImageSubscription = "GALLERY_PUBSUB_IMAGE_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
