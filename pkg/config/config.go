package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Blob         BlobConfig
	S3           S3Config
	Labels       LabelsConfig
	Thumbnail    ThumbnailConfig
	Pipeline     PipelineConfig
	PubSub       PubSubConfig
	Metrics      MetricsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("GALLERY_DB_DRIVER must be one of %q or %q", DBDriverPostgres, DBDriverSQLite)
	}
	switch c.Blob.Backend {
	case BlobBackendGCS, BlobBackendS3:
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvBlobBackend, BlobBackendGCS, BlobBackendS3)
	}
	switch c.Labels.Backend {
	case LabelsBackendVision, LabelsBackendRekognition:
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvLabelsBackend, LabelsBackendVision, LabelsBackendRekognition)
	}
	if strings.TrimSpace(c.Blob.DerivativePrefix) == "" {
		return fmt.Errorf("%s must not be empty", EnvDerivativePrefix)
	}
	if c.Blob.UploadURLTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvUploadURLTTL)
	}
	if c.Labels.MaxLabels <= 0 {
		return fmt.Errorf("%s must be positive", EnvLabelsMax)
	}
	if c.Thumbnail.MaxDimension <= 0 {
		return fmt.Errorf("%s must be positive", EnvThumbMaxDimension)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"GALLERY_APP_ENV" required:"true"`
	Port         string `envconfig:"GALLERY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GALLERY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GALLERY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GALLERY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GALLERY_DB_DSN"`
	Driver string `envconfig:"GALLERY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GALLERY_DB_HOST"`
	LegacyPort     int    `envconfig:"GALLERY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GALLERY_DB_USER"`
	LegacyPassword string `envconfig:"GALLERY_DB_PASSWORD"`
	LegacyName     string `envconfig:"GALLERY_DB_NAME"`
	LegacySSLMode  string `envconfig:"GALLERY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GALLERY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GALLERY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GALLERY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GALLERY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GALLERY_REDIS_URL"`
	Address      string        `envconfig:"GALLERY_REDIS_ADDR"`
	Password     string        `envconfig:"GALLERY_REDIS_PASSWORD"`
	DB           int           `envconfig:"GALLERY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GALLERY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GALLERY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GALLERY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GALLERY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GALLERY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"GALLERY_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"GALLERY_AUTO_MIGRATE" default:"false"`
	EnableCORS      bool `envconfig:"GALLERY_ENABLE_CORS" default:"true"`
	BindContentType bool `envconfig:"GALLERY_BIND_CONTENT_TYPE" default:"true"`
	// EnableEventWebhook mounts POST /events/s3 on the api for S3/MinIO
	// bucket notifications.
	EnableEventWebhook bool `envconfig:"GALLERY_ENABLE_EVENT_WEBHOOK" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GALLERY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GALLERY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GALLERY_GOOGLE_APPLICATION_CREDENTIALS"`
}

// BlobConfig selects the blob store holding raw uploads and derivatives.
type BlobConfig struct {
	Backend          string        `envconfig:"GALLERY_BLOB_BACKEND" default:"gcs"`
	Bucket           string        `envconfig:"GALLERY_BLOB_BUCKET" required:"true"`
	UploadURLTTL     time.Duration `envconfig:"GALLERY_UPLOAD_URL_TTL" default:"900s"`
	DerivativePrefix string        `envconfig:"GALLERY_DERIVATIVE_PREFIX" default:"thumb/"`
}

type S3Config struct {
	Region          string `envconfig:"GALLERY_S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"GALLERY_S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"GALLERY_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"GALLERY_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"GALLERY_S3_USE_PATH_STYLE" default:"false"`
}

type LabelsConfig struct {
	Backend   string `envconfig:"GALLERY_LABELS_BACKEND" default:"vision"`
	MaxLabels int    `envconfig:"GALLERY_LABELS_MAX" default:"5"`
	Endpoint  string `envconfig:"GALLERY_LABELS_ENDPOINT"`
}

type ThumbnailConfig struct {
	MaxDimension int `envconfig:"GALLERY_THUMB_MAX_DIMENSION" default:"256"`
	Quality      int `envconfig:"GALLERY_THUMB_QUALITY" default:"85"`
	LabelQuality int `envconfig:"GALLERY_LABEL_IMAGE_QUALITY" default:"90"`
}

// PipelineConfig bounds the asynchronous transform stage.
type PipelineConfig struct {
	Concurrency      int           `envconfig:"GALLERY_PIPELINE_CONCURRENCY" default:"4"`
	CallTimeout      time.Duration `envconfig:"GALLERY_PIPELINE_CALL_TIMEOUT" default:"10s"`
	FetchRetries     int           `envconfig:"GALLERY_PIPELINE_FETCH_RETRIES" default:"3"`
	LabelRetries     int           `envconfig:"GALLERY_PIPELINE_LABEL_RETRIES" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"GALLERY_PIPELINE_RETRY_BASE_DELAY" default:"200ms"`
	MaxDeliveries    int           `envconfig:"GALLERY_PIPELINE_MAX_DELIVERIES" default:"5"`
	AttemptWindow    time.Duration `envconfig:"GALLERY_PIPELINE_ATTEMPT_WINDOW" default:"24h"`
	StaleUploadAfter time.Duration `envconfig:"GALLERY_PIPELINE_STALE_UPLOAD_AGE" default:"24h"`
}

type PubSubConfig struct {
	ImageSubscription string `envconfig:"GALLERY_PUBSUB_IMAGE_SUBSCRIPTION"`
}

type MetricsConfig struct {
	Addr string `envconfig:"GALLERY_METRICS_ADDR" default:":9090"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"GALLERY_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
