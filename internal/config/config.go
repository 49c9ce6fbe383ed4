package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers for messages and conversation metadata.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Upload drivers.
const (
	UploadDriverCloudinary = "cloudinary"
	UploadDriverS3         = "s3"
)

// Event drivers.
const (
	EventsDriverNone  = "none"
	EventsDriverKafka = "kafka"
	EventsDriverAMQP  = "amqp"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	AppTimezone string

	DatabaseURL      string
	DatabaseMaxConns int
	StorageDriver    string
	MongoURI      string
	MongoDatabase string

	RedisURL        string
	NATSURL         string
	RealtimeChannel string

	JWTSecret   string
	CORSOrigins string

	UploadDriver           string
	UploadMaxSizeMB        int
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	S3Bucket               string
	S3Region               string
	S3Endpoint             string
	S3PublicBaseURL        string

	EventsDriver   string
	KafkaBrokers   []string
	KafkaTopic     string
	AMQPURL        string
	AMQPExchange   string
	TypingStale    time.Duration
	FeedLimit      int
	WindowInterval time.Duration
	RateLimitMax   int
	RateLimitSpan  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Location resolves the configured time zone used for send-window decisions.
func (c Config) Location() (*time.Location, error) {
	if c.AppTimezone == "" || strings.EqualFold(c.AppTimezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.AppTimezone)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GROUPCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Group Chat API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.timezone", "Local")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("cors.origins", "*")
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("mongo.database", "groupchat")
	v.SetDefault("realtime.channel", "groupchat")
	v.SetDefault("upload.driver", UploadDriverCloudinary)
	v.SetDefault("upload.max_size_mb", 25)
	v.SetDefault("cloudinary.folder", "groupchat/media")
	v.SetDefault("events.driver", EventsDriverNone)
	v.SetDefault("kafka.topic", "groupchat.messages")
	v.SetDefault("amqp.exchange", "groupchat.events")
	v.SetDefault("typing.stale_after", "10s")
	v.SetDefault("feed.limit", 500)
	v.SetDefault("sendwindow.interval", "1m")
	v.SetDefault("ratelimit.max", 60)
	v.SetDefault("ratelimit.window", "1m")

	typingStale, err := parseDuration(v, "typing.stale_after", "10s")
	if err != nil {
		return Config{}, err
	}
	windowInterval, err := parseDuration(v, "sendwindow.interval", "1m")
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := parseDuration(v, "ratelimit.window", "1m")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AppTimezone:            v.GetString("app.timezone"),
		DatabaseURL:            v.GetString("database.url"),
		DatabaseMaxConns:       v.GetInt("database.max_conns"),
		StorageDriver:          strings.ToLower(v.GetString("storage.driver")),
		MongoURI:               v.GetString("mongo.uri"),
		MongoDatabase:          v.GetString("mongo.database"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CORSOrigins:            v.GetString("cors.origins"),
		UploadDriver:           strings.ToLower(v.GetString("upload.driver")),
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		S3Bucket:               v.GetString("s3.bucket"),
		S3Region:               v.GetString("s3.region"),
		S3Endpoint:             v.GetString("s3.endpoint"),
		S3PublicBaseURL:        v.GetString("s3.public_base_url"),
		EventsDriver:           strings.ToLower(v.GetString("events.driver")),
		KafkaBrokers:           splitList(v.GetString("kafka.brokers")),
		KafkaTopic:             v.GetString("kafka.topic"),
		AMQPURL:                v.GetString("amqp.url"),
		AMQPExchange:           v.GetString("amqp.exchange"),
		TypingStale:            typingStale,
		FeedLimit:              v.GetInt("feed.limit"),
		WindowInterval:         windowInterval,
		RateLimitMax:           v.GetInt("ratelimit.max"),
		RateLimitSpan:          rateWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
	case StorageDriverMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("mongo uri must be provided when storage driver is mongo")
		}
	default:
		return Config{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.UploadDriver {
	case UploadDriverCloudinary:
	case UploadDriverS3:
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("s3 bucket must be provided when upload driver is s3")
		}
	default:
		return Config{}, fmt.Errorf("unsupported upload driver %q", cfg.UploadDriver)
	}

	switch cfg.EventsDriver {
	case "", EventsDriverNone:
		cfg.EventsDriver = EventsDriverNone
	case EventsDriverKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return Config{}, fmt.Errorf("kafka brokers must be provided when events driver is kafka")
		}
	case EventsDriverAMQP:
		if cfg.AMQPURL == "" {
			return Config{}, fmt.Errorf("amqp url must be provided when events driver is amqp")
		}
	default:
		return Config{}, fmt.Errorf("unsupported events driver %q", cfg.EventsDriver)
	}

	if _, err := cfg.Location(); err != nil {
		return Config{}, fmt.Errorf("invalid app timezone: %w", err)
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 25
	}
	if cfg.DatabaseMaxConns <= 0 {
		cfg.DatabaseMaxConns = 20
	}
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = 500
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 60
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
