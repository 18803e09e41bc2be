package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patient-idv/internal/application/facematch"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables    DynamoTables
	DynamoBootstrap bool

	StorageDriver  string // "s3" or "azure"
	S3BucketName   string
	AzureAccount   string
	AzureKey       string
	AzureContainer string

	RedisURL       string
	ReceiptLockTTL time.Duration

	EmailTicketPublicKeyPath  string
	EmailTicketPrivateKeyPath string // only needed by the OTP flow that issues tickets
	EmailTicketExpiry         time.Duration

	SNSRegion        string
	SNSAlertTopicARN string

	AllowedOrigins []string // CORS allowed origins

	Face FaceConfig
	OCR  OCRConfig

	MaxDocumentBytes int64
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Registrations string
}

// FaceConfig holds the face matcher thresholds and quality gates.
type FaceConfig struct {
	CrossThreshold        float64
	SelfThreshold         float64
	MinConfidence         float64
	MinFallbackConfidence float64
	MinLiveArea           float64
	MinDocumentArea       float64
	DocumentBinding       bool
	DetectorModelPath     string
	DetectorConfigPath    string
	CascadePath           string
	EmbedderModelPath     string
}

// Policy returns the face matching policy these settings describe. The
// capture client and the server must build it the same way.
func (f FaceConfig) Policy() facematch.Policy {
	p := facematch.DefaultPolicy()
	p.CrossThreshold = f.CrossThreshold
	p.SelfThreshold = f.SelfThreshold
	p.MinConfidence = f.MinConfidence
	p.MinFallbackConfidence = f.MinFallbackConfidence
	p.MinLiveArea = f.MinLiveArea
	p.MinDocumentArea = f.MinDocumentArea
	return p
}

// OCRConfig controls the document number gate.
type OCRConfig struct {
	Enabled      bool
	TesseractBin string
	Timeout      time.Duration
	DebugLogPath string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			Registrations: getEnv("DYNAMO_TABLE_REGISTRATIONS", "registrations"),
		},
		DynamoBootstrap: getEnvBool("DYNAMO_BOOTSTRAP", false),

		StorageDriver:  getEnv("STORAGE_DRIVER", "s3"),
		S3BucketName:   getEnv("S3_BUCKET_NAME", "patient-id-documents"),
		AzureAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		AzureKey:       getEnv("AZURE_STORAGE_KEY", ""),
		AzureContainer: getEnv("AZURE_STORAGE_CONTAINER", "id-documents"),

		RedisURL:       getEnv("REDIS_URL", ""),
		ReceiptLockTTL: getEnvDuration("RECEIPT_LOCK_TTL", 24*time.Hour),

		EmailTicketPublicKeyPath:  getEnv("EMAIL_TICKET_PUBLIC_KEY_PATH", "./email_ticket_public.pem"),
		EmailTicketPrivateKeyPath: getEnv("EMAIL_TICKET_PRIVATE_KEY_PATH", ""),
		EmailTicketExpiry:         getEnvDuration("EMAIL_TICKET_EXPIRY", 30*time.Minute),

		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		SNSAlertTopicARN: getEnv("SNS_ALERT_TOPIC_ARN", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		Face: FaceConfig{
			CrossThreshold:        getEnvFloat("FACE_CROSS_THRESHOLD", 0.58),
			SelfThreshold:         getEnvFloat("FACE_SELF_THRESHOLD", 0.50),
			MinConfidence:         getEnvFloat("FACE_MIN_CONFIDENCE", 0.6),
			MinFallbackConfidence: getEnvFloat("FACE_MIN_FALLBACK_CONFIDENCE", 0.45),
			MinLiveArea:           getEnvFloat("FACE_MIN_LIVE_AREA", 0.08),
			MinDocumentArea:       getEnvFloat("FACE_MIN_DOCUMENT_AREA", 0.05),
			DocumentBinding:       getEnvBool("FACE_DOCUMENT_BINDING", false),
			DetectorModelPath:     getEnv("FACE_DETECTOR_MODEL", "./models/res10_300x300_ssd_iter_140000.caffemodel"),
			DetectorConfigPath:    getEnv("FACE_DETECTOR_CONFIG", "./models/deploy.prototxt"),
			CascadePath:           getEnv("FACE_CASCADE", "./models/haarcascade_frontalface_default.xml"),
			EmbedderModelPath:     getEnv("FACE_EMBEDDER_MODEL", "./models/nn4.small2.v1.t7"),
		},
		OCR: OCRConfig{
			Enabled:      getEnvBool("OCR_ENABLED", false),
			TesseractBin: getEnv("TESSERACT_BIN", "tesseract"),
			Timeout:      getEnvDuration("OCR_TIMEOUT", 20*time.Second),
			DebugLogPath: getEnv("OCR_DEBUG_LOG", ""),
		},

		MaxDocumentBytes: int64(getEnvInt("MAX_DOCUMENT_BYTES", 5<<20)),
	}
}

// Validate reports configuration that would make the identity gates unsafe or unusable.
func (c *Config) Validate() error {
	var errs []error
	f := c.Face
	if f.CrossThreshold <= 0 || f.SelfThreshold <= 0 {
		errs = append(errs, errors.New("face thresholds must be positive"))
	}
	if f.SelfThreshold >= f.CrossThreshold {
		errs = append(errs, fmt.Errorf("FACE_SELF_THRESHOLD (%.2f) must be below FACE_CROSS_THRESHOLD (%.2f)",
			f.SelfThreshold, f.CrossThreshold))
	}
	if f.MinFallbackConfidence > f.MinConfidence {
		errs = append(errs, errors.New("FACE_MIN_FALLBACK_CONFIDENCE must not exceed FACE_MIN_CONFIDENCE"))
	}
	switch c.StorageDriver {
	case "s3":
	case "azure":
		if c.AzureAccount == "" || c.AzureKey == "" {
			errs = append(errs, errors.New("azure storage driver requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.MaxDocumentBytes <= 0 {
		errs = append(errs, errors.New("MAX_DOCUMENT_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
