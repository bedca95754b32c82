package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Ingest   IngestConfig
	LLM      LLMConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the gRPC health listener
	MaxUploadBytes int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine        string // "tesseract" (exec) or "gosseract" (in-process)
	TesseractPath string
	Language      string
	TessdataDir   string
	PSM           int
	OEM           int
	DPI           int
	// LineConfidence is the minimum per-line confidence (0..1) for a
	// detected text line to be kept in the extraction result.
	LineConfidence  float64
	ReviewThreshold float64
	ArtifactDir     string
}

// IngestConfig holds hot-folder ingestion configuration
type IngestConfig struct {
	WatchDir         string // empty disables the watcher
	Debounce         time.Duration
	InitialScan      bool
	RescanDuplicates bool // re-queue already-known files instead of skipping
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "rxscan.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:       getEnv("GRPC_ADDR", ""),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 20)) << 20,
		},
		OCR: OCRConfig{
			Engine:          getEnv("OCR_ENGINE", "tesseract"),
			TesseractPath:   getEnv("TESSERACT_PATH", "tesseract"),
			Language:        getEnv("OCR_LANG", "eng"),
			TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
			PSM:             getEnvAsInt("OCR_PSM", 0),
			OEM:             getEnvAsInt("OCR_OEM", 0),
			DPI:             getEnvAsInt("OCR_DPI", 300),
			LineConfidence:  getEnvAsFloat64("OCR_LINE_CONFIDENCE", 0.5),
			ReviewThreshold: getEnvAsFloat64("OCR_REVIEW_THRESHOLD", 0.6),
			ArtifactDir:     getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		Ingest: IngestConfig{
			WatchDir:         getEnv("WATCH_DIR", ""),
			Debounce:         getEnvAsDuration("WATCH_DEBOUNCE", 2*time.Second),
			InitialScan:      getEnvAsBool("WATCH_INITIAL_SCAN", false),
			RescanDuplicates: getEnvAsBool("WATCH_RESCAN_DUPLICATES", false),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.OCR.LineConfidence < 0 || c.OCR.LineConfidence > 1 {
		return NewAppError("CONFIG_ERROR", "OCR_LINE_CONFIDENCE must be within [0,1]", ErrInvalidInput)
	}
	return nil
}
