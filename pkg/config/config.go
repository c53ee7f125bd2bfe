package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Storage   StorageConfig   `json:"storage"`
	Providers ProviderConfig  `json:"providers"`
	Logging   LoggingConfig   `json:"logging"`
	Messaging MessagingConfig `json:"messaging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Resources ResourceConfig  `json:"resources"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	MaxUploadBytes int64         `json:"max_upload_bytes"`
}

// StorageConfig holds artifact store configuration
type StorageConfig struct {
	ArtifactDir string `json:"artifact_dir"`
}

// ProviderConfig selects and configures the analysis collaborators
type ProviderConfig struct {
	Default       string        `json:"default"`
	TranscribeURL string        `json:"transcribe_url"`
	DiarizeURL    string        `json:"diarize_url"`
	SentimentURL  string        `json:"sentiment_url"`
	Timeout       time.Duration `json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// MessagingConfig holds AMQP configuration; empty URL disables publishing
type MessagingConfig struct {
	AMQPUrl   string `json:"amqp_url"`
	QueueName string `json:"queue_name"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// ResourceConfig points at the YAML resource files for phrase lists,
// PII/profanity patterns, and call categories
type ResourceConfig struct {
	Dir            string `json:"dir"`
	PhrasesFile    string `json:"phrases_file"`
	SensitiveFile  string `json:"sensitive_file"`
	CategoriesFile string `json:"categories_file"`
}

// Load reads configuration from the environment, optionally seeded from a
// .env file in the working directory or its parent.
func Load(logger *logrus.Logger) (*Config, error) {
	loaded := false
	for _, envFile := range []string{".env", "../.env"} {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if err := godotenv.Load(envFile); err == nil {
				absPath, _ := filepath.Abs(envFile)
				logger.WithField("path", absPath).Info("Loaded .env file")
				loaded = true
				break
			}
		}
	}
	if !loaded {
		logger.Debug("No .env file found, using environment variables only")
	}

	config := &Config{
		HTTP: HTTPConfig{
			Port:           getEnvInt("HTTP_PORT", 8080),
			ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Minute),
			MaxUploadBytes: int64(getEnvInt("HTTP_MAX_UPLOAD_BYTES", 100<<20)),
		},
		Storage: StorageConfig{
			ArtifactDir: getEnv("ARTIFACT_DIR", "./artifacts"),
		},
		Providers: ProviderConfig{
			Default:       getEnv("PROVIDER_DEFAULT", "mock"),
			TranscribeURL: getEnv("PROVIDER_TRANSCRIBE_URL", ""),
			DiarizeURL:    getEnv("PROVIDER_DIARIZE_URL", ""),
			SentimentURL:  getEnv("PROVIDER_SENTIMENT_URL", ""),
			Timeout:       getEnvDuration("PROVIDER_TIMEOUT", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Messaging: MessagingConfig{
			AMQPUrl:   getEnv("AMQP_URL", ""),
			QueueName: getEnv("AMQP_QUEUE_NAME", "callaudit_artifacts"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		Resources: ResourceConfig{
			Dir:            getEnv("RESOURCE_DIR", "./config"),
			PhrasesFile:    getEnv("PHRASES_FILE", "phrases.yaml"),
			SensitiveFile:  getEnv("SENSITIVE_FILE", "pii_profanity.yaml"),
			CategoriesFile: getEnv("CATEGORIES_FILE", "call_category.yaml"),
		},
	}

	return config, nil
}

// ConfigureLogger applies the logging configuration to a logrus logger.
func (c *Config) ConfigureLogger(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithField("level", c.Logging.Level).Warn("Unknown log level, defaulting to info")
	}
	logger.SetLevel(level)

	if strings.EqualFold(c.Logging.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
