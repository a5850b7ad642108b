package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// BaseURLEnv overrides api.base_url when set.
const BaseURLEnv = "API_BASE_URL"

const envPrefix = "MEMORIES_"

// Transport kinds.
const (
	TransportHTTP    = "http"
	TransportFixture = "fixture"
)

type Config struct {
	API       APIConfig       `koanf:"api" validate:"required"`
	Upload    UploadConfig    `koanf:"upload"`
	Storage   StorageConfig   `koanf:"storage"`
	Journal   JournalConfig   `koanf:"journal"`
	Debug     DebugConfig     `koanf:"debug"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type APIConfig struct {
	BaseURL         string        `koanf:"base_url" validate:"required,url"`
	WithCredentials bool          `koanf:"with_credentials"`                                   // Forward cookies to the backend
	Method          string        `koanf:"method" validate:"required,oneof=POST PUT PATCH"`   // Transport verb for RPC calls
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`                          // 0 disables the client timeout
	Transport       string        `koanf:"transport" validate:"required,oneof=http fixture"` // http or fixture
	FixturesFile    string        `koanf:"fixtures_file"`                                     // Optional YAML fixture overrides
}

type UploadConfig struct {
	ExpiresIn time.Duration `koanf:"expires_in" validate:"gte=0"`
	// ContentTypeOnRequest sends the content type in the delegated URL request.
	// Off by default so the storage PUT stays a simple cross-origin request.
	ContentTypeOnRequest bool `koanf:"content_type_on_request"`
	// DenyPrivateTargets refuses delegated URLs that resolve to private networks.
	DenyPrivateTargets bool `koanf:"deny_private_targets"`
}

// StorageConfig configures the S3-compatible presigner used by the fixture backend.
type StorageConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// Enabled reports whether enough is configured to presign real URLs.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

type JournalConfig struct {
	Driver string `koanf:"driver" validate:"omitempty,oneof=sqlite postgres"` // empty disables the journal
	DSN    string `koanf:"dsn" validate:"required_with=Driver"`

	// QueueSize bounds trace events waiting to be written; 0 uses the default.
	QueueSize int `koanf:"queue_size" validate:"gte=0"`
}

type DebugConfig struct {
	Listen    string  `koanf:"listen"`
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"` // requests per second, 0 = unlimited
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory, if present, and then
// environment variables.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile reads the given YAML file, if present, then environment variables
// prefixed with MEMORIES_ ("__" separates nesting levels). API_BASE_URL, when
// set, overrides api.base_url.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	if v := os.Getenv(BaseURLEnv); v != "" {
		k.Set("api.base_url", v)
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Storage.AccessKey = substituteEnvVars(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = substituteEnvVars(cfg.Storage.SecretKey)
	cfg.Journal.DSN = substituteEnvVars(cfg.Journal.DSN)
	cfg.API.Method = strings.ToUpper(cfg.API.Method)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"api.base_url":           DefaultBaseURL,
		"api.method":             "POST",
		"api.transport":          TransportHTTP,
		"api.timeout":            "30s",
		"upload.expires_in":      "15m",
		"storage.region":         "us-east-1",
		"debug.listen":           "127.0.0.1:8799",
		"telemetry.service_name": "memories-gateway",
	}
	for key, value := range defaults {
		if !k.Exists(key) || k.String(key) == "" {
			k.Set(key, value)
		}
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
