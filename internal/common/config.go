package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Layout     LayoutConfig     `mapstructure:"layout"`
	Validation ValidationConfig `mapstructure:"validation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig holds run ledger configuration. An empty DSN disables the ledger.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// ServerConfig holds daemon configuration
type ServerConfig struct {
	GRPCAddr         string        `mapstructure:"grpc_addr"`
	QueueWorkers     int           `mapstructure:"queue_workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	MaxDocumentBytes int           `mapstructure:"max_document_bytes"`
	WatchDirs        []string      `mapstructure:"watch_dirs"`
	WatchInitialScan bool          `mapstructure:"watch_initial_scan"`
	WatchDebounce    time.Duration `mapstructure:"watch_debounce"`
}

// LimiterConfig bounds calls into one external service.
type LimiterConfig struct {
	Rate        float64 `mapstructure:"rate"`
	Burst       int     `mapstructure:"burst"`
	Concurrency int64   `mapstructure:"concurrency"`
}

// RetryConfig is an exponential backoff policy for transient failures.
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
}

// OCRConfig holds rasterization and text detection configuration
type OCRConfig struct {
	Engine        string        `mapstructure:"engine"`
	DPI           int           `mapstructure:"dpi"`
	Pdftoppm      string        `mapstructure:"pdftoppm"`
	Tesseract     string        `mapstructure:"tesseract"`
	Language      string        `mapstructure:"language"`
	PSM           int           `mapstructure:"psm"`
	TessdataDir   string        `mapstructure:"tessdata_dir"`
	AzureEndpoint string        `mapstructure:"azure_endpoint"`
	AzureKey      string        `mapstructure:"azure_key"`
	AzureModel    string        `mapstructure:"azure_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Limiter       LimiterConfig `mapstructure:"limiter"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	APIVersion  string        `mapstructure:"api_version"`
	Temperature float64       `mapstructure:"temperature"`
	Seed        int64         `mapstructure:"seed"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxEvidence int           `mapstructure:"max_evidence_chars"`
	Limiter     LimiterConfig `mapstructure:"limiter"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// LayoutConfig tunes reading-order and column reconstruction.
type LayoutConfig struct {
	LineOverlap     float64 `mapstructure:"line_overlap"`
	ColumnGap       float64 `mapstructure:"column_gap"`
	ColumnTolerance float64 `mapstructure:"column_tolerance"`
	MinColumns      int     `mapstructure:"min_columns"`
	MinTableRows    int     `mapstructure:"min_table_rows"`
}

// ValidationConfig tunes field validation and reconciliation.
type ValidationConfig struct {
	MDTolerance       float64  `mapstructure:"md_tolerance"`
	MaxMD             float64  `mapstructure:"max_md"`
	ConfidenceEpsilon float64  `mapstructure:"confidence_epsilon"`
	RequiredFields    []string `mapstructure:"required_fields"`
}

// PipelineConfig holds run-level configuration
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)

	v.SetDefault("server.grpc_addr", ":8080")
	v.SetDefault("server.queue_workers", 2)
	v.SetDefault("server.queue_size", 32)
	v.SetDefault("server.job_timeout", 15*time.Minute)
	v.SetDefault("server.max_document_bytes", 64<<20)
	v.SetDefault("server.watch_dirs", []string{})
	v.SetDefault("server.watch_initial_scan", false)
	v.SetDefault("server.watch_debounce", 2*time.Second)

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.azure_endpoint", "")
	v.SetDefault("ocr.azure_key", "")
	v.SetDefault("ocr.azure_model", "prebuilt-read")
	v.SetDefault("ocr.timeout", 2*time.Minute)
	v.SetDefault("ocr.limiter.rate", 4.0)
	v.SetDefault("ocr.limiter.burst", 4)
	v.SetDefault("ocr.limiter.concurrency", 4)
	v.SetDefault("ocr.retry.max_retries", 2)
	v.SetDefault("ocr.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("ocr.retry.max_interval", 5*time.Second)
	v.SetDefault("ocr.retry.max_elapsed", time.Minute)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4.1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_version", "2024-10-01-preview")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.seed", 7779)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.max_evidence_chars", 24000)
	v.SetDefault("llm.limiter.rate", 1.0)
	v.SetDefault("llm.limiter.burst", 2)
	v.SetDefault("llm.limiter.concurrency", 2)
	v.SetDefault("llm.retry.max_retries", 4)
	v.SetDefault("llm.retry.initial_interval", time.Second)
	v.SetDefault("llm.retry.max_interval", 20*time.Second)
	v.SetDefault("llm.retry.max_elapsed", 3*time.Minute)

	v.SetDefault("layout.line_overlap", 0.5)
	v.SetDefault("layout.column_gap", 1.0)
	v.SetDefault("layout.column_tolerance", 2.0)
	v.SetDefault("layout.min_columns", 3)
	v.SetDefault("layout.min_table_rows", 2)

	v.SetDefault("validation.md_tolerance", 0.5)
	v.SetDefault("validation.max_md", 50000.0)
	v.SetDefault("validation.confidence_epsilon", 0.05)
	v.SetDefault("validation.required_fields", []string{"uwi"})

	v.SetDefault("pipeline.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// envAliases maps config keys onto the well-known variable names used by the
// deployment scripts, in addition to the SURVEY_ prefixed form.
var envAliases = map[string][]string{
	"llm.api_key":        {"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "ANTHROPIC_API_KEY"},
	"llm.model":          {"OPENAI_MODEL"},
	"llm.base_url":       {"OPENAI_BASE_URL", "AZURE_OPENAI_ENDPOINT"},
	"ocr.azure_endpoint": {"AZURE_DI_ENDPOINT"},
	"ocr.azure_key":      {"AZURE_DI_KEY"},
	"ocr.tessdata_dir":   {"TESSDATA_PREFIX"},
	"database.dsn":       {"DB_URL"},
	"server.grpc_addr":   {"GRPC_ADDR"},
	"server.watch_dirs":  {"WATCH_DIRS"},
}

// LoadConfig loads configuration from defaults, an optional config file and the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SURVEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envAliases {
		prefixed := "SURVEY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "bind env "+key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", path), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode configuration", err)
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := c.ValidateOCR(); err != nil {
		return err
	}
	return c.validateExtraction()
}

// ValidateOCR checks only what rasterization and text detection need, for
// tools that stop before the LLM.
func (c *Config) ValidateOCR() error {
	switch c.OCR.Engine {
	case "tesseract":
	case "azure":
		if c.OCR.AzureEndpoint == "" || c.OCR.AzureKey == "" {
			return NewAppError("CONFIG_ERROR", "AZURE_DI_ENDPOINT and AZURE_DI_KEY are required for the azure engine", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown ocr engine %q", c.OCR.Engine), ErrInvalidInput)
	}
	if c.OCR.DPI < 72 || c.OCR.DPI > 1200 {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("ocr.dpi %d out of range [72,1200]", c.OCR.DPI), ErrInvalidInput)
	}
	if c.Layout.LineOverlap <= 0 || c.Layout.LineOverlap > 1 {
		return NewAppError("CONFIG_ERROR", "layout.line_overlap must be in (0,1]", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "pipeline.workers must be at least 1", ErrInvalidInput)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	switch c.LLM.Provider {
	case "openai", "azure", "anthropic":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm provider %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "llm api key is required (OPENAI_API_KEY, AZURE_OPENAI_API_KEY or ANTHROPIC_API_KEY)", ErrInvalidInput)
	}
	if c.LLM.Provider == "azure" && c.LLM.BaseURL == "" {
		return NewAppError("CONFIG_ERROR", "AZURE_OPENAI_ENDPOINT is required for the azure provider", ErrInvalidInput)
	}
	if c.LLM.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "llm.max_attempts must be at least 1", ErrInvalidInput)
	}

	if c.Validation.MDTolerance < 0 || c.Validation.ConfidenceEpsilon < 0 {
		return NewAppError("CONFIG_ERROR", "validation tolerances must not be negative", ErrInvalidInput)
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "pgx":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown database driver %q", c.Database.Driver), ErrInvalidInput)
	}
	return nil
}
