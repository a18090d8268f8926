package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "tesseract", cfg.OCR.Engine)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, int64(7779), cfg.LLM.Seed)
	assert.Equal(t, []string{"uwi"}, cfg.Validation.RequiredFields)
	assert.Equal(t, 15*time.Minute, cfg.Server.JobTimeout)
	assert.Equal(t, 64<<20, cfg.Server.MaxDocumentBytes)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ocr:
  dpi: 200
llm:
  provider: anthropic
  model: from-file
server:
  watch_dirs: [/scans/in]
`), 0o644))
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("SURVEY_PIPELINE_WORKERS", "8")
	t.Setenv("DB_URL", "file:ledger.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.OCR.DPI)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "file:ledger.db", cfg.Database.DSN)
	assert.Equal(t, []string{"/scans/in"}, cfg.Server.WatchDirs)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		cfg.LLM.APIKey = "k"
		return cfg
	}
	require.NoError(t, valid(t).Validate())

	tests := map[string]func(*Config){
		"unknown engine":     func(c *Config) { c.OCR.Engine = "paddle" },
		"azure without key":  func(c *Config) { c.OCR.Engine = "azure" },
		"dpi":                func(c *Config) { c.OCR.DPI = 20 },
		"provider":           func(c *Config) { c.LLM.Provider = "mistral" },
		"api key":            func(c *Config) { c.LLM.APIKey = "" },
		"azure llm endpoint": func(c *Config) { c.LLM.Provider = "azure" },
		"attempts":           func(c *Config) { c.LLM.MaxAttempts = 0 },
		"line overlap":       func(c *Config) { c.Layout.LineOverlap = 0 },
		"negative tolerance": func(c *Config) { c.Validation.MDTolerance = -1 },
		"workers":            func(c *Config) { c.Pipeline.Workers = 0 },
		"database driver":    func(c *Config) { c.Database.Driver = "mysql" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid(t)
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)
		})
	}
}

func TestValidateOCR_IgnoresLLM(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.LLM.APIKey = ""
	assert.NoError(t, cfg.ValidateOCR())
	assert.Error(t, cfg.Validate())
}
