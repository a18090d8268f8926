package openai

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/option"
)

// DefaultAzureAPIVersion is used for Azure deployments when none is configured.
const DefaultAzureAPIVersion = "2024-10-01-preview"

type Config struct {
	url string

	token string
	model string

	azure      bool
	apiVersion string

	client *http.Client
	logger *slog.Logger
}

type Option func(*Config)

func WithClient(client *http.Client) Option {
	return func(c *Config) {
		c.client = client
	}
}

func WithToken(token string) Option {
	return func(c *Config) {
		c.token = token
	}
}

// WithAPIVersion sets the api-version of Azure deployments.
func WithAPIVersion(version string) Option {
	return func(c *Config) {
		c.apiVersion = version
	}
}

// WithAzure addresses the endpoint as an Azure OpenAI resource regardless of
// its host name.
func WithAzure() Option {
	return func(c *Config) {
		c.azure = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

func isAzureHost(url string) bool {
	return strings.Contains(url, "openai.azure.com") || strings.Contains(url, "cognitiveservices.azure.com")
}

// Options returns the request options of the SDK client. SDK retries are
// disabled: the extractor owns the retry policy.
func (c *Config) Options() []option.RequestOption {
	if c.url == "" {
		c.url = "https://api.openai.com/v1/"
	}

	if c.client == nil {
		c.client = http.DefaultClient
	}

	c.url = strings.TrimRight(c.url, "/") + "/"

	if c.azure || isAzureHost(c.url) {
		c.azure = true

		if c.apiVersion == "" {
			c.apiVersion = DefaultAzureAPIVersion
		}

		// deployments are addressed by model name
		url := c.url
		if !strings.Contains(url, "/deployments/") {
			if !strings.HasSuffix(url, "/openai/") {
				url += "openai/"
			}
			url += "deployments/" + c.model + "/"
		}

		options := []option.RequestOption{
			option.WithBaseURL(url),
			option.WithHTTPClient(c.client),
			option.WithMaxRetries(0),

			option.WithQueryAdd("api-version", c.apiVersion),
		}

		if c.token != "" {
			options = append(options, option.WithHeader("Api-Key", c.token))
		}

		return options
	}

	options := []option.RequestOption{
		option.WithBaseURL(c.url),
		option.WithHTTPClient(c.client),
		option.WithMaxRetries(0),
	}

	if c.token != "" {
		options = append(options, option.WithAPIKey(c.token))
	}

	return options
}
