// Package azure is an OCR engine backed by Azure AI Document Intelligence.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
	"github.com/joseph-ayodele/survey-extractor/internal/entity"
	"github.com/joseph-ayodele/survey-extractor/internal/ocr"
)

var _ ocr.Engine = (*Client)(nil)

const apiVersion = "2024-11-30"

type Client struct {
	client *http.Client
	logger *slog.Logger

	url   string
	token string
	model string

	pollInterval time.Duration
}

func New(url string, options ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("invalid url")
	}

	c := &Client{
		client: http.DefaultClient,
		logger: slog.Default(),

		url:   url,
		model: "prebuilt-read",

		pollInterval: 2 * time.Second,
	}

	for _, option := range options {
		option(c)
	}

	return c, nil
}

func (c *Client) Name() string { return "azure-di" }

// Recognize submits the page image and polls the analyze operation until it
// completes. Word polygons are returned in pixels of the submitted image.
func (c *Client) Recognize(ctx context.Context, page entity.RasterPage) ([]entity.OCRFragment, error) {
	u, err := url.Parse(strings.TrimRight(c.url, "/") + "/documentintelligence/documentModels/" + c.model + ":analyze")
	if err != nil {
		return nil, err
	}

	query := u.Query()
	query.Set("api-version", apiVersion)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(page.Image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, convertError(resp)
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return nil, errors.New("missing operation location")
	}

	c.logger.Debug("ocr.azure.submitted", "page", page.Index, "operation", operationURL)

	for {
		operation, err := c.poll(ctx, operationURL)
		if err != nil {
			return nil, err
		}

		switch operation.Status {
		case OperationStatusRunning, OperationStatusNotStarted:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
			continue
		case OperationStatusSucceeded:
			return convertWords(operation.Result, page.Index), nil
		default:
			return nil, fmt.Errorf("operation %s", operation.Status)
		}
	}
}

func (c *Client) poll(ctx context.Context, operationURL string) (*AnalyzeOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, convertError(resp)
	}

	var operation AnalyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&operation); err != nil {
		return nil, err
	}
	return &operation, nil
}

func convertWords(result AnalyzeResult, index int) []entity.OCRFragment {
	var frags []entity.OCRFragment
	for _, page := range result.Pages {
		for _, word := range page.Words {
			frags = append(frags, entity.OCRFragment{
				Page:       index,
				Text:       word.Content,
				Confidence: word.Confidence,
				Box:        entity.BoxFromPolygon(word.Polygon),
				Polygon:    word.Polygon,
			})
		}
	}
	return frags
}

func convertError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	body := strings.TrimSpace(string(data))
	if body == "" {
		body = http.StatusText(resp.StatusCode)
	}

	return &common.HTTPStatusError{StatusCode: resp.StatusCode, Body: body}
}
