package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// HTTPGenerator implements Generator against the story backend's HTTP API
type HTTPGenerator struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPGenerator creates a generator for the backend at baseURL.
// Every request is bounded by timeout.
func NewHTTPGenerator(baseURL string, timeout time.Duration, logger *slog.Logger) (*HTTPGenerator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required for HTTP generator")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPGenerator{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "generator"),
	}, nil
}

func (g *HTTPGenerator) Name() string {
	return "http"
}

// GenerateTale posts the story form and validates the three required fields
func (g *HTTPGenerator) GenerateTale(ctx context.Context, req types.GenerateRequest) (*TaleResponse, error) {
	form := url.Values{}
	form.Set("character_name", req.CharacterName)
	form.Set("character_type", req.CharacterType)
	form.Set("setting", req.Setting)
	form.Set("theme", req.Theme)
	form.Set("word_limit", strconv.Itoa(req.WordLimit))
	form.Set("image_api", req.ImageAPI)
	form.Set("text_api", req.TextAPI)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate_tale", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := g.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tale: %w", err)
	}

	var resp TaleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GeneratePageImage requests one page illustration
func (g *HTTPGenerator) GeneratePageImage(ctx context.Context, req PageImageRequest) (string, error) {
	body, err := g.postJSON(ctx, "/generate_page_image", req)
	if err != nil {
		return "", fmt.Errorf("failed to generate page image: %w", err)
	}

	var resp struct {
		ImageURL string `json:"image_url"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal image response: %w", err)
	}
	if resp.ImageURL == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("image generation failed: %s", resp.Error)
		}
		return "", fmt.Errorf("%w: missing image_url", ErrMalformedResponse)
	}
	return resp.ImageURL, nil
}

// GenerateAudio requests the narration clip of one page
func (g *HTTPGenerator) GenerateAudio(ctx context.Context, req AudioRequest) ([]byte, error) {
	body, err := g.postJSON(ctx, "/generate_audio", req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate audio: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("failed to generate audio: empty clip")
	}
	return body, nil
}

// Close releases idle connections
func (g *HTTPGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

func (g *HTTPGenerator) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return g.do(httpReq)
}

func (g *HTTPGenerator) do(httpReq *http.Request) ([]byte, error) {
	startTime := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		g.logger.Warn("request failed", "path", httpReq.URL.Path, "duration", duration, "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	g.logger.Debug("response", "path", httpReq.URL.Path, "status", resp.StatusCode, "duration", duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncateString(string(body), 200))
	}

	return body, nil
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
