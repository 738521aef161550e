package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// Remote is the server-side tale store
type Remote interface {
	Save(ctx context.Context, kind types.CollectionKind, entry types.LibraryEntry) error
	List(ctx context.Context, kind types.CollectionKind) ([]types.LibraryEntry, error)
	Load(ctx context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error)
	Delete(ctx context.Context, kind types.CollectionKind, id string) error
	Clear(ctx context.Context) error
}

// HTTPRemote implements Remote against the tale-store HTTP contract
type HTTPRemote struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRemote creates a client for the store at baseURL
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRemote{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// storeResponse is the acknowledgement of write operations
type storeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Save posts the entry with its collection kind
func (h *HTTPRemote) Save(ctx context.Context, kind types.CollectionKind, entry types.LibraryEntry) error {
	entry.Type = kind
	return h.write(ctx, "/save_tale", entry)
}

// List returns the server collection
func (h *HTTPRemote) List(ctx context.Context, kind types.CollectionKind) ([]types.LibraryEntry, error) {
	body, status, err := h.get(ctx, "/list_tales?type="+url.QueryEscape(string(kind)))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list %s failed with status %d", kind, status)
	}

	var entries []types.LibraryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s list: %w", kind, err)
	}
	return entries, nil
}

// Load fetches one entry; ErrNotFound when the server does not have it
func (h *HTTPRemote) Load(ctx context.Context, kind types.CollectionKind, id string) (*types.LibraryEntry, error) {
	body, status, err := h.get(ctx, "/load_tale/"+url.PathEscape(id)+"?type="+url.QueryEscape(string(kind)))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("load %s failed with status %d", id, status)
	}

	var entry types.LibraryEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Delete removes one entry from the server collection
func (h *HTTPRemote) Delete(ctx context.Context, kind types.CollectionKind, id string) error {
	return h.write(ctx, "/delete_tale/"+url.PathEscape(id)+"?type="+url.QueryEscape(string(kind)), nil)
}

// Clear wipes both server collections
func (h *HTTPRemote) Clear(ctx context.Context) error {
	return h.write(ctx, "/clear_tales", map[string]string{"type": "all"})
}

func (h *HTTPRemote) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (h *HTTPRemote) write(ctx context.Context, path string, payload any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	var ack storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("store returned status %d without acknowledgement", resp.StatusCode)
	}
	if !ack.Success {
		if ack.Error == "" {
			ack.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("store rejected %s: %s", path, ack.Error)
	}
	return nil
}
