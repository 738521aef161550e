package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/health"
	"github.com/unalkalkan/TaleWeaver/internal/library"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
	"github.com/unalkalkan/TaleWeaver/internal/storage"
	"github.com/unalkalkan/TaleWeaver/internal/talestore"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestServer(t *testing.T, metrics *observe.Metrics) *httptest.Server {
	t.Helper()
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })

	hh := health.NewHandler("test")
	hh.Register("storage", health.StorageCheck(adapter))

	server := httptest.NewServer(NewRouter(RouterConfig{
		Tales:   NewTaleHandler(talestore.NewRepository(adapter), metrics, nil),
		Health:  hh,
		Metrics: metrics,
	}))
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestSaveTaleValidation(t *testing.T) {
	server := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing type", types.LibraryEntry{Title: "A"}, http.StatusBadRequest},
		{"unknown type", types.LibraryEntry{Title: "A", Type: "drafts"}, http.StatusBadRequest},
		{"escaping id", types.LibraryEntry{ID: "../x", Title: "A", Type: types.KindHistory}, http.StatusBadRequest},
		{"valid", types.LibraryEntry{Title: "A", Type: types.KindHistory}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/save_tale", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}

			var ack storeResponse
			json.NewDecoder(resp.Body).Decode(&ack)
			if ack.Success != (tt.status == http.StatusOK) {
				t.Errorf("Unexpected acknowledgement %+v", ack)
			}
			if ack.Success && ack.ID == "" {
				t.Error("Expected assigned id")
			}
		})
	}
}

func TestClearTalesBadType(t *testing.T) {
	server := newTestServer(t, nil)

	resp := postJSON(t, server.URL+"/clear_tales", map[string]string{"type": "drafts"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}

	resp, err := http.Post(server.URL+"/clear_tales", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Empty body should clear all, got %d", resp.StatusCode)
	}
}

func TestListTalesBadType(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/list_tales?type=drafts")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

// The library client and the server implement the two halves of the same
// contract.
func TestRemoteRoundTrip(t *testing.T) {
	server := newTestServer(t, nil)
	remote := library.NewHTTPRemote(server.URL, 5*time.Second)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	entry := types.LibraryEntry{
		ID:     "1700000000000",
		Title:  "The Brave Mouse",
		Text:   "Once upon a time",
		Date:   now,
		Pages:  []types.EntryPage{{Text: "Once upon a time", Image: "https://img/1"}},
		Audios: map[string]types.AudioBlob{"0": {Blob: []byte{0x49, 0x44, 0x33}}},
	}

	if err := remote.Save(ctx, types.KindHistory, entry); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	older := entry
	older.ID, older.Title, older.Date = "1600000000000", "Older", now.Add(-time.Hour)
	if err := remote.Save(ctx, types.KindHistory, older); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	list, err := remote.List(ctx, types.KindHistory)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != entry.ID {
		t.Fatalf("Expected newest first, got %+v", list)
	}

	got, err := remote.Load(ctx, types.KindHistory, entry.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Date.Equal(now) || string(got.Audios["0"].Blob) != "ID3" {
		t.Errorf("Entry did not round-trip: %+v", got)
	}

	if _, err := remote.Load(ctx, types.KindFavorites, entry.ID); !errors.Is(err, library.ErrNotFound) {
		t.Errorf("Expected ErrNotFound in favorites, got %v", err)
	}

	if err := remote.Delete(ctx, types.KindHistory, older.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := remote.Delete(ctx, types.KindHistory, older.ID); err == nil {
		t.Error("Second delete should fail")
	}

	if err := remote.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	list, _ = remote.List(ctx, types.KindHistory)
	if len(list) != 0 {
		t.Errorf("Expected empty list after clear, got %d", len(list))
	}
}

func TestRouterRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	server := newTestServer(t, m)
	resp, err := http.Get(server.URL + "/load_tale/123?type=history")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var sawRoute, sawStoreOp bool
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Histogram[float64]:
				if met.Name != "taleweaver.http.request.duration" {
					continue
				}
				for _, dp := range data.DataPoints {
					if v, ok := dp.Attributes.Value("path"); ok && v.AsString() == "/load_tale/{id}" {
						sawRoute = true
					}
				}
			case metricdata.Sum[int64]:
				if met.Name == "taleweaver.store.operations" && len(data.DataPoints) > 0 {
					sawStoreOp = true
				}
			}
		}
	}
	if !sawRoute {
		t.Error("Expected request duration labelled with the route pattern")
	}
	if !sawStoreOp {
		t.Error("Expected a store operation count")
	}
}

func TestHealthRoutes(t *testing.T) {
	server := newTestServer(t, nil)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
