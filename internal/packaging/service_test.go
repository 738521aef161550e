package packaging

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

func readArchive(t *testing.T, r io.Reader) map[string][]byte {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}

	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		content, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = content
	}
	return files
}

func testEntry() *types.LibraryEntry {
	wav := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 1988)...)
	return &types.LibraryEntry{
		ID:            "1700000000000",
		Title:         "Pip and the Courage",
		Text:          "one two three four",
		Image:         "https://img/cover",
		CharacterName: "Pip",
		CharacterType: "mouse",
		Setting:       "harbor",
		Theme:         "courage",
		Date:          time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Pages: []types.EntryPage{
			{Text: "one two"},
			{Text: "three four", Image: "https://img/2"},
			{Text: "five"},
		},
		Audios: map[string]types.AudioBlob{
			"0": {Blob: append([]byte("ID3"), make([]byte, 997)...)},
			"1": {Blob: wav},
		},
	}
}

func TestService_PackageTale(t *testing.T) {
	service := NewService(1000)

	archive, err := service.PackageTale(testEntry())
	if err != nil {
		t.Fatalf("PackageTale failed: %v", err)
	}
	files := readArchive(t, archive)

	for _, name := range []string{"manifest.json", "pages.json", "tale.txt", "audio/page-001.mp3", "audio/page-002.wav"} {
		if _, ok := files[name]; !ok {
			t.Errorf("Missing %s in archive", name)
		}
	}
	if _, ok := files["audio/page-003.mp3"]; ok {
		t.Error("Page without clip should have no audio file")
	}

	var manifest Manifest
	if err := json.Unmarshal(files["manifest.json"], &manifest); err != nil {
		t.Fatalf("Failed to parse manifest: %v", err)
	}
	if manifest.Title != "Pip and the Courage" || manifest.PageCount != 3 {
		t.Errorf("Unexpected manifest: %+v", manifest)
	}
	if manifest.TotalDuration != 3 {
		t.Errorf("Expected 3s total duration, got %v", manifest.TotalDuration)
	}

	var pages []PageEntry
	if err := json.Unmarshal(files["pages.json"], &pages); err != nil {
		t.Fatalf("Failed to parse pages: %v", err)
	}
	if pages[0].Image != "https://img/cover" {
		t.Errorf("Page 1 should fall back to the cover image, got %q", pages[0].Image)
	}
	if pages[1].StartTime != 1 || pages[1].Duration != 2 {
		t.Errorf("Unexpected timing for page 2: %+v", pages[1])
	}
	if pages[2].Audio != "" {
		t.Errorf("Page 3 should have no audio, got %q", pages[2].Audio)
	}
}

func TestService_PackageTaleWithoutPages(t *testing.T) {
	entry := &types.LibraryEntry{Title: "Plain", Text: "just text", Image: "https://img/x"}

	archive, err := NewService(0).PackageTale(entry)
	if err != nil {
		t.Fatalf("PackageTale failed: %v", err)
	}
	files := readArchive(t, archive)

	var pages []PageEntry
	json.Unmarshal(files["pages.json"], &pages)
	if len(pages) != 1 || pages[0].Text != "just text" || pages[0].Image != "https://img/x" {
		t.Errorf("Expected a single text page, got %+v", pages)
	}
}

func TestService_PackageTaleEmpty(t *testing.T) {
	service := NewService(1000)
	if _, err := service.PackageTale(&types.LibraryEntry{Title: "Empty"}); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Expected ErrNothingToExport, got %v", err)
	}
	if _, err := service.PackageTale(nil); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Expected ErrNothingToExport for nil, got %v", err)
	}
}

func TestService_ExportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "tale.zip")

	if err := NewService(1000).ExportFile(testEntry(), path); err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Export file missing: %v", err)
	}
	defer file.Close()
	files := readArchive(t, file)
	if string(files["tale.txt"]) != "one two three four" {
		t.Errorf("Unexpected text: %q", files["tale.txt"])
	}
}
