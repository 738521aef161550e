package packaging

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/util"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// ErrNothingToExport is returned for entries without text or pages
var ErrNothingToExport = errors.New("tale has no content to export")

// Service packages tales into ZIP archives
type Service struct {
	bytesPerSecond int
}

// NewService creates a new packaging service. bytesPerSecond converts clip
// sizes into durations for the manifest; 0 leaves durations out.
func NewService(bytesPerSecond int) *Service {
	return &Service{bytesPerSecond: bytesPerSecond}
}

// Manifest represents the top-level tale manifest
type Manifest struct {
	TaleID        string    `json:"tale_id"`
	Title         string    `json:"title"`
	CharacterName string    `json:"character_name"`
	CharacterType string    `json:"character_type"`
	Setting       string    `json:"setting"`
	Theme         string    `json:"theme"`
	PageCount     int       `json:"page_count"`
	TotalDuration float64   `json:"total_duration_seconds"`
	CreatedAt     time.Time `json:"created_at"`
	ExportedAt    time.Time `json:"exported_at"`
	Version       string    `json:"version"`
}

// PageEntry describes one page in pages.json
type PageEntry struct {
	Number    int     `json:"number"`
	Text      string  `json:"text"`
	Image     string  `json:"image,omitempty"`
	Audio     string  `json:"audio,omitempty"`
	StartTime float64 `json:"start_time_seconds"`
	Duration  float64 `json:"duration_seconds"`
}

// PackageTale creates a ZIP archive with manifest.json, pages.json, the
// full text and every cached narration clip
func (s *Service) PackageTale(entry *types.LibraryEntry) (io.Reader, error) {
	if entry == nil || (entry.Text == "" && len(entry.Pages) == 0) {
		return nil, ErrNothingToExport
	}

	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	pages := s.generatePages(entry)
	manifest := s.generateManifest(entry, pages)
	if err := s.addJSONFile(zipWriter, "manifest.json", manifest); err != nil {
		return nil, fmt.Errorf("failed to add manifest: %w", err)
	}
	if err := s.addJSONFile(zipWriter, "pages.json", pages); err != nil {
		return nil, fmt.Errorf("failed to add pages: %w", err)
	}
	if err := s.addFile(zipWriter, "tale.txt", []byte(entry.Text)); err != nil {
		return nil, fmt.Errorf("failed to add text: %w", err)
	}

	for _, page := range pages {
		if page.Audio == "" {
			continue
		}
		clip := entry.Audios[util.AudioKey(page.Number-1)].Blob
		if err := s.addFile(zipWriter, page.Audio, clip); err != nil {
			return nil, fmt.Errorf("failed to add audio for page %d: %w", page.Number, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// ExportFile writes the archive to path, replacing any existing file
func (s *Service) ExportFile(entry *types.LibraryEntry, path string) error {
	archive, err := s.PackageTale(entry)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if _, err := io.Copy(file, archive); err != nil {
		file.Close()
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return file.Close()
}

// generatePages lays out the pages with running start times. Entries
// without stored pages export their text as a single page.
func (s *Service) generatePages(entry *types.LibraryEntry) []PageEntry {
	stored := entry.Pages
	if len(stored) == 0 {
		stored = []types.EntryPage{{Text: entry.Text, Image: entry.Image}}
	}

	pages := make([]PageEntry, 0, len(stored))
	current := 0.0
	for i, p := range stored {
		page := PageEntry{
			Number:    i + 1,
			Text:      p.Text,
			Image:     p.Image,
			StartTime: current,
		}
		if i == 0 && page.Image == "" {
			page.Image = entry.Image
		}
		if clip, ok := entry.Audios[util.AudioKey(i)]; ok && len(clip.Blob) > 0 {
			page.Audio = util.AudioFileName(i, util.SniffAudioFormat(clip.Blob))
			page.Duration = s.duration(clip.Blob)
		}
		pages = append(pages, page)
		current += page.Duration
	}
	return pages
}

func (s *Service) generateManifest(entry *types.LibraryEntry, pages []PageEntry) *Manifest {
	var total float64
	for _, p := range pages {
		total += p.Duration
	}

	return &Manifest{
		TaleID:        entry.ID,
		Title:         entry.Title,
		CharacterName: entry.CharacterName,
		CharacterType: entry.CharacterType,
		Setting:       entry.Setting,
		Theme:         entry.Theme,
		PageCount:     len(pages),
		TotalDuration: total,
		CreatedAt:     entry.Date,
		ExportedAt:    time.Now(),
		Version:       "1.0",
	}
}

func (s *Service) duration(clip []byte) float64 {
	if s.bytesPerSecond <= 0 {
		return 0
	}
	seconds := float64(len(clip)) / float64(s.bytesPerSecond)
	return math.Round(seconds*1000) / 1000
}

// addJSONFile adds a JSON file to the ZIP
func (s *Service) addJSONFile(zipWriter *zip.Writer, path string, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return s.addFile(zipWriter, path, jsonData)
}

func (s *Service) addFile(zipWriter *zip.Writer, path string, data []byte) error {
	writer, err := zipWriter.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}
