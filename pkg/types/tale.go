package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is returned when a generation request is missing fields
var ErrInvalidRequest = errors.New("invalid generation request")

// Phase names one of the three asset tracks of a generation run
type Phase string

const (
	PhaseText  Phase = "text"
	PhaseImage Phase = "image"
	PhaseAudio Phase = "audio"
)

// Phases lists the asset tracks in display order
func Phases() []Phase {
	return []Phase{PhaseText, PhaseImage, PhaseAudio}
}

// AssetStatus is the progress flag of one phase
type AssetStatus string

const (
	StatusPending  AssetStatus = "pending"
	StatusLoading  AssetStatus = "loading"
	StatusComplete AssetStatus = "complete"
	StatusError    AssetStatus = "error"
)

// Terminal reports whether the phase is done, successfully or degraded
func (s AssetStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CollectionKind selects the history or favorites collection
type CollectionKind string

const (
	KindHistory   CollectionKind = "history"
	KindFavorites CollectionKind = "favorites"
)

// Valid reports whether k names a known collection
func (k CollectionKind) Valid() bool {
	return k == KindHistory || k == KindFavorites
}

// GenerateRequest carries the story form
type GenerateRequest struct {
	CharacterName string `json:"character_name"`
	CharacterType string `json:"character_type"`
	Setting       string `json:"setting"`
	Theme         string `json:"theme"`
	WordLimit     int    `json:"word_limit"`
	ImageAPI      string `json:"image_api"`
	TextAPI       string `json:"text_api"`
}

// Validate checks the fields the form requires
func (r GenerateRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.CharacterName) == "" {
		missing = append(missing, "character_name")
	}
	if strings.TrimSpace(r.CharacterType) == "" {
		missing = append(missing, "character_type")
	}
	if strings.TrimSpace(r.Setting) == "" {
		missing = append(missing, "setting")
	}
	if strings.TrimSpace(r.Theme) == "" {
		missing = append(missing, "theme")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.WordLimit < 0 {
		return fmt.Errorf("%w: negative word_limit %d", ErrInvalidRequest, r.WordLimit)
	}
	return nil
}

// ImageRef points at a page illustration
type ImageRef struct {
	URL    string `json:"url"`
	Alt    string `json:"alt"`
	Loaded bool   `json:"loaded"`
}

// Page is a fixed-size word chunk of a tale plus its illustration.
// Audio clips live in the run's clip cache, keyed by Index.
type Page struct {
	Index int      `json:"index"`
	Text  string   `json:"text"`
	Image ImageRef `json:"image"`
}

// Tale is one generated story
type Tale struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	FullText  string          `json:"full_text"`
	Pages     []*Page         `json:"pages"`
	CreatedAt time.Time       `json:"created_at"`
	Request   GenerateRequest `json:"request"`
}

// EntryPage is the persisted shape of one page
type EntryPage struct {
	Text     string `json:"text"`
	Image    string `json:"image,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// AudioBlob wraps a clip; Blob is base64 on the wire
type AudioBlob struct {
	Blob []byte `json:"blob"`
}

// LibraryEntry is a persisted history or favorites record
type LibraryEntry struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Text          string               `json:"text"`
	Image         string               `json:"image"`
	CharacterName string               `json:"characterName"`
	CharacterType string               `json:"characterType"`
	Setting       string               `json:"setting"`
	Theme         string               `json:"theme"`
	Date          time.Time            `json:"date"`
	Type          CollectionKind       `json:"type,omitempty"`
	IsFavorite    bool                 `json:"isFavorite,omitempty"`
	Pages         []EntryPage          `json:"pages"`
	Audios        map[string]AudioBlob `json:"audios,omitempty"`
}
