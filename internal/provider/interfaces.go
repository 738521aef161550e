package provider

import (
	"context"
	"errors"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// ErrMalformedResponse is returned when the backend answers without the
// fields a tale needs
var ErrMalformedResponse = errors.New("malformed generation response")

// Generator defines the interface for the story generation backend
type Generator interface {
	// Name returns the generator name
	Name() string

	// GenerateTale produces the title, full text and first illustration
	GenerateTale(ctx context.Context, req types.GenerateRequest) (*TaleResponse, error)

	// GeneratePageImage produces the illustration URL for one page
	GeneratePageImage(ctx context.Context, req PageImageRequest) (string, error)

	// GenerateAudio narrates one page and returns the clip bytes
	GenerateAudio(ctx context.Context, req AudioRequest) ([]byte, error)
}

// TaleResponse is the text phase result
type TaleResponse struct {
	Title    string `json:"tale_title"`
	Text     string `json:"tale_text"`
	ImageURL string `json:"image_url"`
}

// Validate reports ErrMalformedResponse when a required field is empty
func (r *TaleResponse) Validate() error {
	if r == nil || r.Title == "" || r.Text == "" || r.ImageURL == "" {
		return ErrMalformedResponse
	}
	return nil
}

// PageImageRequest asks for the illustration of one page
type PageImageRequest struct {
	PageText      string `json:"page_text"`
	CharacterName string `json:"character_name"`
	CharacterType string `json:"character_type"`
	Setting       string `json:"setting"`
	PageNumber    int    `json:"page_number"` // 1-based
	ImageAPI      string `json:"image_api"`
}

// AudioRequest asks for the narration of one page
type AudioRequest struct {
	Text string `json:"text"`
	Page int    `json:"page"` // 0-based page index
}
