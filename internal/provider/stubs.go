package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// StubGenerator is an offline Generator with deterministic output.
// Failure knobs and the call log make it usable as a test double.
type StubGenerator struct {
	// Words is the tale length when the request sets no word limit
	Words int
	// Delay is applied to every image and audio call
	Delay time.Duration

	TaleErr        error
	FailImagePages map[int]bool // 1-based page numbers
	FailAudioPages map[int]bool // 0-based page indexes

	mu         sync.Mutex
	imageCalls []ImageCall
	audioCalls []int
}

// ImageCall records when a page image was requested
type ImageCall struct {
	PageNumber int
	At         time.Time
}

// NewStubGenerator creates a new stub generator
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{Words: 120}
}

func (s *StubGenerator) Name() string {
	return "stub"
}

// GenerateTale returns a tale of the requested length built from the form
func (s *StubGenerator) GenerateTale(ctx context.Context, req types.GenerateRequest) (*TaleResponse, error) {
	if s.TaleErr != nil {
		return nil, s.TaleErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := req.WordLimit
	if n <= 0 {
		n = s.Words
	}
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", strings.ToLower(firstWord(req.CharacterName, "word")), i+1)
	}

	return &TaleResponse{
		Title:    fmt.Sprintf("%s and the %s", firstWord(req.CharacterName, "Someone"), firstWord(req.Theme, "Tale")),
		Text:     strings.Join(words, " "),
		ImageURL: "stub://image/1",
	}, nil
}

// GeneratePageImage returns stub://image/<page> unless the page is set to fail
func (s *StubGenerator) GeneratePageImage(ctx context.Context, req PageImageRequest) (string, error) {
	s.mu.Lock()
	s.imageCalls = append(s.imageCalls, ImageCall{PageNumber: req.PageNumber, At: time.Now()})
	fail := s.FailImagePages[req.PageNumber]
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if fail {
		return "", fmt.Errorf("stub image failure for page %d", req.PageNumber)
	}
	return fmt.Sprintf("stub://image/%d", req.PageNumber), nil
}

// GenerateAudio returns a small deterministic clip for the page
func (s *StubGenerator) GenerateAudio(ctx context.Context, req AudioRequest) ([]byte, error) {
	s.mu.Lock()
	s.audioCalls = append(s.audioCalls, req.Page)
	fail := s.FailAudioPages[req.Page]
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if fail {
		return nil, fmt.Errorf("stub audio failure for page %d", req.Page)
	}
	return []byte(fmt.Sprintf("ID3-page-%d:%s", req.Page, req.Text)), nil
}

// ImageCalls returns a copy of the image call log
func (s *StubGenerator) ImageCalls() []ImageCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ImageCall(nil), s.imageCalls...)
}

// AudioCalls returns the page indexes audio was requested for
func (s *StubGenerator) AudioCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.audioCalls...)
}

func (s *StubGenerator) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstWord(s, fallback string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return fallback
	}
	return fields[0]
}
