package segmentation

import (
	"fmt"
	"strings"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// DefaultPageSize is the number of words per page when none is configured
const DefaultPageSize = 50

// Split groups the whitespace-separated words of text into pages of exactly
// pageSize words, except the last page which holds the remainder.
// Empty text yields no pages. A non-positive pageSize uses DefaultPageSize.
func Split(text string, pageSize int) []string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	pages := make([]string, 0, (len(words)+pageSize-1)/pageSize)
	for start := 0; start < len(words); start += pageSize {
		end := start + pageSize
		if end > len(words) {
			end = len(words)
		}
		pages = append(pages, strings.Join(words[start:end], " "))
	}
	return pages
}

// Service turns generated tale text into pages
type Service struct {
	pageSize    int
	placeholder string
}

// NewService creates a new segmentation service
func NewService(pageSize int, placeholder string) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		pageSize:    pageSize,
		placeholder: placeholder,
	}
}

// PageSize returns the configured words per page
func (s *Service) PageSize() int {
	return s.pageSize
}

// Paginate splits text into pages whose images start at the placeholder
func (s *Service) Paginate(title, text string) []*types.Page {
	chunks := Split(text, s.pageSize)
	pages := make([]*types.Page, len(chunks))
	for i, chunk := range chunks {
		pages[i] = &types.Page{
			Index: i,
			Text:  chunk,
			Image: types.ImageRef{
				URL: s.placeholder,
				Alt: PageAlt(title, i),
			},
		}
	}
	return pages
}

// PagesFromEntry rebuilds pages from a stored entry. Stored pages are used
// when present, otherwise the entry text is paginated again. Images carried
// by the entry count as loaded.
func (s *Service) PagesFromEntry(entry *types.LibraryEntry) []*types.Page {
	if len(entry.Pages) == 0 {
		pages := s.Paginate(entry.Title, entry.Text)
		if len(pages) > 0 && entry.Image != "" {
			pages[0].Image.URL = entry.Image
			pages[0].Image.Loaded = true
		}
		return pages
	}

	pages := make([]*types.Page, len(entry.Pages))
	for i, ep := range entry.Pages {
		img := types.ImageRef{URL: s.placeholder, Alt: PageAlt(entry.Title, i)}
		if ep.Image != "" {
			img.URL = ep.Image
			img.Loaded = true
		} else if i == 0 && entry.Image != "" {
			img.URL = entry.Image
			img.Loaded = true
		}
		pages[i] = &types.Page{Index: i, Text: ep.Text, Image: img}
	}
	return pages
}

// PageAlt returns the alt text of a page illustration
func PageAlt(title string, index int) string {
	return fmt.Sprintf("%s - Page %d", title, index+1)
}
