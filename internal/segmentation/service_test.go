package segmentation

import (
	"strings"
	"testing"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		pageSize  int
		wantSizes []int
	}{
		{"empty", "", 50, nil},
		{"whitespace only", "  \n\t ", 50, nil},
		{"exact multiple", words(100), 50, []int{50, 50}},
		{"remainder", words(120), 50, []int{50, 50, 20}},
		{"single short page", words(7), 50, []int{7}},
		{"default page size", words(60), 0, []int{50, 10}},
		{"page size one", words(3), 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages := Split(tt.text, tt.pageSize)
			if len(pages) != len(tt.wantSizes) {
				t.Fatalf("Expected %d pages, got %d", len(tt.wantSizes), len(pages))
			}
			for i, p := range pages {
				if got := len(strings.Fields(p)); got != tt.wantSizes[i] {
					t.Errorf("Page %d: expected %d words, got %d", i, tt.wantSizes[i], got)
				}
			}
		})
	}
}

func TestSplitPreservesWordOrder(t *testing.T) {
	text := "Once upon\na  time there\twas a fox"
	pages := Split(text, 3)
	joined := strings.Join(pages, " ")
	if joined != strings.Join(strings.Fields(text), " ") {
		t.Errorf("Expected words in order, got %q", joined)
	}

	again := Split(text, 3)
	for i := range pages {
		if pages[i] != again[i] {
			t.Errorf("Split is not deterministic at page %d", i)
		}
	}
}

func TestPaginate(t *testing.T) {
	svc := NewService(50, "static/img/default-tale.jpg")
	pages := svc.Paginate("The Fox", words(120))

	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Index != i {
			t.Errorf("Expected index %d, got %d", i, p.Index)
		}
		if p.Image.URL != "static/img/default-tale.jpg" || p.Image.Loaded {
			t.Errorf("Page %d should start at an unloaded placeholder, got %+v", i, p.Image)
		}
	}
	if pages[2].Image.Alt != "The Fox - Page 3" {
		t.Errorf("Unexpected alt text %q", pages[2].Image.Alt)
	}
}

func TestPagesFromEntry(t *testing.T) {
	svc := NewService(50, "placeholder.jpg")

	t.Run("stored pages", func(t *testing.T) {
		entry := &types.LibraryEntry{
			Title: "Stored",
			Image: "cover.png",
			Pages: []types.EntryPage{
				{Text: "first"},
				{Text: "second", Image: "p2.png"},
				{Text: "third"},
			},
		}
		pages := svc.PagesFromEntry(entry)
		if len(pages) != 3 {
			t.Fatalf("Expected 3 pages, got %d", len(pages))
		}
		if pages[0].Image.URL != "cover.png" || !pages[0].Image.Loaded {
			t.Errorf("Page 0 should use the entry image, got %+v", pages[0].Image)
		}
		if pages[1].Image.URL != "p2.png" {
			t.Errorf("Page 1 should use its stored image, got %+v", pages[1].Image)
		}
		if pages[2].Image.URL != "placeholder.jpg" || pages[2].Image.Loaded {
			t.Errorf("Page 2 should be an unloaded placeholder, got %+v", pages[2].Image)
		}
	})

	t.Run("text only", func(t *testing.T) {
		entry := &types.LibraryEntry{Title: "Plain", Text: words(75), Image: "cover.png"}
		pages := svc.PagesFromEntry(entry)
		if len(pages) != 2 {
			t.Fatalf("Expected 2 pages, got %d", len(pages))
		}
		if pages[0].Image.URL != "cover.png" {
			t.Errorf("Expected cover on page 0, got %s", pages[0].Image.URL)
		}
	})
}
