package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/audio"
	"github.com/unalkalkan/TaleWeaver/internal/reader"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// SGR codes used by the CLI
const (
	sgrBold   = "1"
	sgrRed    = "31"
	sgrGreen  = "32"
	sgrYellow = "33"
	sgrCyan   = "36"
)

// ansi wraps text in an SGR sequence unless --no-color is set
func ansi(code, text string) string {
	if noColor || code == "" {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

// mark is the colored glyph leading a report line
type mark struct {
	sgr   string
	glyph string
}

var (
	markOK   = mark{sgrGreen, "✓"}
	markFail = mark{sgrRed, "✗"}
	markWarn = mark{sgrYellow, "!"}
	markStep = mark{sgrCyan, "→"}
)

// report writes one line to stderr with only the glyph colored
func report(m mark, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ansi(m.sgr, m.glyph), fmt.Sprintf(format, args...))
}

func printField(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", ansi(sgrBold, label+":"), fmt.Sprintf(format, args...))
}

func statusColor(s types.AssetStatus) string {
	switch s {
	case types.StatusComplete:
		return sgrGreen
	case types.StatusError:
		return sgrRed
	case types.StatusLoading:
		return sgrYellow
	default:
		return ""
	}
}

func renderPage(w io.Writer, v reader.PageView) {
	header := fmt.Sprintf("── Page %d/%d ──", v.Index+1, v.Total)
	fmt.Fprintln(w, ansi(sgrBold, header))
	fmt.Fprintf(w, "[%s] %s\n", v.Image.Alt, v.Image.URL)
	fmt.Fprintln(w, v.Text)

	var nav []string
	if v.HasPrev {
		nav = append(nav, "p: previous")
	}
	if v.HasNext {
		nav = append(nav, "n: next")
	}
	if len(nav) > 0 {
		fmt.Fprintln(w, ansi(sgrCyan, strings.Join(nav, "  ")))
	}
}

func renderProgress(w io.Writer, p audio.Progress, speed float64) {
	state := "paused"
	if p.Playing {
		state = "playing"
	}
	fmt.Fprintf(w, "%s %s / %s (%.0f%%) at %.2gx\n",
		state,
		p.Position.Truncate(100*time.Millisecond),
		p.Duration.Truncate(100*time.Millisecond),
		p.Fraction()*100,
		speed)
}
