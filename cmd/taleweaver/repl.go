package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/unalkalkan/TaleWeaver/internal/app"
	"github.com/unalkalkan/TaleWeaver/internal/library"
)

const readerHelp = `Commands:
  n, p            next / previous page
  g <page>        go to page
  play, pause     control narration
  stop, restart   stop or restart narration
  seek <0..1>     jump within the narration
  speed <x>       set playback speed (any positive multiplier)
  fav             add to or remove from favorites
  export <file>   save the tale as a ZIP archive
  status          show playback progress
  help            show this help
  q               quit`

// runReader reads commands from in until q, EOF or ctx is done
func runReader(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	rdr := a.Reader()
	if rdr == nil {
		return app.ErrNoTale
	}
	session := a.Session()
	session.OnEnded(func() {
		fmt.Fprintln(out, ansi(sgrCyan, "(narration finished)"))
	})
	defer session.OnEnded(nil)

	fmt.Fprintln(out, ansi(sgrCyan, "type help for commands"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch fields[0] {
		case "q", "quit", "exit":
			return nil
		case "help", "h", "?":
			fmt.Fprintln(out, readerHelp)
		case "n", "next":
			if !rdr.Next() {
				report(markWarn, "Already on the last page")
			}
		case "p", "prev":
			if !rdr.Prev() {
				report(markWarn, "Already on the first page")
			}
		case "g", "goto":
			i, err := parsePage(arg)
			if err != nil {
				report(markFail, "%v", err)
				continue
			}
			if !rdr.Goto(i) {
				report(markWarn, "No page %s", arg)
			}
		case "play":
			if !session.HasClip() {
				report(markWarn, "Narration for this page is not ready yet")
				continue
			}
			session.Play()
		case "pause":
			session.Pause()
		case "stop":
			session.Stop()
		case "restart":
			session.Restart()
		case "seek":
			f, err := strconv.ParseFloat(arg, 64)
			if err != nil || f < 0 || f > 1 {
				report(markFail, "seek takes a fraction between 0 and 1")
				continue
			}
			session.Seek(f)
		case "speed":
			x, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				report(markFail, "invalid speed %q", arg)
				continue
			}
			session.SetSpeed(x)
			printField("speed", "%.2gx", session.Speed())
		case "fav":
			on, err := a.ToggleFavorite(ctx)
			switch {
			case errors.Is(err, library.ErrFavoritesFull):
				report(markWarn, "Favorites are full (%d); remove one first", a.Library().Max())
			case err != nil:
				report(markFail, "%v", err)
			case on:
				report(markOK, "Added to favorites")
			default:
				report(markOK, "Removed from favorites")
			}
		case "export":
			if arg == "" {
				report(markFail, "export needs a file name")
				continue
			}
			if err := a.Export(arg); err != nil {
				report(markFail, "%v", err)
				continue
			}
			report(markOK, "Exported to %s", arg)
		case "status":
			v := rdr.Current()
			printField("page", "%d/%d", v.Index+1, v.Total)
			printField("favorite", "%t", a.IsFavorite(ctx))
			renderProgress(out, session.Progress(), session.Speed())
		default:
			report(markWarn, "Unknown command %q (type help)", fields[0])
		}
	}
}
