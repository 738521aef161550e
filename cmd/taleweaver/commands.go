package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/unalkalkan/TaleWeaver/internal/app"
	"github.com/unalkalkan/TaleWeaver/internal/reader"
	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new tale and open it in the reader",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}
		noRead, _ := cmd.Flags().GetBool("no-read")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		done := make(chan struct{})

		report(markStep, "Writing the tale of %s the %s", req.CharacterName, req.CharacterType)
		run, err := a.Generate(ctx, req, app.Events{
			OnStatus: func(phase types.Phase, status types.AssetStatus) {
				printField(string(phase), "%s", ansi(statusColor(status), string(status)))
			},
			OnReady: func(degraded bool) {
				if degraded {
					report(markWarn, "Some illustrations or narration are still on their way")
				}
			},
			OnComplete: func(entry types.LibraryEntry) {
				report(markOK, "%q saved to history", entry.Title)
				close(done)
			},
			OnRender: func(v reader.PageView) { renderPage(out, v) },
			OnAudio: func(index int, err error) {
				if err != nil {
					report(markWarn, "No narration for page %d: %v", index+1, err)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to generate tale: %w", err)
		}
		report(markOK, "%q is ready to read", run.Title())

		if noRead {
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		}
		return runReader(ctx, a, cmd.InOrStdin(), out)
	},
}

func init() {
	f := generateCmd.Flags()
	f.String("name", "", "character name")
	f.String("type", "", "character type, e.g. mouse or dragon")
	f.String("setting", "", "where the tale happens")
	f.String("theme", "", "what the tale is about")
	f.Int("words", 0, "word limit (0: backend default)")
	f.String("image-api", "", "image backend: dalle or gemini (default from config)")
	f.String("text-api", "", "text backend (default from config)")
	f.Bool("no-read", false, "wait for all assets and exit instead of opening the reader")
	rootCmd.AddCommand(generateCmd)
}

func requestFromFlags(cmd *cobra.Command) (types.GenerateRequest, error) {
	var req types.GenerateRequest
	var err error
	if req.CharacterName, err = must(cmd, "name"); err != nil {
		return req, err
	}
	if req.CharacterType, err = must(cmd, "type"); err != nil {
		return req, err
	}
	if req.Setting, err = must(cmd, "setting"); err != nil {
		return req, err
	}
	if req.Theme, err = must(cmd, "theme"); err != nil {
		return req, err
	}
	req.WordLimit, _ = cmd.Flags().GetInt("words")
	req.ImageAPI, _ = cmd.Flags().GetString("image-api")
	req.TextAPI, _ = cmd.Flags().GetString("text-api")
	return req, req.Validate()
}

// --- history / favorites ---

func listCommand(kind types.CollectionKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Library().Refresh(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("failed to refresh %s: %w", kind, err)
			}
			if len(entries) == 0 {
				printField(string(kind), "empty")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tDATE\tTITLE")
			for i, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.ID, e.Date.Local().Format("2006-01-02 15:04"), e.Title)
			}
			return tw.Flush()
		},
	}
}

func init() {
	rootCmd.AddCommand(listCommand(types.KindHistory, "List recently generated tales"))
	rootCmd.AddCommand(listCommand(types.KindFavorites, "List favorite tales"))
}

// --- open ---

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open a stored tale in the reader",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := types.KindHistory
		if fav, _ := cmd.Flags().GetBool("favorites"); fav {
			kind = types.KindFavorites
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		err = a.Open(cmd.Context(), kind, args[0], app.Events{
			OnRender: func(v reader.PageView) { renderPage(out, v) },
			OnAudio: func(index int, err error) {
				if err != nil {
					report(markWarn, "No narration for page %d: %v", index+1, err)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to open tale: %w", err)
		}
		return runReader(cmd.Context(), a, cmd.InOrStdin(), out)
	},
}

func init() {
	openCmd.Flags().Bool("favorites", false, "look the id up in favorites instead of history")
	rootCmd.AddCommand(openCmd)
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the history and favorites, locally and on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes every stored tale; re-run with --confirm")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Library().Clear(cmd.Context()); err != nil {
			return err
		}
		report(markOK, "History and favorites cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
	rootCmd.AddCommand(clearCmd)
}

// parsePage converts a 1-based page argument
func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page %q", s)
	}
	return n - 1, nil
}

