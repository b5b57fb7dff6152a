package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"arch-render-studio/internal/discovery"
	"arch-render-studio/internal/storage"
)

func (a *app) promptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage saved prompts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store storage.Store) error {
				prompts, err := store.ListPrompts(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.asJSON {
					return printJSON(out, prompts)
				}
				if len(prompts) == 0 {
					fmt.Fprintln(out, "No saved prompts.")
					return nil
				}
				for _, p := range prompts {
					fmt.Fprintf(out, "%s  %s\n    %s\n", p.ID, p.Title, p.Content)
				}
				return nil
			})
		},
	}

	add := &cobra.Command{
		Use:     "add <title> <content>",
		Short:   "Save a prompt",
		Example: `  studioctl prompts add "Dusk" "modern villa at dusk, warm interior light"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(args[0])
			content := strings.TrimSpace(args[1])
			if title == "" || content == "" {
				return fmt.Errorf("title and content must not be empty")
			}
			return a.withStore(func(store storage.Store) error {
				saved, err := store.SavePrompt(cmd.Context(), storage.SavedPrompt{Title: title, Content: content})
				if err != nil {
					return err
				}
				if a.asJSON {
					return printJSON(cmd.OutOrStdout(), saved)
				}
				fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete saved prompts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store storage.Store) error {
				for _, id := range args {
					if err := store.DeletePrompt(cmd.Context(), id); err != nil {
						return fmt.Errorf("prompt %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

func (a *app) galleryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Inspect and export rendered images",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent renders, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store storage.Store) error {
				items, err := store.ListGallery(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.asJSON {
					return printJSON(out, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "The gallery is empty.")
					return nil
				}
				for _, g := range items {
					fmt.Fprintf(out, "%s  %s  %-15s %s\n", g.ID, g.CreatedAt.Local().Format(time.DateTime), g.Operation, g.Prompt)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Number of renders to list (0 for all)")

	var outDir string
	var exportLimit int
	export := &cobra.Command{
		Use:   "export [id...]",
		Short: "Write rendered images to a directory",
		Long: `Write rendered images to a directory. Without ids the most recent
renders are exported, up to --limit.`,
		Example: `  studioctl gallery export --out renders
  studioctl gallery export --out renders 6f1c2d0e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			return a.withStore(func(store storage.Store) error {
				ctx := cmd.Context()

				var items []storage.GalleryImage
				if len(args) == 0 {
					var err error
					if items, err = store.ListGallery(ctx, exportLimit); err != nil {
						return err
					}
				}
				for _, id := range args {
					g, err := store.GetGallery(ctx, id)
					if err != nil {
						return fmt.Errorf("gallery %s: %w", id, err)
					}
					items = append(items, g)
				}

				for _, g := range items {
					img, err := store.GetImage(ctx, g.ImageID)
					if err != nil {
						return fmt.Errorf("image %s: %w", g.ImageID, err)
					}
					path := filepath.Join(outDir, g.ID+extensionFor(img.MimeType))
					if err := os.WriteFile(path, img.Data, 0o644); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
				return nil
			})
		},
	}
	export.Flags().StringVarP(&outDir, "out", "o", "renders", "Output directory")
	export.Flags().IntVar(&exportLimit, "limit", 10, "Number of recent renders to export when no ids are given")

	cmd.AddCommand(list, export)
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and purge persisted sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store storage.Store) error {
				sessions, err := store.ListSessions(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.asJSON {
					type row struct {
						ID        string    `json:"id"`
						UpdatedAt time.Time `json:"updated_at"`
					}
					rows := make([]row, 0, len(sessions))
					for _, s := range sessions {
						rows = append(rows, row{ID: s.ID, UpdatedAt: s.UpdatedAt})
					}
					return printJSON(out, rows)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No persisted sessions.")
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(out, "%-40s %s\n", s.ID, s.UpdatedAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}

	var olderThan string
	purge := &cobra.Command{
		Use:     "purge",
		Short:   "Delete sessions not updated within a period",
		Example: `  studioctl sessions purge --older-than 30d`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-age)
			return a.withStore(func(store storage.Store) error {
				n, err := store.DeleteSessionsBefore(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d session(s) last updated before %s\n", n, cutoff.Local().Format(time.DateTime))
				return nil
			})
		},
	}
	purge.Flags().StringVar(&olderThan, "older-than", "30d", "Age threshold, e.g. 12h or 30d")

	cmd.AddCommand(list, purge)
	return cmd
}

func (a *app) discoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find render studios on the local network",
		Long: `Browse mDNS for studios started with MDNS_ADVERTISE=true and print
their addresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !a.asJSON {
				fmt.Fprintf(out, "Browsing for studios (timeout: %s)...\n\n", timeout)
			}

			studios, err := discovery.Browse(cmd.Context(), timeout)
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}
			if a.asJSON {
				return printJSON(out, studios)
			}
			if len(studios) == 0 {
				fmt.Fprintln(out, "No studios found. Try a longer --timeout.")
				return nil
			}
			for i, s := range studios {
				fmt.Fprintf(out, "%d. %s\n", i+1, s.Instance)
				fmt.Fprintf(out, "   URL:      %s\n", s.URL())
				fmt.Fprintf(out, "   Host:     %s\n", s.Hostname)
				if len(s.Metadata) > 0 {
					fmt.Fprintf(out, "   Metadata: %v\n", s.Metadata)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultBrowseTimeout, "How long to listen for answers")
	return cmd
}

// parseAge accepts Go durations plus a day suffix ("30d").
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
