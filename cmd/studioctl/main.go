// Studioctl manages the data of an architectural render studio: saved
// prompts, the render gallery and persisted sessions. It also finds studios
// advertised on the local network.
//
// Usage:
//
//	studioctl [command] [flags]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"arch-render-studio/internal/storage"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	dbPath string
	asJSON bool
	openDB func(path string) (storage.Store, error)
}

func newRootCmd() *cobra.Command {
	a := &app{
		openDB: func(path string) (storage.Store, error) {
			return storage.OpenSQLite(path)
		},
	}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studioctl",
		Short: "Architectural render studio utility",
		Long: `Manage saved prompts, the render gallery and persisted sessions of a
render studio database, and discover studios on the local network.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	defaultDB := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if defaultDB == "" {
		defaultDB = "data/studio.db"
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDB, "Path to the studio SQLite database")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of text")

	root.AddCommand(a.promptsCmd(), a.galleryCmd(), a.sessionsCmd(), a.discoverCmd())
	return root
}

// withStore opens the database for the duration of fn.
func (a *app) withStore(fn func(storage.Store) error) error {
	store, err := a.openDB(a.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
