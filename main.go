package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/lotas/tabgruppen/internal/app"
	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/settings"
	"github.com/lotas/tabgruppen/internal/stats"
	"github.com/lotas/tabgruppen/internal/storage"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "stats":
			runStats(os.Args[2:])
			return
		case "settings":
			runSettings(os.Args[2:])
			return
		case "backup":
			runBackup(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	runServe(os.Args[1:])
}

func printHelp() {
	fmt.Print(`tabgruppen — tab auto-grouping service for the browser extension

Usage:
  tabgruppen [serve]                                 Run the service (default)
    --port <n>             WebSocket port the extension connects to (default: 19192)
    --db <path>            Database path (default: ~/.local/share/tabgruppen/tabgruppen.db)

  tabgruppen stats                                   Print grouping stats
  tabgruppen stats reset                             Zero all counters

  tabgruppen settings                                Print settings as JSON
  tabgruppen settings reset                          Restore default settings

  tabgruppen backup export [--out <file>]            Write a compressed backup
  tabgruppen backup import <file>                    Replace all data from a backup

Environment:
  TABGRUPPEN_PORT    Default port (overridden by --port flag)
  TABGRUPPEN_DB      Default database path (overridden by --db flag)
`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", defaultPort(), "WebSocket port the extension connects to")
	dbPath := fs.String("db", os.Getenv("TABGRUPPEN_DB"), "Database path")
	fs.Parse(args)

	path := *dbPath
	if path == "" {
		var err error
		path, err = storage.DefaultDBPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := applog.Init(filepath.Dir(path)); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer applog.Close()

	a, err := app.New(app.Config{Port: *port, DBPath: path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Listening for the extension on 127.0.0.1:%d\n", *port)
	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultPort() int {
	if v := os.Getenv("TABGRUPPEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
		fmt.Fprintf(os.Stderr, "Ignoring invalid TABGRUPPEN_PORT %q\n", v)
	}
	return app.DefaultPort
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbPath := fs.String("db", os.Getenv("TABGRUPPEN_DB"), "Database path")
	fs.Parse(reorderArgs(args))

	store := openStore(*dbPath)
	defer store.Close()
	tracker := stats.NewTracker(store)

	if fs.NArg() > 0 && fs.Arg(0) == "reset" {
		if err := tracker.Reset(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Stats reset.")
		return
	}

	s, err := tracker.Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Tabs grouped:   %d\n", s.TotalTabs)
	fmt.Printf("Sessions today: %d (since %s)\n", s.SessionsToday, s.LastReset)
	if len(s.CategoryCount) > 0 {
		fmt.Println("By category:")
		categories := make([]string, 0, len(s.CategoryCount))
		for c := range s.CategoryCount {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("  %-16s %d\n", c, s.CategoryCount[c])
		}
	}
}

func runSettings(args []string) {
	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	dbPath := fs.String("db", os.Getenv("TABGRUPPEN_DB"), "Database path")
	fs.Parse(reorderArgs(args))

	store := openStore(*dbPath)
	defer store.Close()
	repo := settings.NewRepository(store)

	if fs.NArg() > 0 && fs.Arg(0) == "reset" {
		if err := repo.Save(settings.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Settings restored to defaults.")
		return
	}

	s, err := repo.Refresh()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runBackup(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tabgruppen backup export|import")
		os.Exit(1)
	}

	switch args[0] {
	case "export":
		fs := flag.NewFlagSet("backup export", flag.ExitOnError)
		dbPath := fs.String("db", os.Getenv("TABGRUPPEN_DB"), "Database path")
		outFile := fs.String("out", "", "Output file path (default: stdout)")
		fs.Parse(args[1:])

		store := openStore(*dbPath)
		defer store.Close()

		data, err := store.ExportBackup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *outFile != "" {
			if err := os.WriteFile(*outFile, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Backup written to %s\n", *outFile)
		} else {
			os.Stdout.Write(data)
		}

	case "import":
		fs := flag.NewFlagSet("backup import", flag.ExitOnError)
		dbPath := fs.String("db", os.Getenv("TABGRUPPEN_DB"), "Database path")
		fs.Parse(reorderArgs(args[1:]))
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: tabgruppen backup import <file>")
			os.Exit(1)
		}

		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading backup: %v\n", err)
			os.Exit(1)
		}

		store := openStore(*dbPath)
		defer store.Close()
		if err := store.ImportBackup(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Backup imported.")

	default:
		fmt.Fprintf(os.Stderr, "Unknown backup command %q\n", args[0])
		os.Exit(1)
	}
}

func openStore(path string) *storage.Store {
	if path == "" {
		var err error
		path, err = storage.DefaultDBPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return store
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if i+1 < len(args) && (len(args[i+1]) == 0 || args[i+1][0] != '-') {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
