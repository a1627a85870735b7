package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/finwise/ofxledger/internal/categorize"
	"github.com/finwise/ofxledger/internal/importer"
	"github.com/finwise/ofxledger/internal/ofx"
	"github.com/finwise/ofxledger/internal/output"
	"github.com/finwise/ofxledger/internal/reconcile"
	"github.com/finwise/ofxledger/internal/rules"
	"github.com/finwise/ofxledger/internal/scanner"
	"github.com/finwise/ofxledger/internal/server"
	"github.com/finwise/ofxledger/internal/store"
	"github.com/finwise/ofxledger/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	dbPath   = flag.String("db", "ledger.db", "SQLite ledger database path")
	owner    = flag.String("owner", "", "Ledger owner ID (required for import/export)")
	inputDir = flag.String("input", "", "Input directory containing statements")
	dryRun   = flag.Bool("dry-run", false, "Parse and classify without writing to the ledger")
	verbose  = flag.Bool("verbose", false, "Show detailed import logs")

	// Categorization flags
	rulesFile = flag.String("rules", "", "Category rules file (default: embedded rules)")

	// Export flags
	exportFile = flag.String("export", "", "Export the owner's ledger as JSON to this file")
	exportOnly = flag.Bool("export-only", false, "Export without importing (skip -input)")

	// Server flags
	serveFlag   = flag.Bool("serve", false, "Run the HTTP API server")
	addr        = flag.String("addr", ":8080", "HTTP listen address (with -serve)")
	projectID   = flag.String("project", "", "Firebase project ID for API auth (required with -serve)")
	credentials = flag.String("credentials", "", "Service account credentials file (default: application default credentials)")
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofxledger - OFX statement importer and deduplicated ledger

Usage:
  ofxledger [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import all statements under a directory
  ofxledger -input ~/statements -owner alice

  # Dry run with verbose output
  ofxledger -input ~/statements -owner alice -dry-run -verbose

  # Import with custom category rules, then export the ledger
  ofxledger -input ~/statements -owner alice -rules rules.yaml -export ledger.json

  # Run the API server
  ofxledger -serve -project my-firebase-project -db ledger.db

`)
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Printf("ofxledger version %s\n", version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	st, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}
	defer st.Close()

	if *serveFlag {
		return serve(ctx, st)
	}

	if *owner == "" {
		fmt.Fprintf(os.Stderr, "Error: -owner flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if !*exportOnly {
		if *inputDir == "" {
			fmt.Fprintf(os.Stderr, "Error: -input flag is required\n\n")
			flag.Usage()
			os.Exit(1)
		}
		if err := importStatements(ctx, st); err != nil {
			return err
		}
	}

	if *exportFile != "" || *exportOnly {
		ledger, err := output.BuildLedger(ctx, st, *owner)
		if err != nil {
			return err
		}
		if err := output.WriteLedgerToFile(ledger, output.WriteOptions{FilePath: *exportFile}); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		if *exportFile != "" {
			ui.Success(fmt.Sprintf("Ledger exported to %s", *exportFile))
		}
	}

	return nil
}

// importStatements scans the input directory and imports every statement
// file found, continuing past per-file parse rejections.
func importStatements(ctx context.Context, st *store.Store) error {
	if !*verbose {
		ui.Header("Importing Financial Statements")
		ui.Step(1, 3, "Scanning directory")
	} else {
		fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", *inputDir)
	}

	files, err := scanner.New(*inputDir).Scan()
	if err != nil {
		return fmt.Errorf("failed to scan directory %s: %w", *inputDir, err)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Found %d statement files\n", len(files))
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  - %s (institution: %s)\n", f.Path, f.Institution)
		}
	} else {
		ui.Success(fmt.Sprintf("Found %d statement files", len(files)))
	}

	// Return error if no files found - prevents silent failures in scripts
	if len(files) == 0 {
		return fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - Directory path is correct\n  - Files have supported extensions (.qfx, .ofx)\n  - You have read permissions on the directory and files", *inputDir)
	}

	if !*verbose {
		ui.Step(2, 3, "Loading category rules")
	}
	source, err := rulesSource()
	if err != nil {
		return err
	}

	imp := importer.NewImporter(
		reconcile.NewReconciler(st),
		importer.WithCategorizer(categorize.NewService(source, st)),
		importer.WithDryRun(*dryRun),
	)

	if !*verbose {
		ui.Step(3, 3, "Importing statements")
	}

	var (
		imported int
		rejected int
		newTxns  int
	)
	for i, file := range files {
		if *verbose {
			fmt.Fprintf(os.Stderr, "  Importing %s\n", file.Path)
		} else {
			fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files...", i+1, len(files))
		}

		data, err := os.ReadFile(file.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file.Path, err)
		}

		result, err := imp.Import(ctx, *owner, data)
		if err != nil {
			// Parse rejections are per-file: a request echo or an
			// unparseable file must not abort the batch. Anything else
			// (database failure, cancelled context) does.
			if isParseRejection(err) {
				rejected++
				if *verbose {
					fmt.Fprintf(os.Stderr, "    Skipped: %v\n", err)
				}
				continue
			}
			return fmt.Errorf("import failed for %s: %w", file.Path, err)
		}

		imported++
		if result.Reconciled != nil {
			newTxns += result.Reconciled.NewTransactions()
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "    Parsed with %s strategy: %d statement(s)\n",
				result.Strategy, len(result.Statements))
		}
	}
	if !*verbose {
		fmt.Fprintf(os.Stderr, "\r  Progress: %d/%d files - Complete!\n", len(files), len(files))
	}

	if *dryRun {
		ui.Info(fmt.Sprintf("Dry run complete: %d file(s) parsed, %d rejected, ledger untouched", imported, rejected))
		return nil
	}

	ui.Success(fmt.Sprintf("Imported %d file(s): %d new transaction(s)", imported, newTxns))
	if rejected > 0 {
		ui.Warning(fmt.Sprintf("Skipped %d file(s) that could not be parsed (run with -verbose for details)", rejected))
	}
	return nil
}

// rulesSource picks the category rules source: a custom file when -rules is
// given, the embedded default set otherwise.
func rulesSource() (categorize.Source, error) {
	if *rulesFile != "" {
		// Load once up front so a bad file fails the run immediately
		// instead of surfacing later as a categorization warning.
		if _, err := rules.LoadFromFile(*rulesFile); err != nil {
			return nil, fmt.Errorf("failed to load rules file: %w", err)
		}
		path := *rulesFile
		return categorize.SourceFunc(func() (*rules.Engine, error) {
			return rules.LoadFromFile(path)
		}), nil
	}
	return categorize.SourceFunc(rules.LoadEmbedded), nil
}

func serve(ctx context.Context, st *store.Store) error {
	if *projectID == "" {
		fmt.Fprintf(os.Stderr, "Error: -project flag is required with -serve\n\n")
		flag.Usage()
		os.Exit(1)
	}

	source, err := rulesSource()
	if err != nil {
		return err
	}
	imp := importer.NewImporter(
		reconcile.NewReconciler(st),
		importer.WithCategorizer(categorize.NewService(source, st)),
	)

	srv, err := server.New(ctx, *projectID, *credentials, st, imp)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// isParseRejection reports whether an import error is part of the parse
// error taxonomy rather than an infrastructure failure.
func isParseRejection(err error) bool {
	var fallbackErr *importer.FallbackError
	return errors.Is(err, ofx.ErrRequestOnly) ||
		errors.Is(err, ofx.ErrUnsupportedDocument) ||
		errors.Is(err, ofx.ErrNoTransactions) ||
		errors.As(err, &fallbackErr)
}
