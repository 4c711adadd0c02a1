// Package cmd provides the operational maintenance commands: exporting,
// importing and migrating collections between backends. These are the
// tools that exercise replaceAll and the collection bootstrapper outside
// the regular request path.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"docstore/bootstrap"
	"docstore/core"
	"docstore/storage"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// Global flags
var (
	outputJSON  bool
	backendName string
	quiet       bool
)

const defaultTimeout = 5 * time.Minute

// NewMaintenanceCmd builds the root maintenance command.
func NewMaintenanceCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docstore",
		Short: "docstore maintenance commands",
		Long:  "Operational tooling for the docstore persistence layer: export, import and migrate collections.",
	}

	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "machine-readable JSON output")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")

	root.AddCommand(newExportCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <collection> <file>",
		Short: "Export a collection from a backend to a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "local", "backend to read from (primary|secondary|local)")
	return cmd
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <collection> <file>",
		Short: "Replace a collection's contents from a JSON file",
		Long:  "Wholesale replacement via replaceAll. Intended for migration and rollback; pause regular traffic first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "local", "backend to write to (primary|secondary|local)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every declared collection from one backend to another",
		Long:  "Reads each collection declared in the manifest from the source backend and replaces it wholesale on the target. Swap --from/--to for rollback.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(from, to)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source backend (primary|secondary|local)")
	cmd.Flags().StringVar(&to, "to", "", "target backend (primary|secondary|local)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// connectBackend resolves and connects one named backend directly,
// bypassing selection: maintenance targets a specific engine.
func connectBackend(ctx context.Context, name string, sugar *zap.SugaredLogger) (storage.Adapter, *storage.Manifest, error) {
	cfg, err := bootstrap.InitConfig(sugar)
	if err != nil {
		return nil, nil, err
	}

	var target core.Backend
	switch name {
	case "primary":
		target = core.BackendPrimary
	case "secondary":
		target = core.BackendSecondary
	case "local":
		target = core.BackendLocal
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want primary, secondary or local)", name)
	}

	ids := storage.NewIDRegistry()
	for _, cand := range bootstrap.BuildCandidates(cfg, ids, sugar) {
		if cand.Adapter.Name() != target {
			continue
		}
		if !cand.Configured {
			return nil, nil, fmt.Errorf("backend %q is not configured", name)
		}
		if err := storage.Guard(ctx, cfg.Selector.ConnectTimeout, name+" connect", sugar, cand.Adapter.Connect); err != nil {
			return nil, nil, err
		}
		manifest, err := storage.LoadManifest(cfg.CollectionsManifest)
		if err != nil {
			return nil, nil, err
		}
		return cand.Adapter, manifest, nil
	}
	return nil, nil, fmt.Errorf("no adapter for backend %q", name)
}

func quietLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func startSpinner(message string) *spinner.Spinner {
	if quiet || outputJSON {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Start()
	return s
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}

func runExport(collection, file string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	adapter, _, err := connectBackend(ctx, backendName, quietLogger())
	if err != nil {
		return err
	}
	defer adapter.Close(ctx)

	sp := startSpinner(fmt.Sprintf("Exporting %s from %s...", collection, backendName))
	docs, err := adapter.ReadAll(ctx, collection)
	stopSpinner(sp)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Export failed: %v\n", err)
		return err
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"collection": collection,
			"backend":    backendName,
			"documents":  len(docs),
			"file":       file,
		})
	}
	successColor.Printf("Exported %d documents from %s to %s\n", len(docs), collection, file)
	return nil
}

func runImport(collection, file string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	var docs []core.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("failed to decode %s: %w", file, err)
	}

	adapter, manifest, err := connectBackend(ctx, backendName, quietLogger())
	if err != nil {
		return err
	}
	defer adapter.Close(ctx)

	// Make sure the target collection and indexes exist before loading.
	bootstrapper := storage.NewBootstrapper(manifest, quietLogger())
	if err := bootstrapper.Run(ctx, adapter); err != nil {
		return err
	}

	sp := startSpinner(fmt.Sprintf("Importing %d documents into %s on %s...", len(docs), collection, backendName))
	err = adapter.ReplaceAll(ctx, collection, docs)
	stopSpinner(sp)
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return err
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"collection": collection,
			"backend":    backendName,
			"documents":  len(docs),
		})
	}
	successColor.Printf("Imported %d documents into %s\n", len(docs), collection)
	return nil
}

func runMigrate(from, to string) error {
	if from == to {
		return fmt.Errorf("--from and --to must name different backends")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	sugar := quietLogger()
	source, manifest, err := connectBackend(ctx, from, sugar)
	if err != nil {
		return fmt.Errorf("source backend: %w", err)
	}
	defer source.Close(ctx)

	target, _, err := connectBackend(ctx, to, sugar)
	if err != nil {
		return fmt.Errorf("target backend: %w", err)
	}
	defer target.Close(ctx)

	if len(manifest.Collections) == 0 {
		return fmt.Errorf("no collections declared in manifest; nothing to migrate")
	}

	bootstrapper := storage.NewBootstrapper(manifest, sugar)
	if err := bootstrapper.Run(ctx, target); err != nil {
		return err
	}

	type result struct {
		Collection string `json:"collection"`
		Documents  int    `json:"documents"`
	}
	results := make([]result, 0, len(manifest.Collections))

	for _, spec := range manifest.Collections {
		sp := startSpinner(fmt.Sprintf("Migrating %s (%s -> %s)...", spec.Name, from, to))
		docs, err := source.ReadAll(ctx, spec.Name)
		if err != nil {
			stopSpinner(sp)
			errorColor.Fprintf(os.Stderr, "Failed reading %s: %v\n", spec.Name, err)
			return err
		}
		if err := target.ReplaceAll(ctx, spec.Name, docs); err != nil {
			stopSpinner(sp)
			errorColor.Fprintf(os.Stderr, "Failed writing %s: %v\n", spec.Name, err)
			return err
		}
		stopSpinner(sp)
		results = append(results, result{Collection: spec.Name, Documents: len(docs)})
		if !outputJSON && !quiet {
			infoColor.Printf("  %s: %d documents\n", spec.Name, len(docs))
		}
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"from":        from,
			"to":          to,
			"collections": results,
		})
	}
	successColor.Printf("Migrated %d collections from %s to %s\n", len(results), from, to)
	return nil
}
