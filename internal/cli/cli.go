// Package cli implements the standalone scoring command line. It computes
// severity scores from snapshot files and keeps a local SQLite history,
// requiring no external services.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hellf17/clinical-corvus-sub005/internal/config"
	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
	"github.com/hellf17/clinical-corvus-sub005/internal/history"
	"github.com/hellf17/clinical-corvus-sub005/internal/service"
	"github.com/hellf17/clinical-corvus-sub005/pkg/remote"
)

// CLI is the standalone scoring command line.
type CLI struct {
	cfg    *config.LiteConfig
	engine *service.ScoreEngine
	log    *logrus.Logger
	out    io.Writer

	// openStore is swappable in tests
	openStore func() (history.Store, error)
}

// New creates a CLI bound to the given configuration.
func New(cfg *config.LiteConfig, logger *logrus.Logger) *CLI {
	c := &CLI{
		cfg:    cfg,
		engine: service.NewScoreEngine(logger),
		log:    logger,
		out:    os.Stdout,
	}
	c.openStore = func() (history.Store, error) {
		return history.NewSQLiteStore(cfg.HistoryDBPath())
	}
	return c
}

// Run dispatches a subcommand.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "score":
		return c.runScore(ctx, args[1:])
	case "history":
		return c.runHistory(ctx, args[1:])
	case "export":
		return c.runExport(ctx, args[1:])
	case "import":
		return c.runImport(ctx, args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

func (c *CLI) showHelp() error {
	help := `
Clinical Corvus score calculator

Usage:
  corvus-score <command> [options]

Commands:
  score    Compute severity scores from a patient snapshot file
  history  Show recorded score runs
  export   Export the score-run history to JSON
  import   Import score runs from a JSON export

Examples:
  # Compute every score from a snapshot
  corvus-score score all -f snapshot.json

  # Compute SOFA only and record the run
  corvus-score score sofa -f snapshot.json --record

  # Cross-check results against the remote scoring service
  corvus-score score all -f snapshot.json --verify

  # Show a patient's recorded runs
  corvus-score history --patient 7f3c... --limit 20

  # Export and re-import the history
  corvus-score export -o runs.json
  corvus-score import -f runs.json

Environment:
  CORVUS_DATA_DIR         Data directory (default ~/.clinical-corvus)
  CORVUS_FORMAT           Output format: table, json
  CORVUS_SCORING_API_URL  Remote cross-check service used by --verify
  CORVUS_SCORING_API_KEY  API key for the remote service
`
	fmt.Fprintln(c.out, help)
	return nil
}

// runScore computes one score family (or all of them) from a snapshot file.
func (c *CLI) runScore(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("score: missing score kind (sofa, qsofa, apache2 or all)")
	}
	kindToken := args[0]

	var snapshotPath string
	record := false
	verify := false
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--file", "-f":
			if i+1 < len(args) {
				snapshotPath = args[i+1]
				i++
			}
		case "--record", "-r":
			record = true
		case "--verify", "-v":
			verify = true
		}
	}
	if snapshotPath == "" {
		return fmt.Errorf("score: missing snapshot file (-f <path>)")
	}

	snap, err := loadSnapshot(snapshotPath)
	if err != nil {
		return err
	}

	var results []domain.ScoreResult
	if kindToken == "all" {
		results = c.engine.ComputeAll(ctx, snap)
	} else {
		kind, err := domain.ParseScoreKind(kindToken)
		if err != nil {
			return err
		}
		result, err := c.engine.Compute(ctx, kind, snap)
		if err != nil {
			return err
		}
		results = []domain.ScoreResult{*result}
	}

	if record {
		if err := c.recordRuns(ctx, snap.PatientID, results); err != nil {
			return err
		}
	}

	if err := c.renderResults(results); err != nil {
		return err
	}
	if verify {
		return c.verifyResults(ctx, snap, results)
	}
	return nil
}

// verifyResults cross-checks local results against the remote scoring
// service configured through CORVUS_SCORING_API_URL.
func (c *CLI) verifyResults(ctx context.Context, snap *domain.PatientSnapshot, results []domain.ScoreResult) error {
	if c.cfg.ScoringAPIURL == "" {
		return fmt.Errorf("score: --verify requires CORVUS_SCORING_API_URL")
	}

	cache, err := remote.NewScoreCache(domain.CacheConfig{
		LocalSize:  c.cfg.CacheMaxItems,
		DefaultTTL: c.cfg.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create score cache: %w", err)
	}
	defer cache.Close()

	client := remote.NewScoringClient(domain.ScoringAPIConfig{
		BaseURL: c.cfg.ScoringAPIURL,
		APIKey:  c.cfg.ScoringAPIKey,
	})
	checker := remote.NewCrossChecker(remote.NewResilientScoringClient(client, cache, c.log), c.log)

	checks := make([]*remote.CrossCheckResult, 0, len(results))
	for i := range results {
		checks = append(checks, checker.Check(ctx, snap, &results[i]))
	}
	return c.renderCrossChecks(checks)
}

// runHistory lists recorded runs, newest first.
func (c *CLI) runHistory(ctx context.Context, args []string) error {
	patientID := ""
	limit := 20
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--patient", "-p":
			if i+1 < len(args) {
				patientID = args[i+1]
				i++
			}
		case "--limit", "-n":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &limit)
				i++
			}
		}
	}
	if patientID == "" {
		return fmt.Errorf("history: missing patient id (--patient <id>)")
	}

	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	runs, err := store.ListByPatient(ctx, patientID, limit, 0)
	if err != nil {
		return err
	}

	return c.renderRuns(runs)
}

// runExport writes the full history as JSON.
func (c *CLI) runExport(ctx context.Context, args []string) error {
	outPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--output", "-o":
			if i+1 < len(args) {
				outPath = args[i+1]
				i++
			}
		}
	}
	if outPath == "" {
		if err := c.cfg.EnsureDataDir(); err != nil {
			return err
		}
		outPath = filepath.Join(c.cfg.ExportDir(), fmt.Sprintf("runs-%s.json", time.Now().UTC().Format("20060102-150405")))
	}

	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := store.ExportJSON(ctx, f); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "✓ History exported to %s\n", outPath)
	return nil
}

// runImport loads runs from a JSON export, skipping duplicates.
func (c *CLI) runImport(ctx context.Context, args []string) error {
	inPath := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--file", "-f":
			if i+1 < len(args) {
				inPath = args[i+1]
				i++
			}
		}
	}
	if inPath == "" {
		return fmt.Errorf("import: missing export file (-f <path>)")
	}

	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	imported, skipped, err := store.ImportJSON(ctx, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "✓ Imported %d runs (%d skipped)\n", imported, skipped)
	return nil
}

func (c *CLI) recordRuns(ctx context.Context, patientID string, results []domain.ScoreResult) error {
	if err := c.cfg.EnsureDataDir(); err != nil {
		return err
	}
	store, err := c.openStore()
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	at := time.Now().UTC()
	for i := range results {
		if err := store.Save(ctx, history.NewScoreRun(patientID, &results[i], at)); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}
	return nil
}

// loadSnapshot reads and validates a patient snapshot from a JSON file.
func loadSnapshot(path string) (*domain.PatientSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap domain.PatientSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}
