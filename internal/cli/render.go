package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
	"github.com/hellf17/clinical-corvus-sub005/internal/history"
	"github.com/hellf17/clinical-corvus-sub005/pkg/remote"
)

// renderResults prints score results in the configured output format.
func (c *CLI) renderResults(results []domain.ScoreResult) error {
	if c.cfg.Format == "json" {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(c.out)
		}
		fmt.Fprintf(c.out, "%s: %d [%s]\n", r.Kind, r.Total, r.RiskLabel)
		fmt.Fprintln(c.out, strings.Repeat("-", 40))

		w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPONENT\tPOINTS\tVALUE")
		for _, comp := range r.Components {
			fmt.Fprintf(w, "%s\t%d\t%s\n", comp.Name, comp.Points, comp.Display)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// renderCrossChecks prints the outcome of remote cross-checks, one line per
// score, after the results themselves.
func (c *CLI) renderCrossChecks(checks []*remote.CrossCheckResult) error {
	if c.cfg.Format == "json" {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(checks)
	}

	fmt.Fprintln(c.out)
	for _, check := range checks {
		switch {
		case check.RemoteError != "":
			fmt.Fprintf(c.out, "✗ %s cross-check unavailable: %s\n", check.Kind, check.RemoteError)
		case check.Match:
			fmt.Fprintf(c.out, "✓ %s cross-check: remote agrees (total %d)\n", check.Kind, check.Remote.Total)
		default:
			fmt.Fprintf(c.out, "✗ %s cross-check: remote disagrees (local %d, remote %d)\n",
				check.Kind, check.Local.Total, check.Remote.Total)
		}
	}
	return nil
}

// renderRuns prints recorded score runs in the configured output format.
func (c *CLI) renderRuns(runs []*history.ScoreRun) error {
	if c.cfg.Format == "json" {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPUTED AT\tSCORE\tTOTAL\tRISK")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			run.ComputedAt.Format("2006-01-02 15:04"),
			run.ScoreKind,
			run.Total,
			run.RiskLabel,
		)
	}
	return w.Flush()
}
