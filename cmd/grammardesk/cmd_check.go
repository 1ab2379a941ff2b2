package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"grammardesk/internal/reconcile"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every configured area and check its header against the field policy",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	source, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	reconciler, err := reconcile.New(reconcile.Options{StageMax: cfg.StageMax, Location: loc})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, area := range source.Areas() {
		st, err := source.Open(ctx, area)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", area, err)
			failed++
			continue
		}
		records, err := st.LoadRecords(ctx)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", area, err)
			failed++
			continue
		}
		if len(records) == 0 {
			fmt.Fprintf(out, "- %s: no rows\n", area)
			continue
		}
		report, err := reconciler.ValidateSchema(records[0].Schema)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: missing %s\n", area, strings.Join(report.Missing, ", "))
			failed++
			continue
		}
		fmt.Fprintf(out, "✓ %s: %d rows\n", area, len(records))
		if len(report.Defaulted) > 0 {
			fmt.Fprintf(out, "  default policy: %s\n", strings.Join(report.Defaulted, ", "))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d area(s) failed", failed)
	}
	return nil
}
