package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/kailas-cloud/ragdex/internal/repository/buildlock"
)

func runHistory(ctx context.Context, c *cli, args []string) error {
	fs, cfgPath := c.flags("history")
	limit := fs.Int("n", 10, "number of builds to show, newest first")
	asJSON := fs.Bool("json", false, "print entries as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, cfg, err := c.setup(ctx, *cfgPath)
	if err != nil {
		return err
	}

	entries, err := buildlock.ReadHistory(cfg.IndexPath(), *limit, cfg.LockTimeout())
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.stdout, "no builds recorded")
		return nil
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tDURATION\tDOCS\tCHUNKS\tDIM\tMODEL\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			e.ID, e.Status, e.StartedAt.Local().Format(time.DateTime), e.Duration().Round(time.Millisecond),
			e.Documents, e.Chunks, e.Dimension, e.Model, e.Error)
	}
	return tw.Flush()
}
