package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/reconcile"
)

func newQueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the offline alert queue",
	}

	cmd.AddCommand(newQueueListCmd(configPath), newQueuePurgeCmd(configPath))
	return cmd
}

func newQueueListCmd(configPath *string) *cobra.Command {
	var all, asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := openStore(cfg, clock.New())
			if err != nil {
				return err
			}
			defer store.Close()

			var records []queue.Record
			if all {
				records, err = store.List(cmd.Context())
			} else {
				records, err = store.ListPending(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("list queue: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return writeRecords(cmd, records)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include synced alerts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func writeRecords(cmd *cobra.Command, records []queue.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRIGGERED\tTYPE\tAUDIO\tSMS\tRESOLVED\tSYNCED\tATTEMPTS\tLAST ERROR")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%t\t%t\t%d\t%s\n",
			rec.ID,
			rec.TriggeredAt.Local().Format(time.DateTime),
			rec.TriggerType,
			len(rec.Audio),
			rec.NativeFallbackSent,
			rec.Resolved,
			rec.Synced,
			rec.Attempts,
			rec.LastError,
		)
	}
	return w.Flush()
}

func newQueuePurgeCmd(configPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete synced alerts older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				olderThan = cfg.Queue.GetRetention()
			}

			clk := clock.New()
			store, err := openStore(cfg, clk)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PurgeSynced(cmd.Context(), clk.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("purge queue: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d synced alerts older than %s\n", removed, olderThan)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff, defaults to the configured retention")

	return cmd
}

func newSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued alerts now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.refreshConnectivity(ctx) {
				return fmt.Errorf("service unreachable, alerts stay queued")
			}

			r := reconcile.New(a.store, a.coordinator, a.clock, reconcile.Config{
				RecordTimeout: cfg.Queue.GetSyncRecordTimeout(),
			}, logger, a.metrics)
			res, err := r.Run(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d alerts failed to sync", res.Failed, res.Pending)
			}
			return nil
		},
	}
}
