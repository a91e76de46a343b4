package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/xxxsen/apisync/internal/pkg/password"
	"github.com/xxxsen/apisync/internal/service"
)

func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSyncCmd(configPath *string) *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "run one scheduler tick, or one job with --job",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			ctx, stop := commandContext()
			defer stop()
			if jobID == "" {
				return app.Gate.Tick(ctx)
			}
			report, err := app.Gate.Trigger(ctx, jobID)
			if report != nil {
				if perr := printJSON(cmd, report); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id to run regardless of its interval")
	return cmd
}

func newJobCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "manage sync jobs",
	}

	importCmd := &cobra.Command{
		Use:   "import <catalog.json>",
		Short: "import bundles and jobs from a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()
			catalog, err := service.ParseCatalog(file)
			if err != nil {
				return err
			}
			result, err := app.Jobs.Import(cmd.Context(), catalog)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list jobs with their last status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			list, err := app.Jobs.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, st := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-6s in_sync=%-6d new=%d updated=%d skipped=%d deleted=%d error=%d  %s\n",
					st.Job.ID, st.State.Status, st.ItemsInSync,
					st.State.New, st.State.Updated, st.State.Skipped, st.State.Deleted, st.State.Error,
					st.State.Message)
			}
			return nil
		},
	}

	var ttl time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token <job>",
		Short: "issue a trigger token for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			token, err := app.Jobs.TriggerToken(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 never expires")

	cmd.AddCommand(importCmd, listCmd, tokenCmd)
	return cmd
}

func newPurgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <job>",
		Short: "delete every record a job has synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			deleted, err := app.Jobs.Purge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records\n", deleted)
			return nil
		},
	}
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <admin key>",
		Short: "print the bcrypt hash to put in admin.key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := password.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
