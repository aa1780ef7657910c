package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"order-ingest/internal/ingest"
	"order-ingest/internal/worker"

	"github.com/spf13/cobra"
)

// Runner is what the command drives
type Runner interface {
	Ingest(ctx context.Context, tenantID string) (*ingest.Result, error)
	RunAll(ctx context.Context) ([]worker.TenantOutcome, error)
}

// RunnerFactory builds a Runner and a cleanup func
type RunnerFactory func() (Runner, func(), error)

type rootOptions struct {
	all bool
}

func newRootCommand(factory RunnerFactory) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <tenant-id>",
		Short: "Ingest Shopify orders for a tenant",
		Long: `Incrementally ingest Shopify orders for every connected account of a tenant,
then refresh the daily metrics.

Example:
  ingest 6f1c0b7e-tenant
  ingest --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, cleanup, err := factory()
			if err != nil {
				return err
			}
			defer cleanup()

			if opts.all {
				return runAll(cmd.Context(), runner, cmd.OutOrStdout())
			}
			return runTenant(cmd.Context(), runner, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "ingest every tenant with a connected account")
	return cmd
}

func runTenant(ctx context.Context, runner Runner, tenantID string, out io.Writer) error {
	result, err := runner.Ingest(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, acc := range result.Accounts {
		fmt.Fprintf(out, "  account %s: %d orders, %d pages, %d detail fetches\n",
			acc.AccountID, acc.Orders, acc.Pages, acc.DetailFetches)
	}
	return nil
}

func runAll(ctx context.Context, runner Runner, out io.Writer) error {
	outcomes, err := runner.RunAll(ctx)
	for _, o := range outcomes {
		status := "ok"
		if o.Err != nil {
			status = "failed: " + o.Err.Error()
		}
		fmt.Fprintf(out, "  tenant %s: %s\n", o.TenantID, status)
	}
	return err
}

// execute runs the command and reports the outcome; it returns the exit code
func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, ingest.ErrNoAccounts) {
			fmt.Fprintln(stderr, "❌ Ingestion failed: no connected accounts for tenant")
		} else {
			fmt.Fprintf(stderr, "❌ Ingestion failed: %v\n", err)
		}
		return 1
	}
	fmt.Fprintln(stdout, "✅ Ingestion completed")
	return 0
}
