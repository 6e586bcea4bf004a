package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/shared"
)

func periodsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Manage biweekly cut periods",
	}
	cmd.AddCommand(periodsSeedCmd())
	cmd.AddCommand(periodsListCmd())
	return cmd
}

func periodsSeedCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the 24 cut periods of a year; existing periods are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, pool, logger, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			services, err := app.NewServices(cfg, pool, nil, logger)
			if err != nil {
				return err
			}
			seeded, err := services.Periods.SeedYear(cmd.Context(), year)
			if err != nil {
				return err
			}
			return writePeriods(cmd, seeded)
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().Year(), "calendar year to seed")
	return cmd
}

func periodsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cut periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, pool, logger, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			services, err := app.NewServices(cfg, pool, nil, logger)
			if err != nil {
				return err
			}
			list, err := services.Periods.ListPeriods(cmd.Context(), periods.Status(status), shared.NewPage(limit, 0))
			if err != nil {
				return err
			}
			return writePeriods(cmd, list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func writePeriods(cmd *cobra.Command, list []periods.CutPeriod) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), list)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tSTART\tCUT\tPAYMENT\tSTATUS")
	for _, p := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Code,
			p.StartDate.Format(time.DateOnly), p.CutDate.Format(time.DateOnly),
			p.PaymentDate.Format(time.DateOnly), p.Status)
	}
	return tw.Flush()
}
