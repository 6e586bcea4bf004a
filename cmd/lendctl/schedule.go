package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/credinet/credinet/internal/amortization"
	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Amortization schedule tools",
	}
	cmd.AddCommand(schedulePreviewCmd())
	return cmd
}

func schedulePreviewCmd() *cobra.Command {
	var (
		amount     string
		term       int
		profile    string
		customRate string
		approval   string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the schedule a loan would get, without touching the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			catalog, err := rates.LoadCatalog(cfg.RateCatalogPath, cfg.LoanAmountIncrement)
			if err != nil {
				return err
			}

			principal, err := shared.ParseAmount("amount", amount)
			if err != nil {
				return err
			}
			in := amortization.QuoteInput{
				ProfileCode:  profile,
				Amount:       principal,
				TermBiweeks:  term,
				ApprovalDate: time.Now().UTC(),
			}
			if customRate != "" {
				rate, err := decimal.NewFromString(customRate)
				if err != nil {
					return shared.Invalid("custom_rate", "not a number")
				}
				in.CustomRate = &rate
			}
			if approval != "" {
				in.ApprovalDate, err = time.Parse(time.DateOnly, approval)
				if err != nil {
					return shared.Invalid("approval_date", "expected YYYY-MM-DD")
				}
			}

			quote, err := amortization.BuildQuote(catalog, in)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), quote)
			}
			return writeQuote(cmd, quote)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "principal, a multiple of the profile step")
	cmd.Flags().IntVar(&term, "term", 12, "term in biweekly installments")
	cmd.Flags().StringVar(&profile, "profile", "standard", "rate profile code")
	cmd.Flags().StringVar(&customRate, "custom-rate", "", "annual client rate in percent, custom profile only")
	cmd.Flags().StringVar(&approval, "approval-date", "", "approval date YYYY-MM-DD, defaults to today")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func writeQuote(cmd *cobra.Command, q amortization.Quote) error {
	s := q.Schedule.Summary
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "profile %s  amount %s  term %d  client rate %s%%  commission rate %s%%\n",
		q.ProfileCode, s.Amount.StringFixed(2), s.TermBiweeks,
		q.ClientRateAnnual.String(), q.CommissionRateAnnual.String())
	fmt.Fprintf(out, "biweekly %s  total %s  interest %s  commission %s  associate total %s\n\n",
		s.BiweeklyPayment.StringFixed(2), s.TotalPayment.StringFixed(2), s.TotalInterest.StringFixed(2),
		s.TotalCommission.StringFixed(2), s.TotalAssociatePayment.StringFixed(2))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tDUE\tEXPECTED\tPRINCIPAL\tINTEREST\tCOMMISSION\tASSOCIATE\tBALANCE\t")
	for _, row := range q.Schedule.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			row.Number, row.DueDate.Format(time.DateOnly),
			row.ExpectedAmount.StringFixed(2), row.Principal.StringFixed(2), row.Interest.StringFixed(2),
			row.Commission.StringFixed(2), row.AssociatePayment.StringFixed(2), row.BalanceAfter.StringFixed(2))
	}
	return tw.Flush()
}
