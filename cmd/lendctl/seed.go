package main

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/loans"
)

type associateCreator interface {
	Create(ctx context.Context, in associates.CreateInput) (associates.Associate, error)
}

type loanOriginator interface {
	CreateLoan(ctx context.Context, in loans.CreateLoanInput) (loans.Loan, error)
	ApproveLoan(ctx context.Context, in loans.ApproveInput) (loans.Loan, error)
}

// demoLoan is one row of the fixed demo book.
type demoLoan struct {
	amount  int64
	term    int
	profile string
	approve bool
}

var (
	demoAssociates = []string{"Distribuidora Norte", "Grupo Alameda", "Comercial Del Valle", "Red Sur", "Unión Centro"}
	demoBook       = []demoLoan{
		{amount: 10000, term: 12, profile: "standard", approve: true},
		{amount: 5000, term: 6, profile: "standard", approve: true},
		{amount: 25000, term: 24, profile: "premium", approve: true},
		{amount: 7500, term: 18, profile: "standard", approve: false},
	}
)

type demoSeeder struct {
	associates associateCreator
	loans      loanOriginator
	out        io.Writer
}

type demoSummary struct {
	Associates int `json:"associates"`
	Loans      int `json:"loans"`
	Approved   int `json:"approved"`
}

// run creates n associates, each with the demo book of loans. Clients are numbered per
// associate so reruns produce new, non-overlapping rows.
func (d demoSeeder) run(ctx context.Context, n int, creditLimit decimal.Decimal, actorID int64) (demoSummary, error) {
	var sum demoSummary
	for i := 0; i < n; i++ {
		name := demoAssociates[i%len(demoAssociates)]
		if i >= len(demoAssociates) {
			name = fmt.Sprintf("%s %d", name, i/len(demoAssociates)+1)
		}
		assoc, err := d.associates.Create(ctx, associates.CreateInput{Name: name, CreditLimit: creditLimit, ActorID: actorID})
		if err != nil {
			return sum, fmt.Errorf("associate %q: %w", name, err)
		}
		sum.Associates++
		fmt.Fprintf(d.out, "associate %d %s limit %s\n", assoc.ID, assoc.Name, creditLimit.StringFixed(2))

		for j, spec := range demoBook {
			associateID := assoc.ID
			loan, err := d.loans.CreateLoan(ctx, loans.CreateLoanInput{
				ClientID:    assoc.ID*100 + int64(j) + 1,
				AssociateID: &associateID,
				Amount:      decimal.NewFromInt(spec.amount),
				TermBiweeks: spec.term,
				ProfileCode: spec.profile,
				Notes:       "demo seed",
				CreatedBy:   actorID,
			})
			if err != nil {
				return sum, fmt.Errorf("loan %d for associate %d: %w", j+1, assoc.ID, err)
			}
			sum.Loans++
			if !spec.approve {
				fmt.Fprintf(d.out, "  loan %d %s pending\n", loan.ID, loan.Amount.StringFixed(2))
				continue
			}
			approved, err := d.loans.ApproveLoan(ctx, loans.ApproveInput{LoanID: loan.ID, ApprovedBy: actorID, Notes: "demo seed"})
			if err != nil {
				return sum, fmt.Errorf("approve loan %d: %w", loan.ID, err)
			}
			sum.Approved++
			fmt.Fprintf(d.out, "  loan %d %s %s\n", approved.ID, approved.Amount.StringFixed(2), approved.Status)
		}
	}
	return sum, nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample data",
	}
	cmd.AddCommand(seedDemoCmd())
	return cmd
}

func seedDemoCmd() *cobra.Command {
	var (
		count   int
		limit   string
		actorID int64
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create demo associates with approved and pending loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creditLimit, err := decimal.NewFromString(limit)
			if err != nil {
				return fmt.Errorf("--credit-limit: %w", err)
			}
			cfg, pool, logger, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()
			services, err := app.NewServices(cfg, pool, nil, logger)
			if err != nil {
				return err
			}
			seeder := demoSeeder{associates: services.Associates, loans: services.Loans, out: cmd.ErrOrStderr()}
			sum, err := seeder.run(cmd.Context(), count, creditLimit, actorID)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d associates, %d loans (%d approved)\n", sum.Associates, sum.Loans, sum.Approved)
			return err
		},
	}
	cmd.Flags().IntVar(&count, "associates", 3, "number of associates to create")
	cmd.Flags().StringVar(&limit, "credit-limit", "100000", "credit limit per associate")
	cmd.Flags().Int64Var(&actorID, "actor", 1, "actor id recorded in the audit log")
	return cmd
}
