package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/loans"
)

type fakeAssociates struct {
	created []associates.CreateInput
}

func (f *fakeAssociates) Create(ctx context.Context, in associates.CreateInput) (associates.Associate, error) {
	f.created = append(f.created, in)
	return associates.Associate{ID: int64(len(f.created)), Name: in.Name, CreditLimit: in.CreditLimit, IsActive: true}, nil
}

type fakeLoans struct {
	created    []loans.CreateLoanInput
	approved   []int64
	approveErr error
}

func (f *fakeLoans) CreateLoan(ctx context.Context, in loans.CreateLoanInput) (loans.Loan, error) {
	f.created = append(f.created, in)
	return loans.Loan{ID: int64(len(f.created)), ClientID: in.ClientID, AssociateID: in.AssociateID, Amount: in.Amount, Status: loans.StatusPending}, nil
}

func (f *fakeLoans) ApproveLoan(ctx context.Context, in loans.ApproveInput) (loans.Loan, error) {
	if f.approveErr != nil {
		return loans.Loan{}, f.approveErr
	}
	f.approved = append(f.approved, in.LoanID)
	return loans.Loan{ID: in.LoanID, Amount: decimal.NewFromInt(1), Status: loans.StatusApproved}, nil
}

func TestDemoSeederBuildsBook(t *testing.T) {
	assoc := &fakeAssociates{}
	book := &fakeLoans{}
	var out bytes.Buffer
	seeder := demoSeeder{associates: assoc, loans: book, out: &out}

	sum, err := seeder.run(context.Background(), 6, decimal.NewFromInt(100000), 9)
	require.NoError(t, err)

	assert.Equal(t, demoSummary{Associates: 6, Loans: 6 * len(demoBook), Approved: 6 * 3}, sum)
	assert.Equal(t, "Distribuidora Norte 2", assoc.created[5].Name)
	for _, in := range book.created {
		require.NotNil(t, in.AssociateID)
		assert.Equal(t, int64(9), in.CreatedBy)
	}
	assert.Equal(t, int64(101), book.created[0].ClientID)
	assert.Equal(t, int64(204), book.created[7].ClientID)
	assert.Contains(t, out.String(), "pending")
}

func TestDemoSeederStopsOnError(t *testing.T) {
	book := &fakeLoans{approveErr: errors.New("insufficient credit")}
	seeder := demoSeeder{associates: &fakeAssociates{}, loans: book, out: &bytes.Buffer{}}

	sum, err := seeder.run(context.Background(), 2, decimal.NewFromInt(1000), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approve loan 1")
	assert.Equal(t, 1, sum.Associates)
	assert.Equal(t, 1, sum.Loans)
}
