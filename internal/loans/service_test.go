package loans

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
)

type memoryRepo struct {
	loans      map[int64]*Loan
	payments   map[int64][]payments.Payment
	associates map[int64]*associates.Associate
	nextID     int64
	nextPayID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		loans:      make(map[int64]*Loan),
		payments:   make(map[int64][]payments.Payment),
		associates: make(map[int64]*associates.Associate),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	loans := make(map[int64]Loan, len(m.loans))
	for id, l := range m.loans {
		loans[id] = *l
	}
	pays := make(map[int64][]payments.Payment, len(m.payments))
	for id, ps := range m.payments {
		pays[id] = append([]payments.Payment(nil), ps...)
	}
	assoc := make(map[int64]associates.Associate, len(m.associates))
	for id, a := range m.associates {
		assoc[id] = *a
	}
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.loans = make(map[int64]*Loan, len(loans))
		for id, l := range loans {
			cp := l
			m.loans[id] = &cp
		}
		m.payments = pays
		for id, a := range assoc {
			cp := a
			m.associates[id] = &cp
		}
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return Loan{}, shared.NotFound("loan", id)
	}
	return *l, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Loan, error) {
	var out []Loan
	for _, l := range m.loans {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListPayments(ctx context.Context, loanID int64) ([]payments.Payment, error) {
	return append([]payments.Payment(nil), m.payments[loanID]...), nil
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) Insert(ctx context.Context, in CreateLoanInput, status Status) (Loan, error) {
	t.m.nextID++
	l := &Loan{
		ID:          t.m.nextID,
		ClientID:    in.ClientID,
		AssociateID: in.AssociateID,
		Amount:      in.Amount,
		TermBiweeks: in.TermBiweeks,
		ProfileCode: in.ProfileCode,
		CustomRate:  in.CustomRate,
		Status:      status,
		Notes:       in.Notes,
		CreatedBy:   in.CreatedBy,
	}
	t.m.loans[l.ID] = l
	return *l, nil
}

func (t *memoryTx) Lock(ctx context.Context, id int64) (Loan, error) {
	return t.m.Get(ctx, id)
}

func (t *memoryTx) Update(ctx context.Context, prev, next Loan) error {
	l, ok := t.m.loans[prev.ID]
	if !ok || l.Status != prev.Status {
		return shared.ConcurrentUpdate("loan", prev.ID)
	}
	*l = next
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	delete(t.m.loans, id)
	delete(t.m.payments, id)
	return nil
}

func (t *memoryTx) Associate(ctx context.Context, id int64) (associates.Associate, error) {
	a, ok := t.m.associates[id]
	if !ok {
		return associates.Associate{}, shared.NotFound("associate", id)
	}
	return *a, nil
}

func (t *memoryTx) ReserveCredit(ctx context.Context, id int64, amount decimal.Decimal) error {
	a, err := t.Associate(ctx, id)
	if err != nil {
		return err
	}
	if err := a.CanReserve(amount); err != nil {
		return err
	}
	t.m.associates[id].CreditUsed = a.CreditUsed.Add(amount)
	return nil
}

func (t *memoryTx) ReleaseCredit(ctx context.Context, id int64, amount decimal.Decimal) error {
	a := t.m.associates[id]
	a.CreditUsed = decimal.Max(decimal.Zero, a.CreditUsed.Sub(amount))
	return nil
}

func (t *memoryTx) InsertPayments(ctx context.Context, rows []payments.Payment) error {
	for _, p := range rows {
		t.m.nextPayID++
		p.ID = t.m.nextPayID
		t.m.payments[p.LoanID] = append(t.m.payments[p.LoanID], p)
	}
	return nil
}

func (t *memoryTx) CancelOpenPayments(ctx context.Context, loanID int64) (int, error) {
	n := 0
	for i := range t.m.payments[loanID] {
		p := &t.m.payments[loanID][i]
		if p.Status.Collectable() {
			p.Status = payments.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) HasStatementPayments(ctx context.Context, loanID int64) (bool, error) {
	for _, p := range t.m.payments[loanID] {
		if p.StatementID != nil {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) OpenPaymentCount(ctx context.Context, loanID int64) (int, error) {
	n := 0
	for _, p := range t.m.payments[loanID] {
		if p.Status.Collectable() {
			n++
		}
	}
	return n, nil
}

var approvalTime = time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *memoryRepo
	audit *shared.MemoryAudit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalog, err := rates.DefaultCatalog(decimal.NewFromInt(500))
	require.NoError(t, err)
	repo := newMemoryRepo()
	repo.associates[5] = &associates.Associate{ID: 5, Name: "Ana", CreditLimit: decimal.NewFromInt(25000), IsActive: true}
	audit := &shared.MemoryAudit{}
	svc := NewService(repo, catalog, audit, nil, nil)
	svc.WithNow(func() time.Time { return approvalTime })
	return fixture{svc: svc, repo: repo, audit: audit}
}

func (f fixture) pending(t *testing.T, amount int64) Loan {
	t.Helper()
	associateID := int64(5)
	loan, err := f.svc.CreateLoan(context.Background(), CreateLoanInput{
		ClientID:    11,
		AssociateID: &associateID,
		Amount:      decimal.NewFromInt(amount),
		TermBiweeks: 12,
		ProfileCode: rates.ProfileStandard,
		CreatedBy:   1,
	})
	require.NoError(t, err)
	return loan
}

func TestCreateLoanValidatesAgainstCatalog(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateLoan(context.Background(), CreateLoanInput{
		ClientID: 11, Amount: decimal.NewFromInt(10250), TermBiweeks: 12, ProfileCode: rates.ProfileStandard, CreatedBy: 1,
	})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "amount", verr.Field)

	_, err = f.svc.CreateLoan(context.Background(), CreateLoanInput{
		ClientID: 11, Amount: decimal.RequireFromString("10000.001"), TermBiweeks: 12, ProfileCode: rates.ProfileStandard, CreatedBy: 1,
	})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "amount", verr.Field)
	require.Contains(t, verr.Message, "2 decimal places")

	loan := f.pending(t, 10000)
	require.Equal(t, StatusPending, loan.Status)
	require.Nil(t, loan.InterestRate)
}

func TestApproveLoanMaterialisesScheduleAndReservesCredit(t *testing.T) {
	f := newFixture(t)
	loan := f.pending(t, 10000)

	approved, err := f.svc.ApproveLoan(context.Background(), ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.True(t, approved.InterestRate.Equal(decimal.NewFromInt(85)))
	require.True(t, approved.CommissionRate.Equal(decimal.NewFromInt(25)))
	require.Equal(t, approvalTime, *approved.ApprovedAt)

	rows := f.repo.payments[loan.ID]
	require.Len(t, rows, 12)
	require.Equal(t, time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC), rows[0].DueDate)
	for i, p := range rows {
		require.Equal(t, i+1, p.Number)
		require.Equal(t, payments.StatusPending, p.Status)
		require.Equal(t, "1187.50", p.ExpectedAmount.StringFixed(2))
	}
	require.Equal(t, "10000", f.repo.associates[5].CreditUsed.String())
	require.Equal(t, []string{"loan.create", "loan.approve"}, f.audit.Actions())
}

func TestApproveNonPendingIsConflict(t *testing.T) {
	f := newFixture(t)
	loan := f.pending(t, 10000)
	_, err := f.svc.ApproveLoan(context.Background(), ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	require.NoError(t, err)

	_, err = f.svc.ApproveLoan(context.Background(), ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	var cerr *shared.ConflictError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "APPROVED", cerr.Current)

	_, err = f.svc.RejectLoan(context.Background(), RejectInput{LoanID: loan.ID, RejectedBy: 2, Reason: "client withdrew the request"})
	require.True(t, errors.As(err, &cerr))
}

func TestApproveInsufficientCreditRollsBack(t *testing.T) {
	f := newFixture(t)
	first := f.pending(t, 20000)
	second := f.pending(t, 10000)
	_, err := f.svc.ApproveLoan(context.Background(), ApproveInput{LoanID: first.ID, ApprovedBy: 2})
	require.NoError(t, err)

	_, err = f.svc.ApproveLoan(context.Background(), ApproveInput{LoanID: second.ID, ApprovedBy: 2})
	require.True(t, errors.Is(err, shared.ErrPreconditionFailed))
	require.Empty(t, f.repo.payments[second.ID])
	require.Equal(t, StatusPending, f.repo.loans[second.ID].Status)
	require.Equal(t, "20000", f.repo.associates[5].CreditUsed.String())
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	loan := f.pending(t, 5000)

	_, err := f.svc.RejectLoan(context.Background(), RejectInput{LoanID: loan.ID, RejectedBy: 2, Reason: "too short"})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "rejection_reason", verr.Field)

	rejected, err := f.svc.RejectLoan(context.Background(), RejectInput{LoanID: loan.ID, RejectedBy: 2, Reason: "  income not verifiable  "})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "income not verifiable", *rejected.RejectionReason)
	require.Empty(t, f.repo.payments[loan.ID])
}

func TestDeleteRules(t *testing.T) {
	ctx := context.Background()

	t.Run("paid off blocked regardless of force", func(t *testing.T) {
		f := newFixture(t)
		loan := f.pending(t, 5000)
		f.repo.loans[loan.ID].Status = StatusPaidOff
		for _, force := range []bool{false, true} {
			err := f.svc.DeleteLoan(ctx, DeleteInput{LoanID: loan.ID, ActorID: 1, Force: force})
			var perr *shared.PreconditionFailedError
			require.True(t, errors.As(err, &perr))
		}
		require.Contains(t, f.repo.loans, loan.ID)
	})

	t.Run("active requires force and releases credit", func(t *testing.T) {
		f := newFixture(t)
		loan := f.pending(t, 5000)
		_, err := f.svc.ApproveLoan(ctx, ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
		require.NoError(t, err)

		err = f.svc.DeleteLoan(ctx, DeleteInput{LoanID: loan.ID, ActorID: 1})
		require.True(t, errors.Is(err, shared.ErrPreconditionFailed))

		require.NoError(t, f.svc.DeleteLoan(ctx, DeleteInput{LoanID: loan.ID, ActorID: 1, Force: true}))
		require.NotContains(t, f.repo.loans, loan.ID)
		require.Empty(t, f.repo.payments[loan.ID])
		require.True(t, f.repo.associates[5].CreditUsed.IsZero())
	})

	t.Run("statement payments block deletion", func(t *testing.T) {
		f := newFixture(t)
		loan := f.pending(t, 5000)
		_, err := f.svc.ApproveLoan(ctx, ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
		require.NoError(t, err)
		statementID := int64(40)
		f.repo.payments[loan.ID][0].StatementID = &statementID

		err = f.svc.DeleteLoan(ctx, DeleteInput{LoanID: loan.ID, ActorID: 1, Force: true})
		var perr *shared.PreconditionFailedError
		require.True(t, errors.As(err, &perr))
		assert.Contains(t, perr.Reason, "has_statement_payments")
	})

	t.Run("pending deletes without force", func(t *testing.T) {
		f := newFixture(t)
		loan := f.pending(t, 5000)
		require.NoError(t, f.svc.DeleteLoan(ctx, DeleteInput{LoanID: loan.ID, ActorID: 1}))
		_, err := f.svc.GetLoan(ctx, loan.ID)
		require.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestCancelCascadesOpenPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.pending(t, 6000)
	_, err := f.svc.ApproveLoan(ctx, ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	require.NoError(t, err)
	f.repo.payments[loan.ID][0].Status = payments.StatusPaid

	cancelled, err := f.svc.CancelLoan(ctx, CancelInput{LoanID: loan.ID, ActorID: 3, Reason: "duplicate application"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	rows := f.repo.payments[loan.ID]
	require.Equal(t, payments.StatusPaid, rows[0].Status)
	for _, p := range rows[1:] {
		require.Equal(t, payments.StatusCancelled, p.Status)
	}
	require.True(t, f.repo.associates[5].CreditUsed.IsZero())

	_, err = f.svc.CancelLoan(ctx, CancelInput{LoanID: loan.ID, ActorID: 3, Reason: "duplicate application"})
	require.True(t, errors.Is(err, shared.ErrConflict))
}

func TestTransitionLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.pending(t, 6000)

	_, err := f.svc.TransitionLoan(ctx, TransitionInput{LoanID: loan.ID, To: StatusDefaulted, ActorID: 1})
	require.True(t, errors.Is(err, shared.ErrConflict))

	_, err = f.svc.ApproveLoan(ctx, ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	require.NoError(t, err)

	_, err = f.svc.TransitionLoan(ctx, TransitionInput{LoanID: loan.ID, To: StatusPaidOff, ActorID: 1})
	require.True(t, errors.Is(err, shared.ErrPreconditionFailed))

	_, err = f.svc.TransitionLoan(ctx, TransitionInput{LoanID: loan.ID, To: StatusCancelled, ActorID: 1})
	require.True(t, errors.Is(err, shared.ErrValidation))

	moved, err := f.svc.TransitionLoan(ctx, TransitionInput{LoanID: loan.ID, To: StatusEarlyPayment, ActorID: 1})
	require.NoError(t, err)
	require.True(t, moved.Status.IsActive())
	require.Equal(t, "6000", f.repo.associates[5].CreditUsed.String())

	moved, err = f.svc.TransitionLoan(ctx, TransitionInput{LoanID: loan.ID, To: StatusRestructured, ActorID: 1})
	require.NoError(t, err)
	require.True(t, moved.Status.Terminal())
	require.True(t, f.repo.associates[5].CreditUsed.IsZero())
}

func TestLegacyActiveIsCanonicalApproved(t *testing.T) {
	require.Equal(t, StatusApproved, StatusActive.Canonical())
	require.True(t, StatusActive.IsActive())
	require.True(t, StatusApproved.IsActive())
	require.False(t, StatusPending.IsActive())

	f := newFixture(t)
	loan := f.pending(t, 6000)
	f.repo.loans[loan.ID].Status = StatusActive
	_, err := f.svc.TransitionLoan(context.Background(), TransitionInput{LoanID: loan.ID, To: StatusApproved, ActorID: 1})
	require.True(t, errors.Is(err, shared.ErrValidation))
	_, err = f.svc.TransitionLoan(context.Background(), TransitionInput{LoanID: loan.ID, To: StatusDefaulted, ActorID: 1})
	require.NoError(t, err)
}

func TestGetAmortizationSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loan := f.pending(t, 10000)

	projected, err := f.svc.GetAmortizationSchedule(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, projected.Projected)
	require.Len(t, projected.Rows, 12)
	require.Equal(t, "14250.00", projected.Outstanding.StringFixed(2))

	_, err = f.svc.ApproveLoan(ctx, ApproveInput{LoanID: loan.ID, ApprovedBy: 2})
	require.NoError(t, err)
	f.repo.payments[loan.ID][0].AmountPaid = decimal.RequireFromString("1187.50")
	f.repo.payments[loan.ID][0].Status = payments.StatusPaid

	persisted, err := f.svc.GetAmortizationSchedule(ctx, loan.ID)
	require.NoError(t, err)
	require.False(t, persisted.Projected)
	require.Equal(t, payments.StatusPaid, persisted.Rows[0].Status)
	require.NotZero(t, persisted.Rows[0].PaymentID)
	require.Equal(t, "1187.50", persisted.TotalPaid.StringFixed(2))
	require.Equal(t, "13062.50", persisted.Outstanding.StringFixed(2))
	require.Equal(t, "1187.50", persisted.Summary.BiweeklyPayment.StringFixed(2))
}

func TestStatusTableCoversEveryCode(t *testing.T) {
	codes := []Status{StatusPending, StatusApproved, StatusActive, StatusPaidOff, StatusDefaulted, StatusRejected,
		StatusCancelled, StatusRestructured, StatusOverdue, StatusEarlyPayment}
	require.Len(t, Statuses(), len(codes))
	for _, c := range codes {
		require.True(t, c.Valid(), c)
	}
}
