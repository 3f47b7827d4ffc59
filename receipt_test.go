package dues_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store/memory"
)

func TestReceiptNumbersAreUniqueAndStable(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	a, err := e.PaySessions(ctx, admin, p.ID, 1, dues.PaymentInput{})
	require.NoError(t, err)
	b, err := e.PaySessions(ctx, admin, p.ID, 2, dues.PaymentInput{})
	require.NoError(t, err)

	require.NotEqual(t, a.Number, b.Number)
	require.True(t, strings.HasPrefix(a.Number, "RCPT-20240603-"), a.Number)
	require.Equal(t, receipt.FormatNumber(a.IssuedAt(), a.Seq), a.Number)

	again, err := e.Store().GetReceipt(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Number, again.Number)

	byNumber, err := e.Store().GetReceiptByNumber(ctx, b.Number)
	require.NoError(t, err)
	require.Equal(t, b.ID, byNumber.ID)
}

func TestReceiptNumberUsesIssueDate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	r, err := e.PaySessions(ctx, admin, p.ID, 1, dues.PaymentInput{PaidAt: dayN(-10)})
	require.NoError(t, err)
	require.Equal(t, "2024-05-24", r.PaidAt.Format(time.DateOnly))
	require.True(t, strings.HasPrefix(r.Number, "RCPT-20240603-"), r.Number)
}

func TestPaymentsCheckCallerBeforeLookup(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)
	self := dues.Caller{ID: "p", PlayerID: p.ID}

	tests := []struct {
		name string
		pay  func() error
	}{
		{"monthly due", func() error {
			_, err := e.PayMonthlyDue(ctx, self, id.NewDueID(), dues.PaymentInput{})
			return err
		}},
		{"registration", func() error {
			_, err := e.PayRegistration(ctx, self, id.NewRegistrationID(), dues.PaymentInput{})
			return err
		}},
		{"sessions", func() error {
			_, err := e.PaySessions(ctx, self, id.NewPlayerID(), 1, dues.PaymentInput{})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pay()
			require.ErrorIs(t, err, dues.ErrUnauthorized)
			require.False(t, dues.IsNotFound(err))
		})
	}
}

func TestPayMonthlyDueRejectsDuplicatePayment(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)
	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	d, err := e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)

	r, err := e.PayMonthlyDue(ctx, admin, d.ID, dues.PaymentInput{Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, receipt.KindMonthly, r.Kind)
	require.Equal(t, int64(20), r.Amount)
	require.Equal(t, 2024, r.Year)
	require.Equal(t, 6, r.Month)

	d, err = e.Store().GetDue(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, d.Paid)
	require.NotNil(t, d.PaidOn)

	_, err = e.PayMonthlyDue(ctx, admin, d.ID, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrAlreadySettled)
	require.Equal(t, "dues: duplicate payment not allowed", err.Error())

	receipts, err := e.Store().ListReceipts(ctx, receipt.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
}

func TestIssueReceiptValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)
	other := sessionPlayer(t, e, "o", 10)

	tests := []struct {
		name string
		in   dues.IssueInput
		want error
	}{
		{"debt kind", dues.IssueInput{Kind: receipt.KindDebt, PlayerID: p.ID, Amount: 10}, dues.ErrInvalidKind},
		{"bulk kind", dues.IssueInput{Kind: receipt.KindBulk, PlayerID: p.ID, Amount: 100}, dues.ErrInvalidKind},
		{"unknown kind", dues.IssueInput{Kind: "gift", PlayerID: p.ID, Amount: 10}, dues.ErrInvalidKind},
		{"no amount", dues.IssueInput{Kind: receipt.KindEvent, PlayerID: p.ID}, dues.ErrAmountRequired},
		{"monthly without month", dues.IssueInput{Kind: receipt.KindMonthly, PlayerID: p.ID, Amount: 20}, dues.ErrInvalidMonth},
		{"unknown player", dues.IssueInput{Kind: receipt.KindEvent, PlayerID: id.NewPlayerID(), Amount: 10}, dues.ErrPlayerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.IssueReceipt(ctx, admin, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("other player's debt", func(t *testing.T) {
		res, err := e.RecordSession(ctx, admin, other.ID, dayN(0), attendance.SourceStaff)
		require.NoError(t, err)
		_, err = e.IssueReceipt(ctx, admin, dues.IssueInput{
			Kind:         receipt.KindPerSession,
			PlayerID:     p.ID,
			Amount:       10,
			SessionsPaid: 1,
			Links: []receipt.Link{{
				TargetType: receipt.TargetDebt,
				TargetID:   res.Debt.ID.String(),
				Amount:     10,
				Settles:    true,
			}},
		})
		require.ErrorIs(t, err, dues.ErrWrongPlayer)
	})

	t.Run("per-session without count", func(t *testing.T) {
		_, err := e.IssueReceipt(ctx, admin, dues.IssueInput{Kind: receipt.KindPerSession, PlayerID: p.ID, Amount: 10})
		require.True(t, dues.IsValidation(err))
	})
}

func TestPayDebtSpendsItsSlot(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.NotNil(t, res.Debt)

	paid, err := e.PayDebt(ctx, admin, res.Debt.ID, dues.PaymentInput{})
	require.NoError(t, err)
	require.Equal(t, receipt.KindPerSession, paid.Kind)
	require.Equal(t, receipt.SourceDebtPayment, paid.Source)
	require.Equal(t, int64(10), paid.Amount)
	require.Equal(t, 1, paid.SessionsPaid)
	require.Equal(t, 1, paid.SessionsTaken)

	a, err := e.Store().GetAttendance(ctx, res.Attendance.ID)
	require.NoError(t, err)
	require.True(t, a.Paid)
	require.Equal(t, paid.ID, *a.ReceiptID)

	debts, err := e.OutstandingDebts(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Empty(t, debts)

	next, err := e.RecordSession(ctx, admin, p.ID, dayN(1), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, next.Outcome)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	require.Equal(t, int64(10), b.OwedAmount)
	require.Equal(t, int64(10), b.OutstandingDebts)

	_, err = e.PayDebt(ctx, admin, res.Debt.ID, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrAlreadySettled)

	_, err = e.PayDebt(ctx, admin, paid.ID, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrNotDebt)
}

func TestPayRegistrationChargesComputedFee(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)

	ev, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "Open", StartsOn: dayN(10)})
	require.NoError(t, err)
	kata, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "Kata", Fee: player.Fee(15)})
	require.NoError(t, err)
	free, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "Team"})
	require.NoError(t, err)

	reg, err := e.Register(ctx, admin, ev.ID, dues.RegistrationInput{
		PlayerID: p.ID,
		Entries:  []event.Entry{{CategoryID: kata.ID}, {CategoryID: free.ID}},
	})
	require.NoError(t, err)

	r, err := e.PayRegistration(ctx, admin, reg.ID, dues.PaymentInput{})
	require.NoError(t, err)
	require.Equal(t, receipt.KindEvent, r.Kind)
	require.Equal(t, int64(15), r.Amount)

	stored, err := e.Store().GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, stored.Paid)
}

func TestPayRegistrationUnpricedNeedsAmount(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)
	ev, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "Camp", StartsOn: dayN(1)})
	require.NoError(t, err)
	c, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "All"})
	require.NoError(t, err)
	reg, err := e.Register(ctx, admin, ev.ID, dues.RegistrationInput{PlayerID: p.ID, Entries: []event.Entry{{CategoryID: c.ID}}})
	require.NoError(t, err)

	_, err = e.PayRegistration(ctx, admin, reg.ID, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrAmountRequired)

	r, err := e.PayRegistration(ctx, admin, reg.ID, dues.PaymentInput{Amount: 40})
	require.NoError(t, err)
	require.Equal(t, int64(40), r.Amount)
}

func TestFeeOverridePrecedence(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)
	ev, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "Cup", StartsOn: dayN(5)})
	require.NoError(t, err)
	a, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "A", Fee: player.Fee(20)})
	require.NoError(t, err)
	b, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "B", Fee: player.Fee(20)})
	require.NoError(t, err)

	reg, err := e.Register(ctx, admin, ev.ID, dues.RegistrationInput{
		PlayerID:    p.ID,
		Entries:     []event.Entry{{CategoryID: a.ID}, {CategoryID: b.ID}},
		FeeOverride: player.Fee(0),
	})
	require.NoError(t, err)

	fee, err := e.RegistrationFee(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fee.Amount)
	assert.True(t, fee.Counted)
	assert.True(t, fee.Override)
}

func TestRegisterRejectsForeignCategory(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)
	ev1, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "One", StartsOn: dayN(1)})
	require.NoError(t, err)
	ev2, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "Two", StartsOn: dayN(2)})
	require.NoError(t, err)
	c, err := e.AddCategory(ctx, admin, ev2.ID, dues.CategoryInput{Name: "X"})
	require.NoError(t, err)

	_, err = e.Register(ctx, admin, ev1.ID, dues.RegistrationInput{PlayerID: p.ID, Entries: []event.Entry{{CategoryID: c.ID}}})
	require.ErrorIs(t, err, dues.ErrCategoryNotFound)

	_, err = e.Register(ctx, admin, ev2.ID, dues.RegistrationInput{PlayerID: p.ID})
	require.NoError(t, err)
	_, err = e.Register(ctx, admin, ev2.ID, dues.RegistrationInput{PlayerID: p.ID})
	require.ErrorIs(t, err, dues.ErrAlreadyExists)
}

// ──────────────────────────────────────────────────
// Paid flags
// ──────────────────────────────────────────────────

// flakyStore fails MarkDuePaid while broken is set.
type flakyStore struct {
	*memory.Store
	broken atomic.Bool
}

func (s *flakyStore) MarkDuePaid(ctx context.Context, dueID id.DueID, paidOn time.Time) (bool, error) {
	if s.broken.Load() {
		return false, errors.New("connection reset")
	}
	return s.Store.MarkDuePaid(ctx, dueID, paidOn)
}

type flagWatcher struct {
	failures atomic.Int32
	issued   atomic.Int32
}

func (w *flagWatcher) Name() string { return "flag-watcher" }

func (w *flagWatcher) OnSettlementFlagFailed(context.Context, *receipt.Receipt, receipt.Link, error) error {
	w.failures.Add(1)
	return nil
}

func (w *flagWatcher) OnReceiptIssued(context.Context, *receipt.Receipt) error {
	w.issued.Add(1)
	return nil
}

func TestFlagFailureKeepsReceiptAndSweepRepairs(t *testing.T) {
	s := &flakyStore{Store: memory.New()}
	w := &flagWatcher{}
	e := newEngineOn(t, s, dues.WithPlugin(w))
	ctx := context.Background()

	p := monthlyPlayer(t, e, "m", 20)
	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	d, err := s.GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)

	s.broken.Store(true)
	r, err := e.PayMonthlyDue(ctx, admin, d.ID, dues.PaymentInput{})
	require.NoError(t, err)
	require.NotEmpty(t, r.Number)
	require.Equal(t, int32(1), w.failures.Load())
	require.Equal(t, int32(1), w.issued.Load())

	d, err = s.GetDue(ctx, d.ID)
	require.NoError(t, err)
	require.False(t, d.Paid)

	s.broken.Store(false)
	res, err := e.RepairPaidFlags(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, 1, res.Flipped)

	d, err = s.GetDue(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, d.Paid)

	res, err = e.RepairPaidFlags(ctx, admin)
	require.NoError(t, err)
	require.Zero(t, res.Flipped)
}

func TestAssignMissingNumbers(t *testing.T) {
	s := memory.New()
	e := newEngineOn(t, s)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	raw := &receipt.Receipt{
		ID:           id.NewReceiptID(),
		Kind:         receipt.KindPerSession,
		Source:       receipt.SourceImport,
		PlayerID:     p.ID,
		Amount:       30,
		Currency:     "EUR",
		SessionsPaid: 3,
		PaidAt:       dayN(-40),
	}
	require.NoError(t, s.CreateReceipt(ctx, raw))

	n, err := e.AssignMissingNumbers(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.GetReceipt(ctx, raw.ID)
	require.NoError(t, err)
	require.Equal(t, receipt.FormatNumber(raw.PaidAt, raw.Seq), got.Number)

	n, err = e.AssignMissingNumbers(ctx, admin)
	require.NoError(t, err)
	require.Zero(t, n)
}
