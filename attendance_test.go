package dues_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/receipt"
)

func TestRecordSessionDuplicateIsNoOp(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	first, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	require.Equal(t, attendance.OutcomeDebt, first.Outcome)

	second, err := e.RecordSession(ctx, admin, p.ID, dayN(0).Add(3*time.Hour), attendance.SourceStaff)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Nil(t, second.Debt)
	require.NotNil(t, second.Attendance)
	require.Equal(t, first.Attendance.ID, second.Attendance.ID)

	n, err := e.Store().CountAttendance(ctx, p.ID, dayN(0), dayN(0))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	debts, err := e.OutstandingDebts(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, debts, 1)
}

func TestBalanceConservation(t *testing.T) {
	tests := []struct {
		name     string
		taken    int
		price    int64
		sessions int
		credit   int64
		owed     int64
	}{
		{"nothing", 0, 10, 0, 0, 0},
		{"no credit", 3, 10, 0, 0, 30},
		{"partial credit", 3, 10, 2, 25, 5},
		{"overpaid", 1, 10, 3, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t)
			ctx := context.Background()
			p := sessionPlayer(t, e, "p", tt.price)

			if tt.credit > 0 {
				_, err := e.PaySessions(ctx, admin, p.ID, tt.sessions, dues.PaymentInput{Amount: tt.credit})
				require.NoError(t, err)
			}
			for i := range tt.taken {
				_, err := e.RecordSession(ctx, admin, p.ID, dayN(i), attendance.SourceStaff)
				require.NoError(t, err)
			}

			b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
			require.NoError(t, err)
			assert.Equal(t, tt.taken, b.SessionsTaken)
			assert.Equal(t, tt.credit, b.PrepaidCredit)
			assert.Equal(t, tt.owed, b.OwedAmount)
			assert.GreaterOrEqual(t, b.OwedAmount, int64(0))
			require.NotNil(t, b.Price)
			assert.Equal(t, tt.price, *b.Price)
		})
	}
}

func TestDebtTriggerCreatesOneDebtPerSession(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	_, err := e.PaySessions(ctx, admin, p.ID, 3, dues.PaymentInput{})
	require.NoError(t, err)

	for i := range 3 {
		res, err := e.RecordSession(ctx, admin, p.ID, dayN(i), attendance.SourceStaff)
		require.NoError(t, err)
		require.Equal(t, attendance.OutcomePrepaid, res.Outcome)
		require.True(t, res.Attendance.Paid)
		require.Nil(t, res.Debt)
	}

	fourth, err := e.RecordSession(ctx, admin, p.ID, dayN(3), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, fourth.Outcome)
	require.NotNil(t, fourth.Debt)
	require.Equal(t, int64(10), fourth.Debt.Amount)
	require.True(t, fourth.Debt.IsDebt())
	require.Equal(t, receipt.SourceAutoDebt, fourth.Debt.Source)
	require.False(t, fourth.Attendance.Paid)

	debts, err := e.OutstandingDebts(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, debts, 1)

	fifth, err := e.RecordSession(ctx, admin, p.ID, dayN(4), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, fifth.Outcome)

	debts, err = e.OutstandingDebts(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	for _, d := range debts {
		require.Equal(t, int64(10), d.Amount)
	}

	logs, err := e.Store().ListReceipts(ctx, receipt.ListOpts{
		PlayerID: p.ID,
		Sources:  []receipt.Source{receipt.SourceSessionLog},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 2, logs[0].SessionsTaken)
	require.Zero(t, logs[0].Amount)
}

func TestRecordSessionMonthlyPayer(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "m", 20)

	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeMonthly, res.Outcome)
	require.True(t, res.Attendance.Paid)

	receipts, err := e.Store().ListReceipts(ctx, receipt.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Empty(t, receipts)
}

func TestRecordSessionWithoutPriceRecordsZeroDebt(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "unpriced"})
	require.NoError(t, err)

	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, res.Outcome)
	require.Zero(t, res.Debt.Amount)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	require.Nil(t, b.Price)
	require.Zero(t, b.OwedAmount)
}

func TestZeroPriceDebtIsLogged(t *testing.T) {
	var buf bytes.Buffer
	e := newEngine(t, dues.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	ctx := context.Background()
	p := sessionPlayer(t, e, "free", 0)

	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, res.Outcome)
	require.Zero(t, res.Debt.Amount)
	require.Contains(t, buf.String(), "debt recorded without a per-session price")
}

func TestRecordSessionInactivePlayer(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)
	require.NoError(t, e.DeactivatePlayer(ctx, admin, p.ID))

	_, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.ErrorIs(t, err, dues.ErrInactivePlayer)
}

func TestLegacyReceiptIsBackfilledOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	legacy, err := e.IssueReceipt(ctx, admin, dues.IssueInput{
		Kind:     receipt.KindPerSession,
		Source:   receipt.SourceImport,
		PlayerID: p.ID,
		Amount:   25,
		PaidAt:   dayN(-30),
	})
	require.NoError(t, err)
	require.Zero(t, legacy.SessionsPaid)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	require.Equal(t, 3, b.InferredSessions)
	require.Equal(t, 3, b.SessionsPaid)

	first, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeBackfilled, first.Outcome)

	stored, err := e.Store().GetReceipt(ctx, legacy.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.SessionsPaid)
	require.Equal(t, 1, stored.SessionsTaken)
	require.Equal(t, int64(25), stored.Amount)

	b, err = e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	require.Zero(t, b.InferredSessions)
	require.Equal(t, 3, b.SessionsPaid)

	for i := 1; i < 3; i++ {
		res, err := e.RecordSession(ctx, admin, p.ID, dayN(i), attendance.SourceStaff)
		require.NoError(t, err)
		require.Equal(t, attendance.OutcomePrepaid, res.Outcome)
	}
	res, err := e.RecordSession(ctx, admin, p.ID, dayN(3), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, res.Outcome)
}

func TestInferSessions(t *testing.T) {
	tests := []struct {
		amount, price int64
		want          int
	}{
		{25, 10, 3},
		{24, 10, 2},
		{15, 10, 2},
		{14, 10, 1},
		{5, 10, 1},
		{4, 10, 0},
		{30, 10, 3},
		{0, 10, 0},
		{10, 0, 0},
		{-10, 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dues.InferSessions(tt.amount, tt.price), "%d/%d", tt.amount, tt.price)
	}
}

func TestPrepaidSlotsConsumedOldestFirst(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	older, err := e.PaySessions(ctx, admin, p.ID, 1, dues.PaymentInput{PaidAt: dayN(-10)})
	require.NoError(t, err)
	newer, err := e.PaySessions(ctx, admin, p.ID, 1, dues.PaymentInput{PaidAt: dayN(-5)})
	require.NoError(t, err)

	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, older.ID, res.Receipt.ID)

	res, err = e.RecordSession(ctx, admin, p.ID, dayN(1), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, newer.ID, res.Receipt.ID)
}

func TestRecordSessionConcurrentNeverOverspends(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)
	_, err := e.PaySessions(ctx, admin, p.ID, 5, dues.PaymentInput{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.RecordSession(ctx, admin, p.ID, dayN(i), attendance.SourceStaff); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	debts, err := e.OutstandingDebts(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, debts, 3)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	require.Equal(t, 8, b.SessionsTaken)
	require.Equal(t, int64(30), b.OwedAmount)
	require.Equal(t, int64(30), b.OutstandingDebts)
	require.True(t, b.InDebt)
}

func TestBalanceIsRangeBounded(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	for i := range 3 {
		_, err := e.RecordSession(ctx, admin, p.ID, dayN(i), attendance.SourceStaff)
		require.NoError(t, err)
	}

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{From: dayN(1), To: dayN(1)})
	require.NoError(t, err)
	require.Equal(t, 1, b.SessionsTaken)
	require.Equal(t, int64(10), b.OwedAmount)
}
