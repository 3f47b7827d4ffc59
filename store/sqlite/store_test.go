package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/sqlite"
	"github.com/xraph/dues/store/storetest"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	sdb := sqlitedriver.New()
	require.NoError(t, sdb.Open(ctx, filepath.Join(t.TempDir(), "dues.db")))
	db, err := grove.Open(sdb)
	require.NoError(t, err)

	s := sqlite.New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openStore(t) })
}

func TestSQLiteEngineSettlesDebt(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	clock := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)

	e := dues.New(s, dues.WithClock(func() time.Time { return clock }))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	admin := dues.System()
	p, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "walk-in", MonthlyFee: player.Fee(12)})
	require.NoError(t, err)

	res, err := e.RecordSession(ctx, admin, p.ID, clock, attendance.SourceStaff)
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeDebt, res.Outcome)
	require.NotNil(t, res.Debt)

	// Same day again is a no-op.
	res, err = e.RecordSession(ctx, admin, p.ID, clock, attendance.SourceStaff)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, attendance.OutcomeDuplicate, res.Outcome)

	debts, err := s.ListReceipts(ctx, receipt.ListOpts{PlayerID: p.ID, Kinds: []receipt.Kind{receipt.KindDebt}})
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, int64(12), debts[0].Amount)
	assert.NotEmpty(t, debts[0].Number)

	_, err = e.PayDebt(ctx, admin, debts[0].ID, dues.PaymentInput{})
	require.NoError(t, err)
	_, err = e.PayDebt(ctx, admin, debts[0].ID, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrAlreadySettled)

	settling, err := s.SettlingReceipt(ctx, receipt.TargetDebt, debts[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, receipt.SourceDebtPayment, settling.Source)
	assert.Equal(t, int64(12), settling.Amount)
}
