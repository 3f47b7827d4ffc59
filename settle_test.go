package dues_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
)

// mixedObligations leaves a player with one unpaid due of 20, one debt of
// 10 and one registration of 15.
func mixedObligations(t *testing.T, e *dues.Engine) *player.Player {
	t.Helper()
	ctx := context.Background()

	p := monthlyPlayer(t, e, "mixed", 20)
	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)

	p, err = e.UpdatePlayer(ctx, admin, p.ID, dues.PlayerInput{
		Key:        p.Key,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		MonthlyFee: player.Fee(10),
	})
	require.NoError(t, err)
	res, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	require.Equal(t, attendance.OutcomeDebt, res.Outcome)

	ev, err := e.CreateEvent(ctx, admin, dues.EventInput{Name: "Open", StartsOn: dayN(7)})
	require.NoError(t, err)
	c, err := e.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "Kumite", Fee: player.Fee(15)})
	require.NoError(t, err)
	_, err = e.Register(ctx, admin, ev.ID, dues.RegistrationInput{PlayerID: p.ID, Entries: []event.Entry{{CategoryID: c.ID}}})
	require.NoError(t, err)
	return p
}

func TestPayDueSettlesEverythingWithOneReceipt(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := mixedObligations(t, e)

	in, err := e.BulkSelection(ctx, admin, p.ID, dues.ScopeAll)
	require.NoError(t, err)
	require.Len(t, in.DueIDs, 1)
	require.Len(t, in.RegistrationIDs, 1)
	require.Len(t, in.DebtIDs, 1)
	require.Empty(t, in.SessionUnits)

	res, err := e.PayDue(ctx, admin, p.ID, in)
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, 3, res.Accepted)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, int64(45), res.Amount)
	assert.Equal(t, receipt.KindBulk, res.Receipt.Kind)
	assert.Equal(t, receipt.SourceBulk, res.Receipt.Source)
	assert.Len(t, res.Receipt.Links, 3)
	assert.Equal(t, 1, res.Receipt.SessionsPaid)
	assert.Equal(t, 1, res.Receipt.SessionsTaken)

	d, err := e.Store().GetDue(ctx, in.DueIDs[0])
	require.NoError(t, err)
	assert.True(t, d.Paid)
	reg, err := e.Store().GetRegistration(ctx, in.RegistrationIDs[0])
	require.NoError(t, err)
	assert.True(t, reg.Paid)
	units, err := e.ListAttendance(ctx, admin, attendance.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.True(t, units[0].Paid)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	assert.Zero(t, b.OwedAmount)
	assert.False(t, b.InDebt)

	again, err := e.PayDue(ctx, admin, p.ID, in)
	require.NoError(t, err)
	assert.Nil(t, again.Receipt)
	assert.Equal(t, 3, again.Skipped)

	next, err := e.BulkSelection(ctx, admin, p.ID, dues.ScopeAll)
	require.NoError(t, err)
	assert.Empty(t, next.DueIDs)
	assert.Empty(t, next.RegistrationIDs)
	assert.Empty(t, next.DebtIDs)
}

func TestPayDueSkipsInvalidItems(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "a", 20)
	other := monthlyPlayer(t, e, "b", 25)
	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)

	mine, err := e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)
	theirs, err := e.Store().GetDueFor(ctx, other.ID, 2024, 6)
	require.NoError(t, err)

	res, err := e.PayDue(ctx, admin, p.ID, dues.BulkInput{
		DueIDs:  []id.DueID{mine.ID, mine.ID, theirs.ID, id.NewDueID()},
		DebtIDs: []id.ReceiptID{id.NewReceiptID()},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, int64(20), res.Receipt.Amount)

	theirs, err = e.Store().GetDue(ctx, theirs.ID)
	require.NoError(t, err)
	assert.False(t, theirs.Paid)
}

func TestPayDueEmptySelection(t *testing.T) {
	e := newEngine(t)
	p := monthlyPlayer(t, e, "a", 20)

	res, err := e.PayDue(context.Background(), admin, p.ID, dues.BulkInput{})
	require.NoError(t, err)
	require.Nil(t, res.Receipt)
	require.Zero(t, res.Accepted)
}

func TestPayDueConcurrentSettlesOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "a", 20)
	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	d, err := e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.PayDue(ctx, admin, p.ID, dues.BulkInput{DueIDs: []id.DueID{d.ID}})
			if err != nil && !dues.IsDuplicate(err) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	receipts, err := e.Store().ListReceipts(ctx, receipt.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
}

func TestPayDueResidualCoversPriceIncrease(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	_, err := e.RecordSession(ctx, admin, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	_, err = e.UpdatePlayer(ctx, admin, p.ID, dues.PlayerInput{Key: "p", MonthlyFee: player.Fee(15)})
	require.NoError(t, err)

	in, err := e.BulkSelection(ctx, admin, p.ID, dues.ScopeDebts)
	require.NoError(t, err)
	require.True(t, in.IncludeResidual)

	res, err := e.PayDue(ctx, admin, p.ID, in)
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, int64(15), res.Amount)

	var credit *receipt.Link
	for i, l := range res.Receipt.Links {
		if l.TargetType == receipt.TargetSessionCredit {
			credit = &res.Receipt.Links[i]
		}
	}
	require.NotNil(t, credit)
	assert.Equal(t, int64(5), credit.Amount)
	assert.False(t, credit.Settles)
	assert.Equal(t, p.ID.String(), credit.TargetID)

	b, err := e.Balance(ctx, admin, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)
	assert.Zero(t, b.OwedAmount)
}

func TestParseScope(t *testing.T) {
	assert.Equal(t, dues.ScopeMonthly, dues.ParseScope("monthly"))
	assert.Equal(t, dues.ScopeDebts, dues.ParseScope("debts"))
	assert.Equal(t, dues.ScopeAll, dues.ParseScope(""))
	assert.Equal(t, dues.ScopeAll, dues.ParseScope("everything"))
}
