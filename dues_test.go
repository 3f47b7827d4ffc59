package dues_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/player"
)

func TestEnsureDuesForMonthIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := monthlyPlayer(t, e, "a", 20)
	monthlyPlayer(t, e, "b", 25)
	sessionPlayer(t, e, "c", 10)
	inactive := monthlyPlayer(t, e, "d", 20)
	require.NoError(t, e.DeactivatePlayer(ctx, admin, inactive.ID))
	_, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "nofee", IsMonthly: true})
	require.NoError(t, err)

	created, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, 2, created)

	created, err = e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	require.Zero(t, created)

	created, err = e.EnsureDuesForMonthKey(ctx, admin, "2024-06")
	require.NoError(t, err)
	require.Zero(t, created)

	d, err := e.Store().GetDueFor(ctx, a.ID, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, int64(20), d.Amount)
	require.False(t, d.Paid)
	require.Equal(t, "EUR", d.Currency)
}

func TestEnsureDuesForMonthKeyDefaultsToCurrentMonth(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "a", 20)

	created, err := e.EnsureDuesForMonthKey(ctx, admin, "garbage")
	require.NoError(t, err)
	require.Equal(t, 1, created)

	_, err = e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)
}

func TestEnsureDuesForMonthRejectsInvalidMonth(t *testing.T) {
	e := newEngine(t)
	_, err := e.EnsureDuesForMonth(context.Background(), admin, 2024, 13)
	require.ErrorIs(t, err, dues.ErrInvalidMonth)
}

func TestEnsureDuesForMonthConcurrent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		monthlyPlayer(t, e, key, 20)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 5, total)
	all, err := e.Store().ListDues(ctx, due.ListOpts{Year: 2024, Month: 6})
	require.NoError(t, err)
	require.Len(t, all, 5)
}

func TestFeeChangeAppliesToLaterMonths(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "a", 20)

	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)

	_, err = e.UpdatePlayer(ctx, admin, p.ID, dues.PlayerInput{Key: "a", MonthlyFee: player.Fee(30), IsMonthly: true})
	require.NoError(t, err)
	_, err = e.EnsureDuesForMonth(ctx, admin, 2024, 7)
	require.NoError(t, err)

	june, err := e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)
	july, err := e.Store().GetDueFor(ctx, p.ID, 2024, 7)
	require.NoError(t, err)
	require.Equal(t, int64(20), june.Amount)
	require.Equal(t, int64(30), july.Amount)
}
