package dues_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/store/memory"
)

var (
	june3 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	admin = dues.Caller{ID: "admin", Admin: true}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, opts ...dues.Option) *dues.Engine {
	t.Helper()
	return newEngineOn(t, memory.New(), opts...)
}

func newEngineOn(t *testing.T, s store.Store, opts ...dues.Option) *dues.Engine {
	t.Helper()
	base := []dues.Option{
		dues.WithLogger(quietLogger()),
		dues.WithClock(func() time.Time { return june3 }),
	}
	e := dues.New(s, append(base, opts...)...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

func monthlyPlayer(t *testing.T, e *dues.Engine, key string, fee int64) *player.Player {
	t.Helper()
	p, err := e.CreatePlayer(context.Background(), admin, dues.PlayerInput{
		Key:        key,
		FirstName:  "Monthly",
		LastName:   key,
		MonthlyFee: player.Fee(fee),
		IsMonthly:  true,
	})
	require.NoError(t, err)
	return p
}

func sessionPlayer(t *testing.T, e *dues.Engine, key string, price int64) *player.Player {
	t.Helper()
	p, err := e.CreatePlayer(context.Background(), admin, dues.PlayerInput{
		Key:        key,
		FirstName:  "Session",
		LastName:   key,
		MonthlyFee: player.Fee(price),
	})
	require.NoError(t, err)
	return p
}

func dayN(n int) time.Time {
	return june3.AddDate(0, 0, n)
}

func TestStartStop(t *testing.T) {
	s := memory.New()
	e := dues.New(s, dues.WithLogger(quietLogger()))
	require.NoError(t, e.Start(context.Background()))
	require.Equal(t, "EUR", e.Currency())
	require.NoError(t, e.Stop())
	require.ErrorIs(t, s.Ping(context.Background()), dues.ErrStoreClosed)
}

func TestWithCurrency(t *testing.T) {
	e := newEngine(t, dues.WithCurrency("sek"))
	require.Equal(t, "SEK", e.Currency())
}

func TestCreatePlayerValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{})
	require.True(t, dues.IsValidation(err))

	_, err = e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "p1", Email: "not-an-email"})
	var ve dues.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "email", ve.Field)

	monthlyPlayer(t, e, "p1", 20)
	_, err = e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "p1"})
	require.ErrorIs(t, err, dues.ErrAlreadyExists)
}

func TestAnonymizeKeepsHistory(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := monthlyPlayer(t, e, "p1", 20)

	_, err := e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	require.NoError(t, e.AnonymizePlayer(ctx, admin, p.ID))

	got, err := e.GetPlayer(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Empty(t, got.FullName())
	require.Equal(t, "p1", got.Key)
	require.NotNil(t, got.AnonymizedAt)

	d, err := e.Store().GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)
	require.Equal(t, int64(20), d.Amount)

	created, err := e.EnsureDuesForMonth(ctx, admin, 2024, 7)
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestImportPlayersIsReimportable(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	rows := []dues.PlayerInput{
		{Key: "a", FirstName: "Ann", MonthlyFee: player.Fee(20), IsMonthly: true},
		{Key: "b", FirstName: "Bo", MonthlyFee: player.Fee(10)},
	}
	res, err := e.ImportPlayers(ctx, admin, rows)
	require.NoError(t, err)
	require.Equal(t, dues.ImportResult{Created: 2}, res)

	rows[1].Belt = "blue"
	res, err = e.ImportPlayers(ctx, admin, rows)
	require.NoError(t, err)
	require.Equal(t, dues.ImportResult{Updated: 2}, res)

	b, err := e.Store().GetPlayerByKey(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "blue", b.Belt)
}
