package dues_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/id"
)

func TestAdminOnly(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)
	other := sessionPlayer(t, e, "o", 10)
	self := dues.Caller{ID: "p", PlayerID: p.ID}

	res, err := e.RecordSession(ctx, self, p.ID, dayN(0), attendance.SourceSelfCheckIn)
	require.NoError(t, err)
	require.Equal(t, attendance.SourceSelfCheckIn, res.Attendance.Source)

	_, err = e.Balance(ctx, self, p.ID, dues.BalanceOpts{})
	require.NoError(t, err)

	_, err = e.RecordSession(ctx, self, other.ID, dayN(0), attendance.SourceSelfCheckIn)
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	_, err = e.RecordSession(ctx, self, p.ID, dayN(1), attendance.SourceStaff)
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	_, err = e.Balance(ctx, self, other.ID, dues.BalanceOpts{})
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	_, err = e.PaySessions(ctx, self, p.ID, 1, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	_, err = e.EnsureDuesForMonth(ctx, self, 2024, 6)
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	_, err = e.Report(ctx, self, dayN(0), dayN(1))
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	anonymous := dues.Caller{ID: "guest"}
	_, err = e.RecordSession(ctx, anonymous, p.ID, dayN(2), attendance.SourceSelfCheckIn)
	require.ErrorIs(t, err, dues.ErrUnauthorized)
}

func TestCustomAuthorizer(t *testing.T) {
	var seen []dues.Action
	auth := dues.AuthorizerFunc(func(_ context.Context, caller dues.Caller, action dues.Action, _ id.PlayerID) error {
		seen = append(seen, action)
		if caller.ID == "coach" && action == dues.ActionRecordSession {
			return nil
		}
		return dues.AdminOnly{}.Authorize(context.Background(), caller, action, id.Nil)
	})
	e := newEngine(t, dues.WithAuthorizer(auth))
	ctx := context.Background()
	p := sessionPlayer(t, e, "p", 10)

	coach := dues.Caller{ID: "coach"}
	_, err := e.RecordSession(ctx, coach, p.ID, dayN(0), attendance.SourceStaff)
	require.NoError(t, err)
	_, err = e.PaySessions(ctx, coach, p.ID, 1, dues.PaymentInput{})
	require.ErrorIs(t, err, dues.ErrUnauthorized)

	require.Contains(t, seen, dues.ActionRecordSession)
	require.Contains(t, seen, dues.ActionIssueReceipt)
}

func TestSystemCallerIsAdmin(t *testing.T) {
	require.True(t, dues.System().Admin)
	require.NoError(t, dues.AdminOnly{}.Authorize(context.Background(), dues.System(), dues.ActionSweep, id.Nil))
}
