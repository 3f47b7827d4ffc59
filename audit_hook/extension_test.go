package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	audithook "github.com/xraph/dues/audit_hook"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store/memory"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, evt *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAuditTrailOfSessionAndPayment(t *testing.T) {
	s := &sink{}
	hook := audithook.New(s, audithook.WithLogger(quiet()))

	e := dues.New(memory.New(),
		dues.WithLogger(quiet()),
		dues.WithPlugin(hook),
		dues.WithClock(func() time.Time { return time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) }),
	)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	admin := dues.System()
	p, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "p", MonthlyFee: player.Fee(10)})
	require.NoError(t, err)
	res, err := e.RecordSession(ctx, admin, p.ID, time.Time{}, attendance.SourceStaff)
	require.NoError(t, err)
	_, err = e.PayDebt(ctx, admin, res.Debt.ID, dues.PaymentInput{})
	require.NoError(t, err)
	require.NoError(t, e.Stop())

	assert.Equal(t, []string{
		audithook.ActionEngineStarted,
		audithook.ActionSessionRecorded,
		audithook.ActionDebtCreated,
		audithook.ActionReceiptIssued,
		audithook.ActionEngineStopped,
	}, s.actions())

	for _, evt := range s.events {
		assert.NotContains(t, evt.Metadata, "first_name")
	}
}

func TestFlagFailureIsRecordedAsPartial(t *testing.T) {
	s := &sink{}
	hook := audithook.New(s, audithook.WithLogger(quiet()))
	r := &receipt.Receipt{ID: id.NewReceiptID(), Number: "RCPT-20240603-000001"}
	link := receipt.Link{TargetType: receipt.TargetDue, TargetID: id.NewDueID().String()}

	require.NoError(t, hook.OnSettlementFlagFailed(context.Background(), r, link, errors.New("timeout")))

	require.Len(t, s.events, 1)
	evt := s.events[0]
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, audithook.SeverityError, evt.Severity)
	assert.Equal(t, "timeout", evt.Reason)
	assert.Equal(t, link.TargetID, evt.Metadata["target_id"])
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	r := &receipt.Receipt{ID: id.NewReceiptID()}

	only := &sink{}
	hook := audithook.New(only, audithook.WithEnabledActions(audithook.ActionBulkSettled))
	require.NoError(t, hook.OnReceiptIssued(ctx, r))
	require.NoError(t, hook.OnBulkSettled(ctx, r, 2))
	assert.Equal(t, []string{audithook.ActionBulkSettled}, only.actions())

	without := &sink{}
	hook = audithook.New(without, audithook.WithDisabledActions(audithook.ActionReceiptIssued))
	require.NoError(t, hook.OnReceiptIssued(ctx, r))
	require.NoError(t, hook.OnBulkSettled(ctx, r, 2))
	assert.Equal(t, []string{audithook.ActionBulkSettled}, without.actions())
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	hook := audithook.New(failing, audithook.WithLogger(quiet()))
	require.NoError(t, hook.OnShutdown(context.Background()))
}
