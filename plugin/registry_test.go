package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

type recorder struct {
	name     string
	dues     atomic.Int32
	sessions atomic.Int32
	receipts atomic.Int32
	fail     error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnDuesGenerated(_ context.Context, _ types.Month, created int) error {
	r.dues.Add(int32(created))
	return r.fail
}

func (r *recorder) OnSessionRecorded(context.Context, *attendance.Attendance, attendance.Outcome) error {
	r.sessions.Add(1)
	return r.fail
}

func (r *recorder) OnReceiptIssued(context.Context, *receipt.Receipt) error {
	r.receipts.Add(1)
	return r.fail
}

type sleeper struct{ d time.Duration }

func (s sleeper) Name() string { return "sleeper" }

func (s sleeper) OnReceiptIssued(ctx context.Context, _ *receipt.Receipt) error {
	time.Sleep(s.d)
	return nil
}

func newRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	require.Error(t, r.Register(&recorder{name: "a"}))
	require.NoError(t, r.Register(&recorder{name: "b"}))

	assert.Equal(t, 2, r.Count())
	assert.NotNil(t, r.Get("b"))
	assert.Nil(t, r.Get("c"))
	assert.Len(t, r.List(), 2)
}

func TestEmitReachesImplementers(t *testing.T) {
	r := newRegistry()
	a := &recorder{name: "a"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(sleeper{}))

	ctx := context.Background()
	m, err := types.NewMonth(2024, 6)
	require.NoError(t, err)

	r.EmitDuesGenerated(ctx, m, 3)
	r.EmitSessionRecorded(ctx, &attendance.Attendance{}, attendance.OutcomePrepaid)
	r.EmitReceiptIssued(ctx, &receipt.Receipt{})
	r.EmitBulkSettled(ctx, &receipt.Receipt{}, 2)

	assert.Equal(t, int32(3), a.dues.Load())
	assert.Equal(t, int32(1), a.sessions.Load())
	assert.Equal(t, int32(1), a.receipts.Load())
}

func TestHookFailureIsSwallowed(t *testing.T) {
	r := newRegistry()
	failing := &recorder{name: "failing", fail: errors.New("smtp down")}
	ok := &recorder{name: "ok"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(ok))

	r.EmitReceiptIssued(context.Background(), &receipt.Receipt{})

	assert.Equal(t, int32(1), failing.receipts.Load())
	assert.Equal(t, int32(1), ok.receipts.Load())
}

func TestSlowHookTimesOut(t *testing.T) {
	r := newRegistry().WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(sleeper{d: time.Second}))

	start := time.Now()
	r.EmitReceiptIssued(context.Background(), &receipt.Receipt{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
