package observability_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/observability"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/store/memory"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewOTelFactoryNilMeter(t *testing.T) {
	f, err := observability.NewOTelFactory(nil, nil)
	require.ErrorIs(t, err, observability.ErrMeterNil)
	assert.Nil(t, f)
}

func TestNoopMeterDoesNotPanic(t *testing.T) {
	f, err := observability.NewOTelFactory(noop.NewMeterProvider().Meter("test"), quiet())
	require.NoError(t, err)

	m := observability.NewMetricsExtension(f)
	ctx := context.Background()
	require.NoError(t, m.OnSessionRecorded(ctx, &attendance.Attendance{}, attendance.OutcomeDebt))
	require.NoError(t, m.OnReportGenerated(ctx, time.Time{}, time.Time{}, 3, time.Millisecond))
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) float64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[float64])
			require.True(t, ok, "%s is not a float sum", name)
			total := 0.0
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsFollowEngineActivity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	f, err := observability.NewOTelFactory(provider.Meter("dues"), quiet())
	require.NoError(t, err)

	e := dues.New(memory.New(),
		dues.WithLogger(quiet()),
		dues.WithPlugin(observability.NewMetricsExtension(f)),
		dues.WithClock(func() time.Time { return time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) }),
	)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	admin := dues.System()
	monthly, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "m", MonthlyFee: player.Fee(20), IsMonthly: true})
	require.NoError(t, err)
	perSession, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{Key: "s", MonthlyFee: player.Fee(10)})
	require.NoError(t, err)

	_, err = e.EnsureDuesForMonth(ctx, admin, 2024, 6)
	require.NoError(t, err)
	_, err = e.RecordSession(ctx, admin, monthly.ID, time.Time{}, attendance.SourceStaff)
	require.NoError(t, err)
	_, err = e.PaySessions(ctx, admin, perSession.ID, 1, dues.PaymentInput{})
	require.NoError(t, err)
	for i := range 2 {
		_, err = e.RecordSession(ctx, admin, perSession.ID, time.Date(2024, 6, 3+i, 0, 0, 0, 0, time.UTC), attendance.SourceStaff)
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, 1.0, sumOf(t, rm, "dues.due.generated"))
	assert.Equal(t, 1.0, sumOf(t, rm, "dues.session.monthly"))
	assert.Equal(t, 1.0, sumOf(t, rm, "dues.session.prepaid"))
	assert.Equal(t, 1.0, sumOf(t, rm, "dues.session.debt"))
	assert.Equal(t, 1.0, sumOf(t, rm, "dues.debt.created"))
	assert.Equal(t, 1.0, sumOf(t, rm, "dues.receipt.issued"))
}
