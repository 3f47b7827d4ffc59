package export_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/export"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store/memory"
)

var (
	june3 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	admin = dues.Caller{ID: "admin", Admin: true}
)

type fixture struct {
	engine *dues.Engine
	x      *export.Exporter
	ana    *player.Player // monthly, 45
	bo     *player.Player // per session, 12
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	e := dues.New(memory.New(),
		dues.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dues.WithClock(func() time.Time { return june3 }),
	)
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	ana, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{
		Key: "ana", FirstName: "Ana", LastName: "Petrova", Belt: "green",
		MonthlyFee: player.Fee(45), IsMonthly: true,
	})
	require.NoError(t, err)
	bo, err := e.CreatePlayer(ctx, admin, dues.PlayerInput{
		Key: "bo", FirstName: "Bo", LastName: "Ivanov",
		MonthlyFee: player.Fee(12),
	})
	require.NoError(t, err)

	return &fixture{engine: e, x: export.New(e), ana: ana, bo: bo}
}

// readCSV parses data and indexes the rows by the value of their first
// column.
func readCSV(t *testing.T, data []byte) ([]string, map[string][]string) {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	rows := make(map[string][]string)
	for _, rec := range records[1:] {
		rows[rec[0]] = rec
	}
	return records[0], rows
}

func TestFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EnsureDuesForMonthKey(ctx, admin, "2024-06")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.x.Fees(ctx, admin, &buf, "2024-06"))

	header, rows := readCSV(t, buf.Bytes())
	assert.Equal(t, []string{"player_key", "full_name", "belt", "amount", "paid", "paid_on", "due_date"}, header)
	require.Contains(t, rows, "ana")
	assert.Equal(t, []string{"ana", "Ana Petrova", "green", "45", "no", "", "2024-06-03"}, rows["ana"])
}

func TestPaymentsMarksSettledDebts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.RecordSession(ctx, admin, f.bo.ID, june3, attendance.SourceStaff)
	require.NoError(t, err)
	require.NotNil(t, res.Debt)
	debt := res.Debt

	exportRows := func() map[string][]string {
		var buf bytes.Buffer
		require.NoError(t, f.x.Payments(ctx, admin, &buf, receipt.ListOpts{}))
		_, rows := readCSV(t, buf.Bytes())
		return rows
	}

	rows := exportRows()
	require.Contains(t, rows, debt.Number)
	assert.Equal(t, []string{debt.Number, "debt", "bo", "12", "EUR", "2024-06-03", "yes", "no"}, rows[debt.Number])

	paid, err := f.engine.PayDebt(ctx, admin, debt.ID, dues.PaymentInput{Method: "cash"})
	require.NoError(t, err)

	rows = exportRows()
	assert.Equal(t, "yes", rows[debt.Number][7])
	require.Contains(t, rows, paid.Number)
	assert.Equal(t, "no", rows[paid.Number][6])
}

func TestPlayersRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, f.x.Players(ctx, admin, &buf))

	header, rows := readCSV(t, buf.Bytes())
	assert.Equal(t, "key", header[0])
	assert.Equal(t, "45", rows["ana"][6])
	assert.Equal(t, "yes", rows["ana"][7])
	assert.Equal(t, "", rows["ana"][9], "monthly payers have no session account")
	assert.Equal(t, "0", rows["bo"][12])

	inputs, err := export.ReadPlayers(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	res, err := f.x.ImportPlayers(ctx, admin, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, dues.ImportResult{Created: 0, Updated: 2}, res)

	ana, err := f.engine.GetPlayer(ctx, f.ana.ID)
	require.NoError(t, err)
	assert.Equal(t, "Petrova", ana.LastName)
	require.NotNil(t, ana.MonthlyFee)
	assert.Equal(t, int64(45), *ana.MonthlyFee)
	assert.True(t, ana.IsMonthly)
}

func TestReadPlayers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []dues.PlayerInput
		wantErr error
	}{
		{
			name:  "columns in any order with a byte order mark",
			input: "\xEF\xBB\xBFis_monthly,key,monthly_fee,last_name\nyes,cara,40,Dimova\nno,dan,,Georgiev\n",
			want: []dues.PlayerInput{
				{Key: "cara", LastName: "Dimova", MonthlyFee: player.Fee(40), IsMonthly: true},
				{Key: "dan", LastName: "Georgiev"},
			},
		},
		{
			name:  "rows without a key are skipped",
			input: "key,first_name\n,Nobody\neve,Eve\n",
			want:  []dues.PlayerInput{{Key: "eve", FirstName: "Eve"}},
		},
		{
			name:    "key column required",
			input:   "first_name,last_name\nAna,Petrova\n",
			wantErr: export.ErrMissingColumn,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: export.ErrEmptyFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := export.ReadPlayers(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPlayersRejectsBadFee(t *testing.T) {
	_, err := export.ReadPlayers(strings.NewReader("key,monthly_fee\nana,forty\n"))
	require.Error(t, err)
	assert.True(t, dues.IsValidation(err))
}

func TestEventBundle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.engine.CreateEvent(ctx, admin, dues.EventInput{
		Name: "Spring Cup", Location: "Sofia", StartsOn: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	kata, err := f.engine.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "Kata", Fee: player.Fee(20)})
	require.NoError(t, err)
	_, err = f.engine.AddCategory(ctx, admin, ev.ID, dues.CategoryInput{Name: "Kumite"})
	require.NoError(t, err)
	_, err = f.engine.Register(ctx, admin, ev.ID, dues.RegistrationInput{
		PlayerID: f.ana.ID,
		Entries:  []event.Entry{{CategoryID: kata.ID, Medal: event.MedalGold}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.x.EventBundle(ctx, admin, &buf, ev.ID))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	files := make(map[string][]byte)
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[zf.Name] = data
	}

	require.Contains(t, files, "event.csv")
	require.Contains(t, files, "categories.csv")
	require.Contains(t, files, "registrations.csv")
	require.Contains(t, files, "players/ana.csv")

	_, events := readCSV(t, files["event.csv"])
	assert.Equal(t, []string{"Spring Cup", "Sofia", "2024-06-15", "2024-06-15", "EUR", "1"}, events["Spring Cup"])

	_, cats := readCSV(t, files["categories.csv"])
	assert.Equal(t, "20", cats["Kata"][1])
	assert.Equal(t, "", cats["Kumite"][1])

	_, regs := readCSV(t, files["registrations.csv"])
	assert.Equal(t, []string{"ana", "Ana Petrova", "Kata", "gold", "20", "no", ""}, regs["ana"])
}

func TestExportRequiresPermission(t *testing.T) {
	f := newFixture(t)
	member := dues.Caller{ID: "member", PlayerID: f.bo.ID}

	var buf bytes.Buffer
	require.ErrorIs(t, f.x.Players(context.Background(), member, &buf), dues.ErrUnauthorized)
	require.ErrorIs(t, f.x.Fees(context.Background(), member, &buf, ""), dues.ErrUnauthorized)
	assert.Zero(t, buf.Len())
}
