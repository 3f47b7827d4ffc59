// Package export writes the dues engine's records as CSV files and event
// bundles, and reads player profiles back from CSV.
//
// Booleans are written as yes/no, dates as ISO YYYY-MM-DD and money as
// plain whole units, so every file opens cleanly in a spreadsheet and a
// players export can be imported again unchanged.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
)

// Exporter renders engine state. Every method authorizes the caller for
// dues.ActionExport before reading.
type Exporter struct {
	engine *dues.Engine
}

// New creates an Exporter over engine.
func New(engine *dues.Engine) *Exporter {
	return &Exporter{engine: engine}
}

var feesHeader = []string{"player_key", "full_name", "belt", "amount", "paid", "paid_on", "due_date"}

// Fees writes the monthly fee listing for the month named by key
// (YYYY-MM; empty means the current month).
func (x *Exporter) Fees(ctx context.Context, caller dues.Caller, w io.Writer, key string) error {
	if err := x.engine.Authorize(ctx, caller, dues.ActionExport, id.Nil); err != nil {
		return err
	}
	fees, err := x.engine.MonthlyFees(ctx, caller, key)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(feesHeader); err != nil {
		return err
	}
	for _, row := range fees.Rows {
		err := cw.Write([]string{
			row.Key,
			row.FullName,
			row.Belt,
			strconv.FormatInt(row.Amount, 10),
			yesNo(row.Paid),
			optDate(row.PaidOn),
			isoDate(row.DueDate),
		})
		if err != nil {
			return err
		}
	}
	return flush(cw)
}

var paymentsHeader = []string{"receipt_no", "kind", "player_key", "amount", "currency", "paid_at", "debt", "settled"}

// Payments writes the receipt history selected by opts. For debt
// receipts, settled says whether a later receipt paid them; for income
// it is always yes.
func (x *Exporter) Payments(ctx context.Context, caller dues.Caller, w io.Writer, opts receipt.ListOpts) error {
	if err := x.engine.Authorize(ctx, caller, dues.ActionExport, opts.PlayerID); err != nil {
		return err
	}
	receipts, err := x.engine.ListReceipts(ctx, caller, opts)
	if err != nil {
		return err
	}

	s := x.engine.Store()
	keys := make(map[id.PlayerID]string)

	cw := csv.NewWriter(w)
	if err := cw.Write(paymentsHeader); err != nil {
		return err
	}
	for _, r := range receipts {
		key, ok := keys[r.PlayerID]
		if !ok {
			p, err := s.GetPlayer(ctx, r.PlayerID)
			if err != nil {
				return fmt.Errorf("export: receipt %s: %w", r.Number, err)
			}
			key = p.Key
			keys[r.PlayerID] = key
		}

		settled := true
		if r.IsDebt() {
			_, err := s.SettlingReceipt(ctx, receipt.TargetDebt, r.ID.String())
			switch {
			case err == nil:
			case dues.IsNotFound(err):
				settled = false
			default:
				return err
			}
		}

		err := cw.Write([]string{
			r.Number,
			r.Kind.String(),
			key,
			strconv.FormatInt(r.Amount, 10),
			r.Currency,
			isoDate(r.PaidAt),
			yesNo(r.IsDebt()),
			yesNo(settled),
		})
		if err != nil {
			return err
		}
	}
	return flush(cw)
}

var playersHeader = []string{
	"key", "first_name", "last_name", "belt", "email", "phone",
	"monthly_fee", "is_monthly", "active",
	"sessions_taken", "sessions_paid", "prepaid_credit", "owed_amount",
}

// Players writes every player profile with its session account. The
// account columns are informational and ignored by ReadPlayers.
func (x *Exporter) Players(ctx context.Context, caller dues.Caller, w io.Writer) error {
	if err := x.engine.Authorize(ctx, caller, dues.ActionExport, id.Nil); err != nil {
		return err
	}
	players, err := x.engine.ListPlayers(ctx, player.ListOpts{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(playersHeader); err != nil {
		return err
	}
	for _, p := range players {
		var taken, paid, credit, owed string
		if p.BilledPerSession() {
			b, err := x.engine.Balance(ctx, caller, p.ID, dues.BalanceOpts{})
			if err != nil {
				return err
			}
			taken = strconv.Itoa(b.SessionsTaken)
			paid = strconv.Itoa(b.SessionsPaid)
			credit = strconv.FormatInt(b.PrepaidCredit, 10)
			owed = strconv.FormatInt(b.OwedAmount, 10)
		}
		err := cw.Write([]string{
			p.Key,
			p.FirstName,
			p.LastName,
			p.Belt,
			p.Email,
			p.Phone,
			optInt(p.MonthlyFee),
			yesNo(p.IsMonthly),
			yesNo(p.Active),
			taken, paid, credit, owed,
		})
		if err != nil {
			return err
		}
	}
	return flush(cw)
}

// ImportPlayers reads a players CSV and upserts the profiles by key.
func (x *Exporter) ImportPlayers(ctx context.Context, caller dues.Caller, r io.Reader) (dues.ImportResult, error) {
	inputs, err := ReadPlayers(r)
	if err != nil {
		return dues.ImportResult{}, err
	}
	return x.engine.ImportPlayers(ctx, caller, inputs)
}

func flush(cw *csv.Writer) error {
	cw.Flush()
	return cw.Error()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func isoDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return isoDate(*t)
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
