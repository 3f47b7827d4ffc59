package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
)

// EventBundle writes a ZIP archive describing one event:
//
//	event.csv              name, location and dates
//	categories.csv         category names and fees
//	registrations.csv      one row per registered player with fee and medals
//	players/<key>.csv      the player's receipts around the event
//
// Per-player files cover receipts from 90 days before the event start up
// to its end.
func (x *Exporter) EventBundle(ctx context.Context, caller dues.Caller, w io.Writer, eventID id.EventID) error {
	if err := x.engine.Authorize(ctx, caller, dues.ActionExport, id.Nil); err != nil {
		return err
	}
	s := x.engine.Store()

	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	categories, err := s.ListCategories(ctx, eventID)
	if err != nil {
		return err
	}
	regs, err := s.ListRegistrations(ctx, event.RegistrationListOpts{EventID: eventID})
	if err != nil {
		return err
	}
	players := make(map[id.PlayerID]*player.Player, len(regs))
	for _, r := range regs {
		p, err := s.GetPlayer(ctx, r.PlayerID)
		if err != nil {
			return err
		}
		players[r.PlayerID] = p
	}

	zw := zip.NewWriter(w)

	endsOn := ev.StartsOn
	if ev.EndsOn != nil {
		endsOn = *ev.EndsOn
	}
	err = writeCSV(zw, "event.csv",
		[]string{"name", "location", "starts_on", "ends_on", "currency", "registrations"},
		[][]string{{ev.Name, ev.Location, isoDate(ev.StartsOn), isoDate(endsOn), ev.Currency, strconv.Itoa(len(regs))}},
	)
	if err != nil {
		return err
	}

	catNames := make(map[id.CategoryID]string, len(categories))
	var catRows [][]string
	for _, c := range categories {
		catNames[c.ID] = c.Name
		catRows = append(catRows, []string{c.Name, optInt(c.Fee)})
	}
	if err := writeCSV(zw, "categories.csv", []string{"name", "fee"}, catRows); err != nil {
		return err
	}

	var regRows [][]string
	for _, r := range regs {
		p := players[r.PlayerID]
		fee := event.ComputedFee(r, categories)
		amount := ""
		if fee.Counted {
			amount = strconv.FormatInt(fee.Amount, 10)
		}
		names := make([]string, 0, len(r.Entries))
		medals := make([]string, 0, len(r.Entries))
		for _, e := range r.Entries {
			names = append(names, catNames[e.CategoryID])
			medals = append(medals, string(e.Medal))
		}
		regRows = append(regRows, []string{
			p.Key,
			p.FullName(),
			strings.Join(names, "; "),
			strings.Join(medals, "; "),
			amount,
			yesNo(r.Paid),
			optDate(r.PaidOn),
		})
	}
	err = writeCSV(zw, "registrations.csv",
		[]string{"player_key", "full_name", "categories", "medals", "fee", "paid", "paid_on"},
		regRows,
	)
	if err != nil {
		return err
	}

	from := ev.StartsOn.AddDate(0, 0, -90)
	for _, r := range regs {
		p := players[r.PlayerID]
		rows, err := x.playerHistory(ctx, caller, p, from, endsOn)
		if err != nil {
			return err
		}
		err = writeCSV(zw, "players/"+fileSafe(p.Key)+".csv",
			[]string{"receipt_no", "kind", "amount", "currency", "paid_at", "sessions_attended"},
			rows,
		)
		if err != nil {
			return err
		}
	}

	return zw.Close()
}

func (x *Exporter) playerHistory(ctx context.Context, caller dues.Caller, p *player.Player, from, to time.Time) ([][]string, error) {
	receipts, err := x.engine.ListReceipts(ctx, caller, receipt.ListOpts{PlayerID: p.ID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	sessions, err := x.engine.ListAttendance(ctx, caller, attendance.ListOpts{PlayerID: p.ID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	attended := strconv.Itoa(len(sessions))

	rows := make([][]string, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []string{
			r.Number,
			r.Kind.String(),
			strconv.FormatInt(r.Amount, 10),
			r.Currency,
			isoDate(r.PaidAt),
			attended,
		})
	}
	return rows, nil
}

func writeCSV(zw *zip.Writer, name string, header []string, rows [][]string) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// fileSafe keeps archive member names to a portable character set.
func fileSafe(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
}
