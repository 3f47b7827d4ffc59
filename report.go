package dues

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/report"
	"github.com/xraph/dues/types"
)

// Report aggregates income and outstanding amounts for [from, to], per
// player and for the club.
//
// Income is every non-debt receipt paid in the period, classified by kind;
// bulk receipts are split by what their links pay, and any part no link
// accounts for is other income. Debt receipts are not income: the receipt
// that settles a debt is. Outstanding amounts are dues for months in the
// period, unpaid fees of registrations for events starting in the period
// and, for per-session payers, the larger of their unsettled debts raised
// in the period and what the reconciler says they owe for it.
func (e *Engine) Report(ctx context.Context, caller Caller, from, to time.Time) (*report.Report, error) {
	if err := e.authorize(ctx, caller, ActionReport, id.Nil); err != nil {
		return nil, err
	}
	start := e.now()

	players, err := e.store.ListPlayers(ctx, player.ListOpts{})
	if err != nil {
		return nil, err
	}
	all, err := e.store.ListReceipts(ctx, receipt.ListOpts{})
	if err != nil {
		return nil, err
	}
	settled := settledIndex(all)

	rows := make(map[id.PlayerID]*report.PlayerRow, len(players))
	row := func(playerID id.PlayerID) *report.PlayerRow {
		if r, ok := rows[playerID]; ok {
			return r
		}
		r := &report.PlayerRow{PlayerID: playerID}
		rows[playerID] = r
		return r
	}
	for _, p := range players {
		r := row(p.ID)
		r.Key = p.Key
		r.FullName = p.FullName()
	}

	// Income.
	for _, r := range all {
		if r.IsDebt() || !types.InRange(r.PaidAt, from, to) {
			continue
		}
		addIncome(&row(r.PlayerID).Totals, r)
	}

	// Outstanding debts raised in the period.
	for _, r := range all {
		if !r.IsDebt() || !types.InRange(r.PaidAt, from, to) {
			continue
		}
		if !settled[targetKey(receipt.TargetDebt, r.ID.String())] {
			row(r.PlayerID).SessionDue += r.Amount
		}
	}

	// Sessions the reconciler still counts as owed. Debts raised at an old
	// price, or before any price was set, fall short of that figure.
	for _, p := range players {
		if !p.BilledPerSession() {
			continue
		}
		bal, err := e.balance(ctx, p, BalanceOpts{From: from, To: to})
		if err != nil {
			return nil, err
		}
		if r := row(p.ID); bal.OwedAmount > r.SessionDue {
			r.SessionDue = bal.OwedAmount
		}
	}

	// Unpaid monthly dues.
	dueFrom := time.Time{}
	if !from.IsZero() {
		dueFrom = types.MonthOf(from).Start()
	}
	dues, err := e.store.ListDues(ctx, due.ListOpts{From: dueFrom, To: to})
	if err != nil {
		return nil, err
	}
	for _, d := range dues {
		if d.Paid || settled[targetKey(receipt.TargetDue, d.ID.String())] {
			continue
		}
		row(d.PlayerID).MonthlyDue += d.Amount
	}

	// Unpaid event fees.
	events, err := e.store.ListEvents(ctx, event.ListOpts{From: from, To: to})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		categories, err := e.store.ListCategories(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		regs, err := e.store.ListRegistrations(ctx, event.RegistrationListOpts{EventID: ev.ID})
		if err != nil {
			return nil, err
		}
		for _, reg := range regs {
			if reg.Paid || settled[targetKey(receipt.TargetRegistration, reg.ID.String())] {
				continue
			}
			fee := event.ComputedFee(reg, categories)
			pr := row(reg.PlayerID)
			if !fee.Counted {
				pr.UncountedRegistrations++
				continue
			}
			pr.EventDue += fee.Amount
		}
	}

	out := &report.Report{
		From:        from,
		To:          to,
		Currency:    e.currency,
		Players:     make([]report.PlayerRow, 0, len(rows)),
		GeneratedAt: e.Now(),
	}
	for _, r := range rows {
		r.Finalize()
		out.Club.Add(r.Totals)
		out.UncountedRegistrations += r.UncountedRegistrations
		out.Players = append(out.Players, *r)
	}
	out.Club.Finalize()
	sort.Slice(out.Players, func(i, j int) bool {
		a, b := out.Players[i], out.Players[j]
		if !strings.EqualFold(a.FullName, b.FullName) {
			return strings.ToLower(a.FullName) < strings.ToLower(b.FullName)
		}
		return a.Key < b.Key
	})

	e.plugins.EmitReportGenerated(ctx, from, to, len(out.Players), e.now().Sub(start))
	return out, nil
}

func addIncome(t *report.Totals, r *receipt.Receipt) {
	switch r.Kind {
	case receipt.KindMonthly:
		t.MonthlyIncome += r.Amount
	case receipt.KindPerSession:
		t.SessionIncome += r.Amount
	case receipt.KindEvent:
		t.EventIncome += r.Amount
	case receipt.KindBulk:
		var linked int64
		for _, l := range r.Links {
			switch {
			case l.TargetType == receipt.TargetDue:
				t.MonthlyIncome += l.Amount
			case l.TargetType == receipt.TargetRegistration:
				t.EventIncome += l.Amount
			case l.TargetType.CountsAsSessionCredit():
				t.SessionIncome += l.Amount
			default:
				continue
			}
			linked += l.Amount
		}
		if rest := r.Amount - linked; rest > 0 {
			t.OtherIncome += rest
		}
	}
}

// MonthlyFees lists, for the month named by key, what every active player
// owes: the due of monthly payers, and attended sessions at the current
// price for per-session payers. An empty or unparsable key means the
// current month.
func (e *Engine) MonthlyFees(ctx context.Context, caller Caller, key string) (*report.MonthlyFees, error) {
	if err := e.authorize(ctx, caller, ActionReport, id.Nil); err != nil {
		return nil, err
	}
	m := types.ParseMonth(key, e.Now())
	dueDate := m.DueDate(e.today())

	players, err := e.store.ListPlayers(ctx, player.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	all, err := e.store.ListReceipts(ctx, receipt.ListOpts{})
	if err != nil {
		return nil, err
	}
	settled := settledIndex(all)
	settledOn := make(map[string]time.Time)
	for _, r := range all {
		for _, l := range r.SettlingTargets() {
			settledOn[targetKey(l.TargetType, l.TargetID)] = types.DateOf(r.PaidAt)
		}
	}

	out := &report.MonthlyFees{Month: m.String(), Currency: e.currency}
	for _, p := range players {
		row := report.FeeRow{
			PlayerID: p.ID,
			Key:      p.Key,
			FullName: p.FullName(),
			Belt:     p.Belt,
			Monthly:  p.IsMonthly,
			DueDate:  dueDate,
		}

		if p.IsMonthly {
			d, err := e.store.GetDueFor(ctx, p.ID, m.Year, int(m.Month))
			if err != nil && !IsNotFound(err) {
				return nil, err
			}
			if d == nil {
				if !p.BilledMonthly() {
					continue
				}
				row.Amount = *p.MonthlyFee
			} else {
				k := targetKey(receipt.TargetDue, d.ID.String())
				row.Amount = d.Amount
				row.Paid = d.Paid || settled[k]
				row.PaidOn = d.PaidOn
				if row.PaidOn == nil && settled[k] {
					on := settledOn[k]
					row.PaidOn = &on
				}
			}
		} else {
			units, err := e.store.ListAttendance(ctx, attendance.ListOpts{PlayerID: p.ID, From: m.Start(), To: m.End()})
			if err != nil {
				return nil, err
			}
			price, _ := p.PerSessionPrice()
			row.Sessions = len(units)
			row.Amount = price * int64(len(units))
			row.Paid = true
			for _, a := range units {
				if !a.Paid {
					row.Paid = false
				}
			}
		}

		out.Total += row.Amount
		if row.Paid {
			out.Paid += row.Amount
		}
		out.Rows = append(out.Rows, row)
	}

	sort.Slice(out.Rows, func(i, j int) bool {
		return strings.ToLower(out.Rows[i].FullName) < strings.ToLower(out.Rows[j].FullName)
	})
	return out, nil
}

// Medals tallies an event's gold, silver and bronze results per player
// and for the club.
func (e *Engine) Medals(ctx context.Context, caller Caller, eventID id.EventID) (*report.Medals, error) {
	if err := e.authorize(ctx, caller, ActionReport, id.Nil); err != nil {
		return nil, err
	}
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := e.store.ListRegistrations(ctx, event.RegistrationListOpts{EventID: eventID})
	if err != nil {
		return nil, err
	}

	out := &report.Medals{EventID: ev.ID, EventName: ev.Name}
	for _, reg := range regs {
		pm := report.PlayerMedals{PlayerID: reg.PlayerID}
		if p, err := e.store.GetPlayer(ctx, reg.PlayerID); err == nil {
			pm.Key = p.Key
			pm.FullName = p.FullName()
		}
		for _, en := range reg.Entries {
			switch en.Medal {
			case event.MedalGold:
				pm.Gold++
			case event.MedalSilver:
				pm.Silver++
			case event.MedalBronze:
				pm.Bronze++
			}
		}
		out.Club.Gold += pm.Gold
		out.Club.Silver += pm.Silver
		out.Club.Bronze += pm.Bronze
		out.Players = append(out.Players, pm)
	}

	sort.SliceStable(out.Players, func(i, j int) bool {
		a, b := out.Players[i], out.Players[j]
		if a.Gold != b.Gold {
			return a.Gold > b.Gold
		}
		if a.Silver != b.Silver {
			return a.Silver > b.Silver
		}
		if a.Bronze != b.Bronze {
			return a.Bronze > b.Bronze
		}
		return a.FullName < b.FullName
	})
	return out, nil
}
