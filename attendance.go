package dues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// BalanceOpts bounds a balance by calendar day. Zero bounds are open.
type BalanceOpts struct {
	From time.Time
	To   time.Time
}

// Balance is the session account of a per-session payer.
type Balance struct {
	PlayerID         id.PlayerID `json:"player_id"`
	Currency         string      `json:"currency"`
	SessionsTaken    int         `json:"sessions_taken"`
	SessionsPaid     int         `json:"sessions_paid"`
	InferredSessions int         `json:"inferred_sessions"` // part of SessionsPaid from legacy receipts
	PrepaidCredit    int64       `json:"prepaid_credit"`
	Price            *int64      `json:"price,omitempty"`
	OwedAmount       int64       `json:"owed_amount"`
	OutstandingDebts int64       `json:"outstanding_debts"`
	InDebt           bool        `json:"in_debt"`
}

// Balance reconciles attendance against payments for a player.
//
// OwedAmount is max(0, T*P - C) where T counts attendance units, P is the
// current per-session price and C the prepaid credit: per-session
// receipts plus bulk links that pay for sessions. Debt receipts are never
// credit.
func (e *Engine) Balance(ctx context.Context, caller Caller, playerID id.PlayerID, opts BalanceOpts) (*Balance, error) {
	if err := e.authorize(ctx, caller, ActionReadBalance, playerID); err != nil {
		return nil, err
	}
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return e.balance(ctx, p, opts)
}

func (e *Engine) balance(ctx context.Context, p *player.Player, opts BalanceOpts) (*Balance, error) {
	taken, err := e.store.CountAttendance(ctx, p.ID, opts.From, opts.To)
	if err != nil {
		return nil, err
	}
	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{
		PlayerID: p.ID,
		From:     opts.From,
		To:       opts.To,
	})
	if err != nil {
		return nil, err
	}
	settled, err := e.settledTargets(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	b := &Balance{
		PlayerID:      p.ID,
		Currency:      e.currency,
		SessionsTaken: taken,
	}

	price, priced := p.PerSessionPrice()
	if priced {
		b.Price = &price
	}

	for _, r := range receipts {
		switch r.Kind {
		case receipt.KindPerSession:
			b.SessionsPaid += r.SessionsPaid
			b.PrepaidCredit += r.Amount
		case receipt.KindBulk:
			for _, l := range r.Links {
				if l.TargetType.CountsAsSessionCredit() {
					b.SessionsPaid += l.Sessions
					b.PrepaidCredit += l.Amount
				}
			}
		case receipt.KindDebt:
			if !settled[targetKey(receipt.TargetDebt, r.ID.String())] {
				b.OutstandingDebts += r.Amount
			}
		}
	}
	if priced {
		b.InferredSessions = inferredLegacySessions(receipts, price)
		b.SessionsPaid += b.InferredSessions
	}

	b.OwedAmount = owed(taken, price, b.PrepaidCredit)
	b.InDebt = b.OwedAmount > 0 || b.OutstandingDebts > 0
	return b, nil
}

// owed is max(0, taken*price - credit).
func owed(taken int, price, credit int64) int64 {
	return types.New(price, "").Multiply(int64(taken)).Subtract(types.New(credit, "")).ClampZero().Amount
}

// ──────────────────────────────────────────────────
// Recording sessions
// ──────────────────────────────────────────────────

// SessionResult reports how a recorded attendance unit was allocated.
type SessionResult struct {
	Attendance *attendance.Attendance `json:"attendance"`
	Outcome    attendance.Outcome     `json:"outcome"`
	Duplicate  bool                   `json:"duplicate"`
	Receipt    *receipt.Receipt       `json:"receipt,omitempty"` // receipt whose slot covers the unit
	Debt       *receipt.Receipt       `json:"debt,omitempty"`
}

// RecordSession records that a player trained on date and allocates the
// unit to a payment.
//
// A second call for the same player and day changes nothing and reports
// Duplicate. Monthly payers are covered by their due. For per-session
// payers the unit goes, in one transaction, to the first of:
//
//  1. a free slot on the oldest per-session receipt;
//  2. a slot on a legacy receipt whose count is back-filled first;
//  3. a new debt receipt for exactly this one session.
//
// A unit never creates more than one debt, and never a debt for earlier
// units.
func (e *Engine) RecordSession(ctx context.Context, caller Caller, playerID id.PlayerID, date time.Time, source attendance.Source) (*SessionResult, error) {
	if source == "" {
		source = attendance.SourceStaff
	}
	if !source.IsValid() {
		return nil, ValidationError{Field: "source", Message: "invalid"}
	}
	action := ActionRecordSession
	if source == attendance.SourceSelfCheckIn {
		action = ActionCheckIn
	}
	if err := e.authorize(ctx, caller, action, playerID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = e.now()
	}

	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrInactivePlayer
	}

	res := &SessionResult{}
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		a := &attendance.Attendance{
			ID:        id.NewAttendanceID(),
			PlayerID:  p.ID,
			Date:      types.DateOf(date),
			Source:    source,
			CreatedAt: e.Now(),
		}
		if !p.BilledPerSession() {
			a.Paid = true
		}
		if err := e.store.CreateAttendance(ctx, a); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				res.Duplicate = true
				res.Outcome = attendance.OutcomeDuplicate
				return nil
			}
			return err
		}
		res.Attendance = a

		if !p.BilledPerSession() {
			res.Outcome = attendance.OutcomeMonthly
			return nil
		}
		return e.allocateSession(ctx, p, a, res)
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		existing, err := e.store.ListAttendance(ctx, attendance.ListOpts{
			PlayerID: p.ID,
			From:     date,
			To:       date,
			Limit:    1,
		})
		if err == nil && len(existing) > 0 {
			res.Attendance = existing[0]
		}
		return res, nil
	}

	e.plugins.EmitSessionRecorded(ctx, res.Attendance, res.Outcome)
	if res.Debt != nil {
		e.plugins.EmitDebtCreated(ctx, res.Debt)
	}
	return res, nil
}

func (e *Engine) allocateSession(ctx context.Context, p *player.Player, a *attendance.Attendance, res *SessionResult) error {
	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{
		PlayerID: p.ID,
		Kinds:    []receipt.Kind{receipt.KindPerSession},
	})
	if err != nil {
		return err
	}

	// Tier 1: prepaid slack, oldest receipt first.
	for _, r := range receipts {
		if r.Slack() == 0 {
			continue
		}
		ok, err := e.store.ConsumeSession(ctx, r.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		r.SessionsTaken++
		return e.cover(ctx, a, r, attendance.OutcomePrepaid, res)
	}

	// Tier 2: legacy receipts without a session count.
	price, priced := p.PerSessionPrice()
	if priced {
		r, err := e.backfillAndConsume(ctx, receipts, price)
		if err != nil {
			return err
		}
		if r != nil {
			return e.cover(ctx, a, r, attendance.OutcomeBackfilled, res)
		}
	}

	// Tier 3: log the unit and raise one debt for it.
	if err := e.logUnpaidSession(ctx, p, receipts); err != nil {
		return err
	}

	amount := price
	if !priced || price <= 0 {
		amount = 0
		e.logger.Warn("debt recorded without a per-session price",
			"player", p.Key,
			"date", a.Date.Format(types.DateLayout),
		)
	}

	debt := &receipt.Receipt{
		ID:       id.NewReceiptID(),
		Kind:     receipt.KindDebt,
		Source:   receipt.SourceAutoDebt,
		PlayerID: p.ID,
		Amount:   amount,
		Currency: e.currency,
		Note:     "Session " + a.Date.Format(types.DateLayout),
		Links: []receipt.Link{{
			TargetType:  receipt.TargetAttendance,
			TargetID:    a.ID.String(),
			Amount:      amount,
			Sessions:    1,
			Description: "Session " + a.Date.Format(types.DateLayout),
		}},
		PaidAt:    e.Now(),
		CreatedAt: e.Now(),
	}
	if err := e.createReceipt(ctx, debt); err != nil {
		return fmt.Errorf("dues: create debt: %w", err)
	}
	if err := e.store.SetAttendanceReceipt(ctx, a.ID, debt.ID, false); err != nil {
		return err
	}

	a.ReceiptID = debt.ID.Ptr()
	res.Outcome = attendance.OutcomeDebt
	res.Debt = debt
	return nil
}

func (e *Engine) cover(ctx context.Context, a *attendance.Attendance, r *receipt.Receipt, outcome attendance.Outcome, res *SessionResult) error {
	if err := e.store.SetAttendanceReceipt(ctx, a.ID, r.ID, true); err != nil {
		return err
	}
	a.Paid = true
	a.ReceiptID = r.ID.Ptr()
	res.Outcome = outcome
	res.Receipt = r
	return nil
}

// logUnpaidSession counts the unit on the player's latest tracking
// receipt, creating one when none exists.
func (e *Engine) logUnpaidSession(ctx context.Context, p *player.Player, receipts []*receipt.Receipt) error {
	for i := len(receipts) - 1; i >= 0; i-- {
		if receipts[i].Source == receipt.SourceSessionLog {
			return e.store.LogSession(ctx, receipts[i].ID)
		}
	}

	tracking := &receipt.Receipt{
		ID:            id.NewReceiptID(),
		Kind:          receipt.KindPerSession,
		Source:        receipt.SourceSessionLog,
		PlayerID:      p.ID,
		Currency:      e.currency,
		Note:          "Session log",
		SessionsTaken: 1,
		PaidAt:        e.Now(),
		CreatedAt:     e.Now(),
	}
	return e.createReceipt(ctx, tracking)
}
