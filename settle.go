package dues

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// BulkInput selects the obligations one bulk payment settles.
type BulkInput struct {
	DueIDs          []id.DueID          `json:"due_ids"`
	RegistrationIDs []id.RegistrationID `json:"registration_ids"`
	DebtIDs         []id.ReceiptID      `json:"debt_ids"`
	SessionUnits    []id.AttendanceID   `json:"session_units"` // unpaid units without a debt
	IncludeResidual bool                `json:"include_residual"`

	Method string    `json:"method" validate:"max=64"`
	Note   string    `json:"note" validate:"max=500"`
	PaidAt time.Time `json:"paid_at"`
}

// BulkResult reports a bulk settlement. Receipt is nil when nothing in
// the selection qualified.
type BulkResult struct {
	Receipt  *receipt.Receipt `json:"receipt,omitempty"`
	Accepted int              `json:"accepted"`
	Skipped  int              `json:"skipped"`
	Amount   int64            `json:"amount"`
}

// PayDue settles several obligations of one player with a single bulk
// receipt.
//
// Items that are unknown, belong to another player, are already settled
// or carry no amount are skipped without error. Every accepted item gets
// a settling link on the one receipt, so a concurrent payment of any of
// them makes the whole call fail with ErrAlreadySettled and write nothing.
func (e *Engine) PayDue(ctx context.Context, caller Caller, playerID id.PlayerID, in BulkInput) (*BulkResult, error) {
	if err := e.authorize(ctx, caller, ActionSettle, playerID); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{}
	var r *receipt.Receipt
	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		b := &bulkBuilder{engine: e, player: p, seen: make(map[string]bool)}
		if err := b.collect(ctx, in); err != nil {
			return err
		}
		res.Accepted = len(b.links)
		res.Skipped = b.skipped
		res.Amount = b.amount
		if len(b.links) == 0 {
			return nil
		}

		paidAt := in.PaidAt
		if paidAt.IsZero() {
			paidAt = e.now()
		}
		note := in.Note
		if note == "" {
			note = strings.Join(b.descriptions, "; ")
		}
		sessions := b.sessions()

		r = &receipt.Receipt{
			ID:            id.NewReceiptID(),
			Kind:          receipt.KindBulk,
			Source:        receipt.SourceBulk,
			PlayerID:      p.ID,
			Amount:        b.amount,
			Currency:      e.currency,
			Method:        in.Method,
			Note:          note,
			SessionsPaid:  sessions,
			SessionsTaken: sessions,
			Links:         b.links,
			PaidAt:        paidAt.UTC(),
			CreatedAt:     e.Now(),
		}
		return e.createReceipt(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return res, nil
	}

	res.Receipt = r
	e.afterIssue(ctx, r)
	e.plugins.EmitBulkSettled(ctx, r, res.Accepted)
	e.logger.Info("bulk settlement issued",
		"receipt", r.Number,
		"items", res.Accepted,
		"skipped", res.Skipped,
		"amount", r.Money().String(),
	)
	return res, nil
}

type bulkBuilder struct {
	engine       *Engine
	player       *player.Player
	seen         map[string]bool
	links        []receipt.Link
	descriptions []string
	amount       int64
	skipped      int
	debtTotal    int64 // every outstanding debt, selected or not
	unitTotal    int64
}

func (b *bulkBuilder) accept(l receipt.Link) {
	l.Settles = l.TargetType != receipt.TargetSessionCredit
	b.links = append(b.links, l)
	b.descriptions = append(b.descriptions, l.Description)
	b.amount += l.Amount
}

func (b *bulkBuilder) skip() { b.skipped++ }

// fresh reports whether target has not been seen in this call and is not
// settled by an earlier receipt.
func (b *bulkBuilder) fresh(ctx context.Context, target receipt.TargetType, targetID string) (bool, error) {
	key := targetKey(target, targetID)
	if b.seen[key] {
		return false, nil
	}
	b.seen[key] = true

	_, err := b.engine.store.SettlingReceipt(ctx, target, targetID)
	if err == nil {
		return false, nil
	}
	if IsNotFound(err) {
		return true, nil
	}
	return false, err
}

func (b *bulkBuilder) collect(ctx context.Context, in BulkInput) error {
	s := b.engine.store

	for _, dueID := range in.DueIDs {
		d, err := s.GetDue(ctx, dueID)
		if err != nil {
			if IsNotFound(err) {
				b.skip()
				continue
			}
			return err
		}
		ok, err := b.fresh(ctx, receipt.TargetDue, d.ID.String())
		if err != nil {
			return err
		}
		if !ok || d.Paid || d.PlayerID != b.player.ID || d.Amount <= 0 {
			b.skip()
			continue
		}
		b.accept(receipt.Link{
			TargetType:  receipt.TargetDue,
			TargetID:    d.ID.String(),
			Amount:      d.Amount,
			Description: "Monthly fee " + d.Period().String(),
		})
	}

	for _, regID := range in.RegistrationIDs {
		reg, err := s.GetRegistration(ctx, regID)
		if err != nil {
			if IsNotFound(err) {
				b.skip()
				continue
			}
			return err
		}
		ok, err := b.fresh(ctx, receipt.TargetRegistration, reg.ID.String())
		if err != nil {
			return err
		}
		if !ok || reg.Paid || reg.PlayerID != b.player.ID {
			b.skip()
			continue
		}
		fee, err := b.engine.RegistrationFee(ctx, reg.ID)
		if err != nil {
			return err
		}
		if fee.Amount <= 0 {
			b.skip()
			continue
		}
		name := "Event"
		if ev, err := s.GetEvent(ctx, reg.EventID); err == nil {
			name = "Event " + ev.Name
		}
		b.accept(receipt.Link{
			TargetType:  receipt.TargetRegistration,
			TargetID:    reg.ID.String(),
			Amount:      fee.Amount,
			Description: name,
		})
	}

	debts, err := b.engine.outstandingDebts(ctx, b.player.ID)
	if err != nil {
		return err
	}
	outstanding := make(map[id.ReceiptID]*receipt.Receipt, len(debts))
	for _, d := range debts {
		outstanding[d.ID] = d
		b.debtTotal += d.Amount
	}
	for _, debtID := range in.DebtIDs {
		debt, ok := outstanding[debtID]
		if !ok {
			b.skip()
			continue
		}
		fresh, err := b.fresh(ctx, receipt.TargetDebt, debt.ID.String())
		if err != nil {
			return err
		}
		if !fresh || debt.Amount <= 0 {
			b.skip()
			continue
		}
		b.accept(receipt.Link{
			TargetType:  receipt.TargetDebt,
			TargetID:    debt.ID.String(),
			Amount:      debt.Amount,
			Sessions:    debtSessions(debt),
			Description: debt.Note,
		})
	}

	price, priced := b.player.PerSessionPrice()
	for _, attID := range in.SessionUnits {
		a, err := s.GetAttendance(ctx, attID)
		if err != nil {
			if IsNotFound(err) {
				b.skip()
				continue
			}
			return err
		}
		ok, err := b.fresh(ctx, receipt.TargetAttendance, a.ID.String())
		if err != nil {
			return err
		}
		// Units with a receipt are covered by a slot or by their debt.
		if !ok || a.Paid || a.ReceiptID != nil || a.PlayerID != b.player.ID || !priced || price <= 0 {
			b.skip()
			continue
		}
		b.unitTotal += price
		b.accept(receipt.Link{
			TargetType:  receipt.TargetAttendance,
			TargetID:    a.ID.String(),
			Amount:      price,
			Sessions:    1,
			Description: "Session " + a.Date.Format(types.DateLayout),
		})
	}

	if in.IncludeResidual && priced && price > 0 {
		if err := b.residual(ctx, price); err != nil {
			return err
		}
	}
	return nil
}

// residual adds a session-credit link for whatever the reconciler says is
// owed beyond the outstanding debts and the units selected above.
func (b *bulkBuilder) residual(ctx context.Context, price int64) error {
	bal, err := b.engine.balance(ctx, b.player, BalanceOpts{})
	if err != nil {
		return err
	}
	amount := bal.OwedAmount - b.debtTotal - b.unitTotal
	if amount <= 0 {
		return nil
	}
	sessions := int(decimal.NewFromInt(amount).Div(decimal.NewFromInt(price)).Round(0).IntPart())
	b.accept(receipt.Link{
		TargetType:  receipt.TargetSessionCredit,
		TargetID:    b.player.ID.String(),
		Amount:      amount,
		Sessions:    sessions,
		Description: "Outstanding sessions",
	})
	return nil
}

func (b *bulkBuilder) sessions() int {
	n := 0
	for _, l := range b.links {
		if l.TargetType.CountsAsSessionCredit() {
			n += l.Sessions
		}
	}
	return n
}

// ──────────────────────────────────────────────────
// Selections
// ──────────────────────────────────────────────────

// Scope names a family of outstanding obligations.
type Scope string

const (
	ScopeMonthly Scope = "monthly"
	ScopeEvents  Scope = "events"
	ScopeDebts   Scope = "debts"
	ScopeAll     Scope = "all"
)

// ParseScope maps input to a Scope; unknown input means ScopeAll.
func ParseScope(s string) Scope {
	switch Scope(s) {
	case ScopeMonthly, ScopeEvents, ScopeDebts:
		return Scope(s)
	}
	return ScopeAll
}

// BulkSelection builds the BulkInput that pays everything a player owes
// in scope.
func (e *Engine) BulkSelection(ctx context.Context, caller Caller, playerID id.PlayerID, scope Scope) (BulkInput, error) {
	var in BulkInput
	if err := e.authorize(ctx, caller, ActionReadBalance, playerID); err != nil {
		return in, err
	}
	if _, err := e.store.GetPlayer(ctx, playerID); err != nil {
		return in, err
	}

	if scope == ScopeMonthly || scope == ScopeAll {
		dues, err := e.store.ListDues(ctx, due.ListOpts{PlayerID: playerID, UnpaidOnly: true})
		if err != nil {
			return in, err
		}
		for _, d := range dues {
			in.DueIDs = append(in.DueIDs, d.ID)
		}
	}

	if scope == ScopeEvents || scope == ScopeAll {
		regs, err := e.store.ListRegistrations(ctx, event.RegistrationListOpts{PlayerID: playerID, UnpaidOnly: true})
		if err != nil {
			return in, err
		}
		for _, r := range regs {
			in.RegistrationIDs = append(in.RegistrationIDs, r.ID)
		}
	}

	if scope == ScopeDebts || scope == ScopeAll {
		debts, err := e.outstandingDebts(ctx, playerID)
		if err != nil {
			return in, err
		}
		for _, d := range debts {
			in.DebtIDs = append(in.DebtIDs, d.ID)
		}
		units, err := e.store.ListAttendance(ctx, attendance.ListOpts{PlayerID: playerID, UnpaidOnly: true})
		if err != nil {
			return in, err
		}
		for _, a := range units {
			if a.ReceiptID == nil {
				in.SessionUnits = append(in.SessionUnits, a.ID)
			}
		}
		in.IncludeResidual = true
	}
	return in, nil
}

// ──────────────────────────────────────────────────
// Settlement index
// ──────────────────────────────────────────────────

func targetKey(target receipt.TargetType, targetID string) string {
	return string(target) + "/" + targetID
}

// settledTargets indexes every target settled by a receipt of the player,
// or of anyone for id.Nil. Receipts are authoritative; paid flags are not
// consulted.
func (e *Engine) settledTargets(ctx context.Context, playerID id.PlayerID) (map[string]bool, error) {
	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{PlayerID: playerID})
	if err != nil {
		return nil, err
	}
	return settledIndex(receipts), nil
}

func settledIndex(receipts []*receipt.Receipt) map[string]bool {
	settled := make(map[string]bool)
	for _, r := range receipts {
		for _, l := range r.SettlingTargets() {
			settled[targetKey(l.TargetType, l.TargetID)] = true
		}
	}
	return settled
}

// outstandingDebts returns the player's debt receipts no receipt settles,
// oldest first.
func (e *Engine) outstandingDebts(ctx context.Context, playerID id.PlayerID) ([]*receipt.Receipt, error) {
	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{PlayerID: playerID})
	if err != nil {
		return nil, err
	}
	settled := settledIndex(receipts)

	var out []*receipt.Receipt
	for _, r := range receipts {
		if r.IsDebt() && !settled[targetKey(receipt.TargetDebt, r.ID.String())] {
			out = append(out, r)
		}
	}
	return out, nil
}

// OutstandingDebts lists unsettled debt receipts of one player, or of
// every player for id.Nil.
func (e *Engine) OutstandingDebts(ctx context.Context, caller Caller, playerID id.PlayerID) ([]*receipt.Receipt, error) {
	action := ActionReadBalance
	if playerID.IsNil() {
		action = ActionReport
	}
	if err := e.authorize(ctx, caller, action, playerID); err != nil {
		return nil, err
	}
	return e.outstandingDebts(ctx, playerID)
}
