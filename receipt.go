package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// IssueInput describes an income receipt.
type IssueInput struct {
	Kind     receipt.Kind   `json:"kind" validate:"required"`
	Source   receipt.Source `json:"source"`
	PlayerID id.PlayerID    `json:"player_id"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency" validate:"omitempty,len=3"`
	Method   string         `json:"method" validate:"max=64"`
	Note     string         `json:"note" validate:"max=500"`

	Year  int `json:"year" validate:"omitempty,gte=1900,lte=9999"`
	Month int `json:"month" validate:"omitempty,gte=1,lte=12"`

	SessionsPaid int `json:"sessions_paid" validate:"gte=0"`

	Links  []receipt.Link `json:"links"`
	PaidAt time.Time      `json:"paid_at"`
}

// IssueReceipt records income and settles the obligations it links to.
//
// The receipt and its links commit together. A link that would settle an
// obligation already settled by another receipt fails the whole call with
// ErrAlreadySettled. Paid flags on the settled records are updated after
// the commit; a failure there is logged and left to RepairPaidFlags, the
// receipt stands.
func (e *Engine) IssueReceipt(ctx context.Context, caller Caller, in IssueInput) (*receipt.Receipt, error) {
	if err := e.authorize(ctx, caller, ActionIssueReceipt, in.PlayerID); err != nil {
		return nil, err
	}
	r, err := e.buildReceipt(in)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.checkLinks(ctx, r); err != nil {
			return err
		}
		return e.createReceipt(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	e.afterIssue(ctx, r)
	return r, nil
}

func (e *Engine) buildReceipt(in IssueInput) (*receipt.Receipt, error) {
	if err := e.check(in); err != nil {
		return nil, err
	}
	// Debts are raised by RecordSession and bulk receipts by PayDue.
	if !in.Kind.IsValid() || in.Kind == receipt.KindDebt || in.Kind == receipt.KindBulk {
		return nil, ErrInvalidKind
	}
	if in.PlayerID.IsNil() {
		return nil, ValidationError{Field: "player_id", Message: "required"}
	}
	if in.Source == "" {
		in.Source = receipt.SourceManual
	}
	if !in.Source.IsValid() || in.Source == receipt.SourceAutoDebt || in.Source == receipt.SourceSessionLog {
		return nil, ValidationError{Field: "source", Message: "not allowed"}
	}
	if in.Amount <= 0 {
		return nil, ErrAmountRequired
	}
	if in.Kind == receipt.KindMonthly {
		if _, err := types.NewMonth(in.Year, in.Month); err != nil {
			return nil, ErrInvalidMonth
		}
	}
	if in.Kind == receipt.KindPerSession && in.SessionsPaid == 0 && in.Source != receipt.SourceImport {
		return nil, ValidationError{Field: "sessions_paid", Message: "required"}
	}
	for i, l := range in.Links {
		if !l.TargetType.IsValid() || l.TargetID == "" {
			return nil, ValidationError{Field: fmt.Sprintf("links[%d]", i), Message: "invalid"}
		}
		if l.Amount < 0 || l.Sessions < 0 {
			return nil, ValidationError{Field: fmt.Sprintf("links[%d]", i), Message: "too small"}
		}
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = e.now()
	}

	r := &receipt.Receipt{
		ID:           id.NewReceiptID(),
		Kind:         in.Kind,
		Source:       in.Source,
		PlayerID:     in.PlayerID,
		Amount:       in.Amount,
		Currency:     e.currencyOr(in.Currency),
		Method:       in.Method,
		Note:         in.Note,
		Year:         in.Year,
		Month:        in.Month,
		SessionsPaid: in.SessionsPaid,
		Links:        append([]receipt.Link(nil), in.Links...),
		PaidAt:       paidAt.UTC(),
		CreatedAt:    e.Now(),
	}

	// Slots paying for sessions already attended are spent on issue.
	if r.Kind == receipt.KindPerSession {
		for i, l := range r.Links {
			if l.Settles && (l.TargetType == receipt.TargetDebt || l.TargetType == receipt.TargetAttendance) {
				if l.Sessions == 0 {
					r.Links[i].Sessions = 1
				}
				r.SessionsTaken += r.Links[i].Sessions
			}
		}
		r.SessionsTaken = min(r.SessionsTaken, r.SessionsPaid)
	}
	return r, nil
}

// checkLinks verifies that every settling link points at an obligation
// of the receipt's player that nothing has settled yet.
func (e *Engine) checkLinks(ctx context.Context, r *receipt.Receipt) error {
	if _, err := e.store.GetPlayer(ctx, r.PlayerID); err != nil {
		return err
	}
	for _, l := range r.Links {
		if !l.Settles {
			continue
		}
		owner, paid, err := e.obligation(ctx, l.TargetType, l.TargetID)
		if err != nil {
			return err
		}
		if owner != r.PlayerID {
			return ErrWrongPlayer
		}
		if paid {
			return ErrAlreadySettled
		}
		if _, err := e.store.SettlingReceipt(ctx, l.TargetType, l.TargetID); err == nil {
			return ErrAlreadySettled
		} else if !IsNotFound(err) {
			return err
		}
	}
	return nil
}

// obligation loads a link target and returns its player and cached paid
// flag.
func (e *Engine) obligation(ctx context.Context, target receipt.TargetType, targetID string) (id.PlayerID, bool, error) {
	switch target {
	case receipt.TargetDue:
		dueID, err := id.ParseDueID(targetID)
		if err != nil {
			return id.Nil, false, ErrDueNotFound
		}
		d, err := e.store.GetDue(ctx, dueID)
		if err != nil {
			return id.Nil, false, err
		}
		return d.PlayerID, d.Paid, nil

	case receipt.TargetRegistration:
		regID, err := id.ParseRegistrationID(targetID)
		if err != nil {
			return id.Nil, false, ErrRegistrationNotFound
		}
		reg, err := e.store.GetRegistration(ctx, regID)
		if err != nil {
			return id.Nil, false, err
		}
		return reg.PlayerID, reg.Paid, nil

	case receipt.TargetDebt:
		debtID, err := id.ParseReceiptID(targetID)
		if err != nil {
			return id.Nil, false, ErrReceiptNotFound
		}
		debt, err := e.store.GetReceipt(ctx, debtID)
		if err != nil {
			return id.Nil, false, err
		}
		if !debt.IsDebt() {
			return id.Nil, false, ErrNotDebt
		}
		return debt.PlayerID, false, nil

	case receipt.TargetAttendance:
		attID, err := id.ParseAttendanceID(targetID)
		if err != nil {
			return id.Nil, false, ErrAttendanceNotFound
		}
		a, err := e.store.GetAttendance(ctx, attID)
		if err != nil {
			return id.Nil, false, err
		}
		return a.PlayerID, a.Paid, nil

	case receipt.TargetSessionCredit:
		playerID, err := id.ParsePlayerID(targetID)
		if err != nil {
			return id.Nil, false, ErrPlayerNotFound
		}
		return playerID, false, nil
	}
	return id.Nil, false, ErrInvalidInput
}

// afterIssue updates paid flags and notifies plugins. It never fails.
func (e *Engine) afterIssue(ctx context.Context, r *receipt.Receipt) {
	for _, l := range r.SettlingTargets() {
		if _, err := e.flipFlag(ctx, r, l); err != nil {
			e.logger.Warn("paid flag not updated; receipt kept",
				"receipt", r.Number,
				"target", string(l.TargetType),
				"error", err,
			)
			e.plugins.EmitSettlementFlagFailed(ctx, r, l, err)
		}
	}
	e.plugins.EmitReceiptIssued(ctx, r)
}

// flipFlag sets the cached paid flag of one settled target. It reports
// how many records changed.
func (e *Engine) flipFlag(ctx context.Context, r *receipt.Receipt, l receipt.Link) (int, error) {
	paidOn := types.DateOf(r.PaidAt)

	switch l.TargetType {
	case receipt.TargetDue:
		dueID, err := id.ParseDueID(l.TargetID)
		if err != nil {
			return 0, err
		}
		flipped, err := e.store.MarkDuePaid(ctx, dueID, paidOn)
		return boolCount(flipped), err

	case receipt.TargetRegistration:
		regID, err := id.ParseRegistrationID(l.TargetID)
		if err != nil {
			return 0, err
		}
		flipped, err := e.store.MarkRegistrationPaid(ctx, regID, paidOn)
		return boolCount(flipped), err

	case receipt.TargetAttendance:
		attID, err := id.ParseAttendanceID(l.TargetID)
		if err != nil {
			return 0, err
		}
		flipped, err := e.store.MarkAttendancePaid(ctx, attID, r.ID)
		return boolCount(flipped), err

	case receipt.TargetDebt:
		debtID, err := id.ParseReceiptID(l.TargetID)
		if err != nil {
			return 0, err
		}
		debt, err := e.store.GetReceipt(ctx, debtID)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, dl := range debt.Links {
			if dl.TargetType != receipt.TargetAttendance {
				continue
			}
			attID, err := id.ParseAttendanceID(dl.TargetID)
			if err != nil {
				return n, err
			}
			flipped, err := e.store.MarkAttendancePaid(ctx, attID, r.ID)
			if err != nil {
				return n, err
			}
			n += boolCount(flipped)
		}
		return n, nil
	}
	return 0, nil
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ──────────────────────────────────────────────────
// Convenience payments
// ──────────────────────────────────────────────────

// PaymentInput carries the optional details of a single payment. A zero
// Amount means the obligation's own amount.
type PaymentInput struct {
	Amount int64     `json:"amount" validate:"gte=0"`
	Method string    `json:"method" validate:"max=64"`
	Note   string    `json:"note" validate:"max=500"`
	PaidAt time.Time `json:"paid_at"`
}

// PayMonthlyDue issues a monthly receipt settling one due. The caller is
// checked before the due is looked up, and again against its player.
func (e *Engine) PayMonthlyDue(ctx context.Context, caller Caller, dueID id.DueID, in PaymentInput) (*receipt.Receipt, error) {
	if err := e.authorize(ctx, caller, ActionIssueReceipt, id.Nil); err != nil {
		return nil, err
	}
	d, err := e.store.GetDue(ctx, dueID)
	if err != nil {
		return nil, err
	}
	amount := in.Amount
	if amount == 0 {
		amount = d.Amount
	}
	return e.IssueReceipt(ctx, caller, IssueInput{
		Kind:     receipt.KindMonthly,
		PlayerID: d.PlayerID,
		Amount:   amount,
		Currency: d.Currency,
		Method:   in.Method,
		Note:     in.Note,
		Year:     d.Year,
		Month:    d.Month,
		PaidAt:   in.PaidAt,
		Links: []receipt.Link{{
			TargetType:  receipt.TargetDue,
			TargetID:    d.ID.String(),
			Amount:      amount,
			Settles:     true,
			Description: "Monthly fee " + d.Period().String(),
		}},
	})
}

// PayRegistration issues an event receipt settling one registration.
// Without an explicit amount the computed fee is charged; an unpriced
// registration then fails with ErrAmountRequired.
func (e *Engine) PayRegistration(ctx context.Context, caller Caller, regID id.RegistrationID, in PaymentInput) (*receipt.Receipt, error) {
	if err := e.authorize(ctx, caller, ActionIssueReceipt, id.Nil); err != nil {
		return nil, err
	}
	reg, err := e.store.GetRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	ev, err := e.store.GetEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	amount := in.Amount
	if amount == 0 {
		fee, err := e.RegistrationFee(ctx, regID)
		if err != nil {
			return nil, err
		}
		amount = fee.Amount
	}
	return e.IssueReceipt(ctx, caller, IssueInput{
		Kind:     receipt.KindEvent,
		PlayerID: reg.PlayerID,
		Amount:   amount,
		Currency: ev.Currency,
		Method:   in.Method,
		Note:     in.Note,
		PaidAt:   in.PaidAt,
		Links: []receipt.Link{{
			TargetType:  receipt.TargetRegistration,
			TargetID:    reg.ID.String(),
			Amount:      amount,
			Settles:     true,
			Description: "Event " + ev.Name,
		}},
	})
}

// PaySessions issues a per-session receipt prepaying a block of sessions.
// Without an explicit amount the block is charged at the current price.
func (e *Engine) PaySessions(ctx context.Context, caller Caller, playerID id.PlayerID, sessions int, in PaymentInput) (*receipt.Receipt, error) {
	if err := e.authorize(ctx, caller, ActionIssueReceipt, playerID); err != nil {
		return nil, err
	}
	if sessions <= 0 {
		return nil, ValidationError{Field: "sessions", Message: "too small"}
	}
	p, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !p.BilledPerSession() {
		return nil, ErrNotPerSession
	}
	amount := in.Amount
	if amount == 0 {
		price, ok := p.PerSessionPrice()
		if !ok {
			return nil, ErrPriceNotSet
		}
		amount = price * int64(sessions)
	}
	return e.IssueReceipt(ctx, caller, IssueInput{
		Kind:         receipt.KindPerSession,
		PlayerID:     playerID,
		Amount:       amount,
		Method:       in.Method,
		Note:         in.Note,
		SessionsPaid: sessions,
		PaidAt:       in.PaidAt,
	})
}

// PayDebt settles one automatic debt with a per-session receipt. The
// session the debt stands for was already taken, so the new receipt's
// slot is consumed on issue and cannot cover a later session.
func (e *Engine) PayDebt(ctx context.Context, caller Caller, debtID id.ReceiptID, in PaymentInput) (*receipt.Receipt, error) {
	debt, err := e.store.GetReceipt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsDebt() {
		return nil, ErrNotDebt
	}
	if err := e.authorize(ctx, caller, ActionSettle, debt.PlayerID); err != nil {
		return nil, err
	}
	if err := e.check(in); err != nil {
		return nil, err
	}

	amount := in.Amount
	if amount == 0 {
		amount = debt.Amount
	}
	if amount <= 0 {
		return nil, ErrAmountRequired
	}
	sessions := debtSessions(debt)
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = e.now()
	}

	r := &receipt.Receipt{
		ID:            id.NewReceiptID(),
		Kind:          receipt.KindPerSession,
		Source:        receipt.SourceDebtPayment,
		PlayerID:      debt.PlayerID,
		Amount:        amount,
		Currency:      debt.Currency,
		Method:        in.Method,
		Note:          in.Note,
		SessionsPaid:  sessions,
		SessionsTaken: sessions,
		Links: []receipt.Link{{
			TargetType:  receipt.TargetDebt,
			TargetID:    debt.ID.String(),
			Amount:      amount,
			Sessions:    sessions,
			Settles:     true,
			Description: debt.Note,
		}},
		PaidAt:    paidAt.UTC(),
		CreatedAt: e.Now(),
	}

	err = e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.checkLinks(ctx, r); err != nil {
			return err
		}
		return e.createReceipt(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	e.afterIssue(ctx, r)
	return r, nil
}

// debtSessions is the number of sessions a debt stands for.
func debtSessions(debt *receipt.Receipt) int {
	n := 0
	for _, l := range debt.Links {
		if l.TargetType == receipt.TargetAttendance {
			n += max(l.Sessions, 1)
		}
	}
	return max(n, 1)
}

// ListReceipts lists receipts for administration and export.
func (e *Engine) ListReceipts(ctx context.Context, caller Caller, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	if err := e.authorize(ctx, caller, ActionReport, opts.PlayerID); err != nil {
		return nil, err
	}
	return e.store.ListReceipts(ctx, opts)
}

// ListAttendance lists attendance units.
func (e *Engine) ListAttendance(ctx context.Context, caller Caller, opts attendance.ListOpts) ([]*attendance.Attendance, error) {
	if err := e.authorize(ctx, caller, ActionReadBalance, opts.PlayerID); err != nil {
		return nil, err
	}
	return e.store.ListAttendance(ctx, opts)
}
