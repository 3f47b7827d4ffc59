package dues

// Legacy back-fill.
//
// Receipts imported from the old bookkeeping carry an amount but no
// session count. Their count is inferred once as amount / price, rounded
// half away from zero, and written back so that steady-state
// reconciliation only ever reads explicit counts. Nothing outside this
// file divides money by a price.

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/dues/receipt"
)

// InferSessions returns the number of sessions amount buys at price,
// rounded to the nearest whole session with halves rounded up. It returns
// 0 when either value is not positive.
func InferSessions(amount, price int64) int {
	if amount <= 0 || price <= 0 {
		return 0
	}
	q := decimal.NewFromInt(amount).Div(decimal.NewFromInt(price)).Round(0)
	return int(q.IntPart())
}

// isLegacySessionReceipt reports whether r still awaits back-fill.
func isLegacySessionReceipt(r *receipt.Receipt) bool {
	return r.Kind == receipt.KindPerSession &&
		r.Source != receipt.SourceSessionLog &&
		r.SessionsPaid == 0 &&
		r.Amount > 0
}

// inferredLegacySessions sums the inferred counts of receipts that have
// not been back-filled yet.
func inferredLegacySessions(receipts []*receipt.Receipt, price int64) int {
	total := 0
	for _, r := range receipts {
		if isLegacySessionReceipt(r) {
			total += InferSessions(r.Amount, price)
		}
	}
	return total
}

// backfillAndConsume walks legacy receipts oldest first, persists the
// inferred count of each and takes one slot from the first that has one.
// It returns the receipt whose slot was taken, or nil.
func (e *Engine) backfillAndConsume(ctx context.Context, receipts []*receipt.Receipt, price int64) (*receipt.Receipt, error) {
	if price <= 0 {
		return nil, nil
	}

	for _, r := range receipts {
		if !isLegacySessionReceipt(r) {
			continue
		}
		n := InferSessions(r.Amount, price)
		if n <= 0 {
			continue
		}

		updated, err := e.store.BackfillSessionsPaid(ctx, r.ID, n)
		if err != nil {
			return nil, err
		}
		if updated {
			e.logger.Info("legacy receipt back-filled",
				"receipt", r.Number,
				"sessions", n,
			)
			r.SessionsPaid = n
		}

		ok, err := e.store.ConsumeSession(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			r.SessionsTaken++
			return r, nil
		}
	}
	return nil, nil
}
