package dues

import (
	"context"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/receipt"
)

// SweepResult counts the paid flags a repair sweep flipped.
type SweepResult struct {
	Receipts int `json:"receipts"`
	Flipped  int `json:"flipped"`
	Failed   int `json:"failed"`
}

// RepairPaidFlags recomputes the cached paid flags of dues, registrations
// and attendance from the receipts that settle them. Running it again
// flips nothing.
func (e *Engine) RepairPaidFlags(ctx context.Context, caller Caller) (SweepResult, error) {
	var res SweepResult
	if err := e.authorize(ctx, caller, ActionSweep, id.Nil); err != nil {
		return res, err
	}

	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{})
	if err != nil {
		return res, err
	}

	for _, r := range receipts {
		targets := r.SettlingTargets()
		if len(targets) == 0 {
			continue
		}
		res.Receipts++
		for _, l := range targets {
			n, err := e.flipFlag(ctx, r, l)
			if err != nil {
				res.Failed++
				e.logger.Warn("paid flag repair failed",
					"receipt", r.Number,
					"target", string(l.TargetType),
					"error", err,
				)
				continue
			}
			res.Flipped += n
		}
	}

	e.logger.Info("paid flags repaired",
		"receipts", res.Receipts,
		"flipped", res.Flipped,
		"failed", res.Failed,
	)
	return res, nil
}

// AssignMissingNumbers numbers receipts that were stored without a
// number, such as imports. It returns how many it numbered.
func (e *Engine) AssignMissingNumbers(ctx context.Context, caller Caller) (int, error) {
	if err := e.authorize(ctx, caller, ActionSweep, id.Nil); err != nil {
		return 0, err
	}

	receipts, err := e.store.ListReceipts(ctx, receipt.ListOpts{MissingNumber: true})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range receipts {
		if err := e.store.AssignNumber(ctx, r.ID, receipt.FormatNumber(r.IssuedAt(), r.Seq)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
