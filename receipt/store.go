package receipt

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists receipts and their links.
//
// CreateReceipt assigns Seq and writes the receipt and its links
// atomically. A second settling link for the same target makes it return
// the store's ErrAlreadyExists and write nothing.
type Store interface {
	CreateReceipt(ctx context.Context, r *Receipt) error
	GetReceipt(ctx context.Context, receiptID id.ReceiptID) (*Receipt, error)
	GetReceiptByNumber(ctx context.Context, number string) (*Receipt, error)
	ListReceipts(ctx context.Context, opts ListOpts) ([]*Receipt, error)

	// AssignNumber sets the number of a receipt that has none.
	AssignNumber(ctx context.Context, receiptID id.ReceiptID, number string) error
	// ConsumeSession takes one paid slot: sessions_taken+1 only while
	// sessions_taken < sessions_paid. It reports whether a slot was taken.
	ConsumeSession(ctx context.Context, receiptID id.ReceiptID) (bool, error)
	// LogSession counts an unpaid session on a tracking receipt.
	LogSession(ctx context.Context, receiptID id.ReceiptID) error
	// BackfillSessionsPaid records an inferred slot count on a legacy
	// receipt whose sessions_paid is still zero. It reports whether the
	// row was updated.
	BackfillSessionsPaid(ctx context.Context, receiptID id.ReceiptID, sessions int) (bool, error)

	// SettlingReceipt returns the receipt that settles a target, or the
	// store's ErrReceiptNotFound.
	SettlingReceipt(ctx context.Context, target TargetType, targetID string) (*Receipt, error)
}

// ListOpts filters ListReceipts. From and To bound PaidAt inclusively by
// calendar day. Results are ordered by PaidAt then Seq, ascending.
type ListOpts struct {
	PlayerID      id.PlayerID
	Kinds         []Kind
	Sources       []Source
	From          time.Time
	To            time.Time
	MissingNumber bool
	Limit         int
	Offset        int
}
