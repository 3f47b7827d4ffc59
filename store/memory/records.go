package memory

import (
	"context"
	"sort"
	"time"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

func copyEvent(e *event.Event) *event.Event {
	c := *e
	if e.EndsOn != nil {
		t := *e.EndsOn
		c.EndsOn = &t
	}
	return &c
}

func copyCategory(cat *event.Category) *event.Category {
	c := *cat
	if cat.Fee != nil {
		fee := *cat.Fee
		c.Fee = &fee
	}
	return &c
}

func copyRegistration(r *event.Registration) *event.Registration {
	c := *r
	c.Entries = append([]event.Entry(nil), r.Entries...)
	if r.FeeOverride != nil {
		fee := *r.FeeOverride
		c.FeeOverride = &fee
	}
	if r.PaidOn != nil {
		t := *r.PaidOn
		c.PaidOn = &t
	}
	return &c
}

func (s *Store) CreateEvent(ctx context.Context, e *event.Event) error {
	defer s.write(ctx)()

	if _, exists := s.data.events[e.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	s.data.events[e.ID.String()] = copyEvent(e)
	return nil
}

func (s *Store) GetEvent(_ context.Context, eventID id.EventID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.data.events[eventID.String()]; ok {
		return copyEvent(e), nil
	}
	return nil, dues.ErrEventNotFound
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0, len(s.data.events))
	for _, e := range s.data.events {
		if !types.InRange(e.StartsOn, opts.From, opts.To) {
			continue
		}
		result = append(result, copyEvent(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartsOn.After(result[j].StartsOn)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CreateCategory(ctx context.Context, c *event.Category) error {
	defer s.write(ctx)()

	if _, ok := s.data.events[c.EventID.String()]; !ok {
		return dues.ErrEventNotFound
	}
	if _, exists := s.data.categories[c.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	s.data.categories[c.ID.String()] = copyCategory(c)
	return nil
}

func (s *Store) ListCategories(_ context.Context, eventID id.EventID) ([]*event.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Category, 0)
	for _, c := range s.data.categories {
		if c.EventID == eventID {
			result = append(result, copyCategory(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) CreateRegistration(ctx context.Context, r *event.Registration) error {
	defer s.write(ctx)()

	if _, exists := s.data.registrations[r.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	for _, existing := range s.data.registrations {
		if existing.EventID == r.EventID && existing.PlayerID == r.PlayerID {
			return dues.ErrAlreadyExists
		}
	}
	s.data.registrations[r.ID.String()] = copyRegistration(r)
	return nil
}

func (s *Store) GetRegistration(_ context.Context, regID id.RegistrationID) (*event.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.data.registrations[regID.String()]; ok {
		return copyRegistration(r), nil
	}
	return nil, dues.ErrRegistrationNotFound
}

func (s *Store) ListRegistrations(_ context.Context, opts event.RegistrationListOpts) ([]*event.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Registration, 0)
	for _, r := range s.data.registrations {
		if !opts.EventID.IsNil() && r.EventID != opts.EventID {
			continue
		}
		if !opts.PlayerID.IsNil() && r.PlayerID != opts.PlayerID {
			continue
		}
		if opts.UnpaidOnly && r.Paid {
			continue
		}
		result = append(result, copyRegistration(r))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) MarkRegistrationPaid(ctx context.Context, regID id.RegistrationID, paidOn time.Time) (bool, error) {
	defer s.write(ctx)()

	r, ok := s.data.registrations[regID.String()]
	if !ok {
		return false, dues.ErrRegistrationNotFound
	}
	if r.Paid {
		return false, nil
	}
	c := copyRegistration(r)
	c.Paid = true
	on := types.DateOf(paidOn)
	c.PaidOn = &on
	c.Touch()
	s.data.registrations[regID.String()] = c
	return true, nil
}

// ──────────────────────────────────────────────────
// Receipts
// ──────────────────────────────────────────────────

func copyReceipt(r *receipt.Receipt) *receipt.Receipt {
	c := *r
	c.Links = append([]receipt.Link(nil), r.Links...)
	return &c
}

func settlingKey(target receipt.TargetType, targetID string) string {
	return string(target) + "/" + targetID
}

func (s *Store) CreateReceipt(ctx context.Context, r *receipt.Receipt) error {
	defer s.write(ctx)()

	if _, exists := s.data.receipts[r.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	if r.Number != "" {
		for _, existing := range s.data.receipts {
			if existing.Number == r.Number {
				return dues.ErrAlreadyExists
			}
		}
	}
	seen := make(map[string]bool)
	for _, l := range r.SettlingTargets() {
		key := settlingKey(l.TargetType, l.TargetID)
		if _, taken := s.data.settling[key]; taken || seen[key] {
			return dues.ErrAlreadyExists
		}
		seen[key] = true
	}

	s.data.seq++
	r.Seq = s.data.seq
	for key := range seen {
		s.data.settling[key] = r.ID
	}
	s.data.receipts[r.ID.String()] = copyReceipt(r)
	return nil
}

func (s *Store) GetReceipt(_ context.Context, receiptID id.ReceiptID) (*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.data.receipts[receiptID.String()]; ok {
		return copyReceipt(r), nil
	}
	return nil, dues.ErrReceiptNotFound
}

func (s *Store) GetReceiptByNumber(_ context.Context, number string) (*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.data.receipts {
		if r.Number == number {
			return copyReceipt(r), nil
		}
	}
	return nil, dues.ErrReceiptNotFound
}

func (s *Store) ListReceipts(_ context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*receipt.Receipt, 0)
	for _, r := range s.data.receipts {
		if !opts.PlayerID.IsNil() && r.PlayerID != opts.PlayerID {
			continue
		}
		if len(opts.Kinds) > 0 && !containsKind(opts.Kinds, r.Kind) {
			continue
		}
		if len(opts.Sources) > 0 && !containsSource(opts.Sources, r.Source) {
			continue
		}
		if opts.MissingNumber && r.Number != "" {
			continue
		}
		if !types.InRange(r.PaidAt, opts.From, opts.To) {
			continue
		}
		result = append(result, copyReceipt(r))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaidAt.Equal(result[j].PaidAt) {
			return result[i].PaidAt.Before(result[j].PaidAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) AssignNumber(ctx context.Context, receiptID id.ReceiptID, number string) error {
	defer s.write(ctx)()

	r, ok := s.data.receipts[receiptID.String()]
	if !ok {
		return dues.ErrReceiptNotFound
	}
	if r.Number != "" {
		return nil
	}
	for _, existing := range s.data.receipts {
		if existing.Number == number {
			return dues.ErrAlreadyExists
		}
	}
	c := copyReceipt(r)
	c.Number = number
	s.data.receipts[receiptID.String()] = c
	return nil
}

func (s *Store) ConsumeSession(ctx context.Context, receiptID id.ReceiptID) (bool, error) {
	defer s.write(ctx)()

	r, ok := s.data.receipts[receiptID.String()]
	if !ok {
		return false, dues.ErrReceiptNotFound
	}
	if r.SessionsTaken >= r.SessionsPaid {
		return false, nil
	}
	c := copyReceipt(r)
	c.SessionsTaken++
	s.data.receipts[receiptID.String()] = c
	return true, nil
}

func (s *Store) LogSession(ctx context.Context, receiptID id.ReceiptID) error {
	defer s.write(ctx)()

	r, ok := s.data.receipts[receiptID.String()]
	if !ok {
		return dues.ErrReceiptNotFound
	}
	c := copyReceipt(r)
	c.SessionsTaken++
	s.data.receipts[receiptID.String()] = c
	return nil
}

func (s *Store) BackfillSessionsPaid(ctx context.Context, receiptID id.ReceiptID, sessions int) (bool, error) {
	defer s.write(ctx)()

	r, ok := s.data.receipts[receiptID.String()]
	if !ok {
		return false, dues.ErrReceiptNotFound
	}
	if r.SessionsPaid != 0 {
		return false, nil
	}
	c := copyReceipt(r)
	c.SessionsPaid = sessions
	s.data.receipts[receiptID.String()] = c
	return true, nil
}

func (s *Store) SettlingReceipt(_ context.Context, target receipt.TargetType, targetID string) (*receipt.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rid, ok := s.data.settling[settlingKey(target, targetID)]
	if !ok {
		return nil, dues.ErrReceiptNotFound
	}
	r, ok := s.data.receipts[rid.String()]
	if !ok {
		return nil, dues.ErrReceiptNotFound
	}
	return copyReceipt(r), nil
}

func containsKind(kinds []receipt.Kind, k receipt.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func containsSource(sources []receipt.Source, src receipt.Source) bool {
	for _, x := range sources {
		if x == src {
			return true
		}
	}
	return false
}
