// Package memory provides an in-process store.Store for tests and small
// deployments.
//
// Writes are serialized: a transaction holds the write lock for its whole
// duration and restores a snapshot when it fails, so a failed operation
// leaves no partial writes behind.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	duesstore "github.com/xraph/dues/store"
	"github.com/xraph/dues/types"
)

// compile-time interface check
var _ duesstore.Store = (*Store)(nil)

type txKey struct{}

// Store keeps every record in maps keyed by ID string. Stored values are
// never handed out; callers always receive copies.
type Store struct {
	writeMu sync.Mutex // held by transactions and by writes outside one
	mu      sync.RWMutex

	data   *state
	closed bool
}

type state struct {
	players       map[string]*player.Player
	dues          map[string]*due.Due
	attendance    map[string]*attendance.Attendance
	events        map[string]*event.Event
	categories    map[string]*event.Category
	registrations map[string]*event.Registration
	receipts      map[string]*receipt.Receipt
	settling      map[string]id.ReceiptID // "type/target" -> settling receipt
	seq           int64
}

func newState() *state {
	return &state{
		players:       make(map[string]*player.Player),
		dues:          make(map[string]*due.Due),
		attendance:    make(map[string]*attendance.Attendance),
		events:        make(map[string]*event.Event),
		categories:    make(map[string]*event.Category),
		registrations: make(map[string]*event.Registration),
		receipts:      make(map[string]*receipt.Receipt),
		settling:      make(map[string]id.ReceiptID),
	}
}

// clone copies the maps. Values are replaced, never mutated in place, so
// sharing the pointers is safe.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.players {
		c.players[k] = v
	}
	for k, v := range st.dues {
		c.dues[k] = v
	}
	for k, v := range st.attendance {
		c.attendance[k] = v
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.registrations {
		c.registrations[k] = v
	}
	for k, v := range st.receipts {
		c.receipts[k] = v
	}
	for k, v := range st.settling {
		c.settling[k] = v
	}
	c.seq = st.seq
	return c
}

// New creates an empty memory store.
func New() *Store {
	return &Store{data: newState()}
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx, s) {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context, s *Store) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// write locks for a single mutation. Inside a transaction the write lock
// is already held by WithTx.
func (s *Store) write(ctx context.Context) func() {
	if inTx(ctx, s) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.writeMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.writeMu.Unlock()
	}
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return dues.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Players
// ──────────────────────────────────────────────────

func copyPlayer(p *player.Player) *player.Player {
	c := *p
	if p.MonthlyFee != nil {
		fee := *p.MonthlyFee
		c.MonthlyFee = &fee
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (s *Store) CreatePlayer(ctx context.Context, p *player.Player) error {
	defer s.write(ctx)()

	if _, exists := s.data.players[p.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	for _, existing := range s.data.players {
		if existing.Key == p.Key {
			return dues.ErrAlreadyExists
		}
	}
	s.data.players[p.ID.String()] = copyPlayer(p)
	return nil
}

func (s *Store) GetPlayer(_ context.Context, playerID id.PlayerID) (*player.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.data.players[playerID.String()]; ok {
		return copyPlayer(p), nil
	}
	return nil, dues.ErrPlayerNotFound
}

func (s *Store) GetPlayerByKey(_ context.Context, key string) (*player.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data.players {
		if p.Key == key {
			return copyPlayer(p), nil
		}
	}
	return nil, dues.ErrPlayerNotFound
}

func (s *Store) UpdatePlayer(ctx context.Context, p *player.Player) error {
	defer s.write(ctx)()

	if _, exists := s.data.players[p.ID.String()]; !exists {
		return dues.ErrPlayerNotFound
	}
	s.data.players[p.ID.String()] = copyPlayer(p)
	return nil
}

func (s *Store) ListPlayers(_ context.Context, opts player.ListOpts) ([]*player.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*player.Player, 0, len(s.data.players))
	for _, p := range s.data.players {
		if opts.ActiveOnly && !p.Active {
			continue
		}
		if opts.MonthlyOnly && !p.BilledMonthly() {
			continue
		}
		result = append(result, copyPlayer(p))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.LastName != b.LastName {
			return strings.ToLower(a.LastName) < strings.ToLower(b.LastName)
		}
		if a.FirstName != b.FirstName {
			return strings.ToLower(a.FirstName) < strings.ToLower(b.FirstName)
		}
		return a.Key < b.Key
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Dues
// ──────────────────────────────────────────────────

func copyDue(d *due.Due) *due.Due {
	c := *d
	if d.PaidOn != nil {
		t := *d.PaidOn
		c.PaidOn = &t
	}
	return &c
}

func (s *Store) CreateDue(ctx context.Context, d *due.Due) error {
	defer s.write(ctx)()

	if _, exists := s.data.dues[d.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	for _, existing := range s.data.dues {
		if existing.PlayerID == d.PlayerID && existing.Year == d.Year && existing.Month == d.Month {
			return dues.ErrAlreadyExists
		}
	}
	s.data.dues[d.ID.String()] = copyDue(d)
	return nil
}

func (s *Store) GetDue(_ context.Context, dueID id.DueID) (*due.Due, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.data.dues[dueID.String()]; ok {
		return copyDue(d), nil
	}
	return nil, dues.ErrDueNotFound
}

func (s *Store) GetDueFor(_ context.Context, playerID id.PlayerID, year, month int) (*due.Due, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.data.dues {
		if d.PlayerID == playerID && d.Year == year && d.Month == month {
			return copyDue(d), nil
		}
	}
	return nil, dues.ErrDueNotFound
}

func (s *Store) ListDues(_ context.Context, opts due.ListOpts) ([]*due.Due, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*due.Due, 0)
	for _, d := range s.data.dues {
		if !opts.PlayerID.IsNil() && d.PlayerID != opts.PlayerID {
			continue
		}
		if opts.Year != 0 && d.Year != opts.Year {
			continue
		}
		if opts.Month != 0 && d.Month != opts.Month {
			continue
		}
		if opts.UnpaidOnly && d.Paid {
			continue
		}
		if !types.InRange(d.Period().Start(), opts.From, opts.To) {
			continue
		}
		result = append(result, copyDue(d))
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.PlayerID.String() < b.PlayerID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) MarkDuePaid(ctx context.Context, dueID id.DueID, paidOn time.Time) (bool, error) {
	defer s.write(ctx)()

	d, ok := s.data.dues[dueID.String()]
	if !ok {
		return false, dues.ErrDueNotFound
	}
	if d.Paid {
		return false, nil
	}
	c := copyDue(d)
	c.Paid = true
	on := types.DateOf(paidOn)
	c.PaidOn = &on
	c.Touch()
	s.data.dues[dueID.String()] = c
	return true, nil
}

// ──────────────────────────────────────────────────
// Attendance
// ──────────────────────────────────────────────────

func copyAttendance(a *attendance.Attendance) *attendance.Attendance {
	c := *a
	if a.ReceiptID != nil {
		r := *a.ReceiptID
		c.ReceiptID = &r
	}
	return &c
}

func (s *Store) CreateAttendance(ctx context.Context, a *attendance.Attendance) error {
	defer s.write(ctx)()

	if _, exists := s.data.attendance[a.ID.String()]; exists {
		return dues.ErrAlreadyExists
	}
	day := types.DateOf(a.Date)
	for _, existing := range s.data.attendance {
		if existing.PlayerID == a.PlayerID && types.DateOf(existing.Date).Equal(day) {
			return dues.ErrAlreadyExists
		}
	}
	c := copyAttendance(a)
	c.Date = day
	s.data.attendance[a.ID.String()] = c
	return nil
}

func (s *Store) GetAttendance(_ context.Context, attID id.AttendanceID) (*attendance.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.data.attendance[attID.String()]; ok {
		return copyAttendance(a), nil
	}
	return nil, dues.ErrAttendanceNotFound
}

func (s *Store) ListAttendance(_ context.Context, opts attendance.ListOpts) ([]*attendance.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*attendance.Attendance, 0)
	for _, a := range s.data.attendance {
		if !opts.PlayerID.IsNil() && a.PlayerID != opts.PlayerID {
			continue
		}
		if opts.UnpaidOnly && a.Paid {
			continue
		}
		if !types.InRange(a.Date, opts.From, opts.To) {
			continue
		}
		result = append(result, copyAttendance(a))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].PlayerID.String() < result[j].PlayerID.String()
	})
	return paginate(result, 0, opts.Limit), nil
}

func (s *Store) CountAttendance(_ context.Context, playerID id.PlayerID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.data.attendance {
		if a.PlayerID == playerID && types.InRange(a.Date, from, to) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetAttendanceReceipt(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID, paid bool) error {
	defer s.write(ctx)()

	a, ok := s.data.attendance[attID.String()]
	if !ok {
		return dues.ErrAttendanceNotFound
	}
	c := copyAttendance(a)
	c.ReceiptID = receiptID.Ptr()
	c.Paid = paid
	s.data.attendance[attID.String()] = c
	return nil
}

func (s *Store) MarkAttendancePaid(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID) (bool, error) {
	defer s.write(ctx)()

	a, ok := s.data.attendance[attID.String()]
	if !ok {
		return false, dues.ErrAttendanceNotFound
	}
	if a.Paid {
		return false, nil
	}
	c := copyAttendance(a)
	c.Paid = true
	c.ReceiptID = receiptID.Ptr()
	s.data.attendance[attID.String()] = c
	return true, nil
}

// paginate applies offset and limit to an ordered slice.
func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
