package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colPlayers       = "dues_players"
	colDues          = "dues_dues"
	colAttendance    = "dues_attendance"
	colEvents        = "dues_events"
	colCategories    = "dues_categories"
	colRegistrations = "dues_registrations"
	colReceipts      = "dues_receipts"
	colSettlements   = "dues_settlements"
	colCounters      = "dues_counters"
)

// receiptSeqCounter is the counter document that hands out receipt
// sequence values.
const receiptSeqCounter = "receipt_seq"

// compile-time interface check
var _ duesstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Transactions need a replica set or sharded cluster. Create calls are
// upserts guarded by $setOnInsert so that a duplicate never raises a
// server error inside an open transaction.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all dues collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", dues.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx implements store.Store with a client session. Queries join the
// transaction through the session carried by ctx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.mdb.Client().StartSession()
	if err != nil {
		return fmt.Errorf("%w: %w", dues.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	var fnErr error
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		fnErr = fn(ctx)
		return nil, fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", dues.ErrTransactionFailed, err)
	}
	return nil
}

// ==================== Player Store ====================

func (s *Store) CreatePlayer(ctx context.Context, p *player.Player) error {
	m := toPlayerModel(p)
	return s.insertUnique(ctx, m, bson.M{"key": m.Key}, "create player")
}

func (s *Store) GetPlayer(ctx context.Context, playerID id.PlayerID) (*player.Player, error) {
	return s.findPlayer(ctx, bson.M{"_id": playerID.String()})
}

func (s *Store) GetPlayerByKey(ctx context.Context, key string) (*player.Player, error) {
	return s.findPlayer(ctx, bson.M{"key": key})
}

func (s *Store) findPlayer(ctx context.Context, filter bson.M) (*player.Player, error) {
	var m playerModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get player: %w", err)
	}
	return fromPlayerModel(&m)
}

func (s *Store) UpdatePlayer(ctx context.Context, p *player.Player) error {
	m := toPlayerModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, "update player")
	}
	if res.MatchedCount() == 0 {
		return dues.ErrPlayerNotFound
	}
	return nil
}

func (s *Store) ListPlayers(ctx context.Context, opts player.ListOpts) ([]*player.Player, error) {
	var models []playerModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}
	if opts.MonthlyOnly {
		filter["is_monthly"] = true
		filter["monthly_fee"] = bson.M{"$ne": nil}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "sort_last", Value: 1},
			{Key: "sort_first", Value: 1},
			{Key: "key", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list players: %w", err)
	}

	result := make([]*player.Player, len(models))
	for i := range models {
		p, err := fromPlayerModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Due Store ====================

func (s *Store) CreateDue(ctx context.Context, d *due.Due) error {
	m := toDueModel(d)
	return s.insertUnique(ctx, m, bson.M{
		"player_id": m.PlayerID,
		"year":      m.Year,
		"month":     m.Month,
	}, "create due")
}

func (s *Store) GetDue(ctx context.Context, dueID id.DueID) (*due.Due, error) {
	return s.findDue(ctx, bson.M{"_id": dueID.String()})
}

func (s *Store) GetDueFor(ctx context.Context, playerID id.PlayerID, year, month int) (*due.Due, error) {
	return s.findDue(ctx, bson.M{"player_id": playerID.String(), "year": year, "month": month})
}

func (s *Store) findDue(ctx context.Context, filter bson.M) (*due.Due, error) {
	var m dueModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrDueNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get due: %w", err)
	}
	return fromDueModel(&m)
}

func (s *Store) ListDues(ctx context.Context, opts due.ListOpts) ([]*due.Due, error) {
	var models []dueModel

	filter := bson.M{}
	if !opts.PlayerID.IsNil() {
		filter["player_id"] = opts.PlayerID.String()
	}
	if opts.Year != 0 {
		filter["year"] = opts.Year
	}
	if opts.Month != 0 {
		filter["month"] = opts.Month
	}
	if opts.UnpaidOnly {
		filter["paid"] = false
	}
	if period := dateRange(opts.From, opts.To); period != nil {
		filter["period"] = period
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "year", Value: 1},
			{Key: "month", Value: 1},
			{Key: "player_id", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list dues: %w", err)
	}

	result := make([]*due.Due, len(models))
	for i := range models {
		d, err := fromDueModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) MarkDuePaid(ctx context.Context, dueID id.DueID, paidOn time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*dueModel)(nil)).
		Filter(bson.M{"_id": dueID.String(), "paid": false}).
		Set("paid", true).
		Set("paid_on", types.DateOf(paidOn)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: mark due paid: %w", err)
	}
	return s.flipped(ctx, res, (*dueModel)(nil), dueID.String(), dues.ErrDueNotFound)
}

// ==================== Attendance Store ====================

func (s *Store) CreateAttendance(ctx context.Context, a *attendance.Attendance) error {
	m := toAttendanceModel(a)
	return s.insertUnique(ctx, m, bson.M{
		"player_id":    m.PlayerID,
		"session_date": m.Date,
	}, "create attendance")
}

func (s *Store) GetAttendance(ctx context.Context, attID id.AttendanceID) (*attendance.Attendance, error) {
	var m attendanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": attID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get attendance: %w", err)
	}
	return fromAttendanceModel(&m)
}

func (s *Store) ListAttendance(ctx context.Context, opts attendance.ListOpts) ([]*attendance.Attendance, error) {
	var models []attendanceModel

	filter := attendanceFilter(opts.PlayerID, opts.From, opts.To)
	if opts.UnpaidOnly {
		filter["paid"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "session_date", Value: 1},
			{Key: "player_id", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list attendance: %w", err)
	}

	result := make([]*attendance.Attendance, len(models))
	for i := range models {
		a, err := fromAttendanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) CountAttendance(ctx context.Context, playerID id.PlayerID, from, to time.Time) (int, error) {
	n, err := s.mdb.NewFind((*attendanceModel)(nil)).
		Filter(attendanceFilter(playerID, from, to)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("dues/mongo: count attendance: %w", err)
	}
	return int(n), nil
}

func attendanceFilter(playerID id.PlayerID, from, to time.Time) bson.M {
	filter := bson.M{}
	if !playerID.IsNil() {
		filter["player_id"] = playerID.String()
	}
	if dates := dateRange(from, to); dates != nil {
		filter["session_date"] = dates
	}
	return filter
}

func (s *Store) SetAttendanceReceipt(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID, paid bool) error {
	res, err := s.mdb.NewUpdate((*attendanceModel)(nil)).
		Filter(bson.M{"_id": attID.String()}).
		Set("receipt_id", receiptID.String()).
		Set("paid", paid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: set attendance receipt: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrAttendanceNotFound
	}
	return nil
}

func (s *Store) MarkAttendancePaid(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID) (bool, error) {
	res, err := s.mdb.NewUpdate((*attendanceModel)(nil)).
		Filter(bson.M{"_id": attID.String(), "paid": false}).
		Set("paid", true).
		Set("receipt_id", receiptID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: mark attendance paid: %w", err)
	}
	return s.flipped(ctx, res, (*attendanceModel)(nil), attID.String(), dues.ErrAttendanceNotFound)
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, e *event.Event) error {
	m := toEventModel(e)
	return s.insertUnique(ctx, m, bson.M{"_id": m.ID}, "create event")
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	var m eventModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": eventID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrEventNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get event: %w", err)
	}
	return fromEventModel(&m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if dates := dateRange(opts.From, opts.To); dates != nil {
		filter["starts_on"] = dates
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "starts_on", Value: -1},
			{Key: "_id", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *event.Category) error {
	if _, err := s.GetEvent(ctx, c.EventID); err != nil {
		return err
	}
	m := toCategoryModel(c)
	return s.insertUnique(ctx, m, bson.M{"_id": m.ID}, "create category")
}

func (s *Store) ListCategories(ctx context.Context, eventID id.EventID) ([]*event.Category, error) {
	var models []categoryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"event_id": eventID.String()}).
		Sort(bson.D{
			{Key: "name", Value: 1},
			{Key: "_id", Value: 1},
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list categories: %w", err)
	}

	result := make([]*event.Category, len(models))
	for i := range models {
		c, err := fromCategoryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) CreateRegistration(ctx context.Context, r *event.Registration) error {
	m := toRegistrationModel(r)
	return s.insertUnique(ctx, m, bson.M{
		"event_id":  m.EventID,
		"player_id": m.PlayerID,
	}, "create registration")
}

func (s *Store) GetRegistration(ctx context.Context, regID id.RegistrationID) (*event.Registration, error) {
	var m registrationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": regID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get registration: %w", err)
	}
	return fromRegistrationModel(&m)
}

func (s *Store) ListRegistrations(ctx context.Context, opts event.RegistrationListOpts) ([]*event.Registration, error) {
	var models []registrationModel

	filter := bson.M{}
	if !opts.EventID.IsNil() {
		filter["event_id"] = opts.EventID.String()
	}
	if !opts.PlayerID.IsNil() {
		filter["player_id"] = opts.PlayerID.String()
	}
	if opts.UnpaidOnly {
		filter["paid"] = false
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("dues/mongo: list registrations: %w", err)
	}

	result := make([]*event.Registration, len(models))
	for i := range models {
		r, err := fromRegistrationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) MarkRegistrationPaid(ctx context.Context, regID id.RegistrationID, paidOn time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*registrationModel)(nil)).
		Filter(bson.M{"_id": regID.String(), "paid": false}).
		Set("paid", true).
		Set("paid_on", types.DateOf(paidOn)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: mark registration paid: %w", err)
	}
	return s.flipped(ctx, res, (*registrationModel)(nil), regID.String(), dues.ErrRegistrationNotFound)
}

// ==================== Receipt Store ====================

// CreateReceipt draws the next sequence value from the counter document,
// stores the receipt and claims one settlement document per settling link.
// A colliding claim removes what this call wrote and reports
// ErrAlreadyExists.
func (s *Store) CreateReceipt(ctx context.Context, r *receipt.Receipt) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		seq, err := s.nextSeq(ctx, receiptSeqCounter)
		if err != nil {
			return err
		}

		m := toReceiptModel(r)
		m.Seq = seq
		if err := s.insertUnique(ctx, m, bson.M{"_id": m.ID}, "create receipt"); err != nil {
			return err
		}

		for _, l := range r.SettlingTargets() {
			claim := &settlementModel{
				ID:         settlementKey(l.TargetType, l.TargetID),
				TargetType: string(l.TargetType),
				TargetID:   l.TargetID,
				ReceiptID:  m.ID,
			}
			err := s.insertUnique(ctx, claim, bson.M{"_id": claim.ID}, "claim settlement")
			if errors.Is(err, dues.ErrAlreadyExists) {
				if err := s.discardReceipt(ctx, m.ID); err != nil {
					return err
				}
				return dues.ErrAlreadyExists
			}
			if err != nil {
				return err
			}
		}

		r.Seq = seq
		return nil
	})
}

func (s *Store) nextSeq(ctx context.Context, counter string) (int64, error) {
	var c counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": counter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("dues/mongo: next %s: %w", counter, err)
	}
	return c.Value, nil
}

func (s *Store) discardReceipt(ctx context.Context, receiptID string) error {
	if _, err := s.mdb.NewDelete((*settlementModel)(nil)).
		Filter(bson.M{"receipt_id": receiptID}).
		Many().
		Exec(ctx); err != nil {
		return fmt.Errorf("dues/mongo: discard settlements: %w", err)
	}
	if _, err := s.mdb.NewDelete((*receiptModel)(nil)).
		Filter(bson.M{"_id": receiptID}).
		Exec(ctx); err != nil {
		return fmt.Errorf("dues/mongo: discard receipt: %w", err)
	}
	return nil
}

func (s *Store) GetReceipt(ctx context.Context, receiptID id.ReceiptID) (*receipt.Receipt, error) {
	return s.findReceipt(ctx, bson.M{"_id": receiptID.String()})
}

func (s *Store) GetReceiptByNumber(ctx context.Context, number string) (*receipt.Receipt, error) {
	if number == "" {
		return nil, dues.ErrReceiptNotFound
	}
	return s.findReceipt(ctx, bson.M{"number": number})
}

func (s *Store) findReceipt(ctx context.Context, filter bson.M) (*receipt.Receipt, error) {
	var m receiptModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("dues/mongo: get receipt: %w", err)
	}
	return fromReceiptModel(&m)
}

func (s *Store) ListReceipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	var models []receiptModel

	filter := bson.M{}
	if !opts.PlayerID.IsNil() {
		filter["player_id"] = opts.PlayerID.String()
	}
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		filter["kind"] = bson.M{"$in": kinds}
	}
	if len(opts.Sources) > 0 {
		sources := make([]string, len(opts.Sources))
		for i, src := range opts.Sources {
			sources[i] = string(src)
		}
		filter["source"] = bson.M{"$in": sources}
	}
	if opts.MissingNumber {
		filter["number"] = ""
	}
	paidAt := bson.M{}
	if !opts.From.IsZero() {
		paidAt["$gte"] = types.DateOf(opts.From)
	}
	if !opts.To.IsZero() {
		paidAt["$lt"] = types.DateOf(opts.To).AddDate(0, 0, 1)
	}
	if len(paidAt) > 0 {
		filter["paid_at"] = paidAt
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{
			{Key: "paid_at", Value: 1},
			{Key: "seq", Value: 1},
		})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("dues/mongo: list receipts: %w", err)
	}

	result := make([]*receipt.Receipt, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) AssignNumber(ctx context.Context, receiptID id.ReceiptID, number string) error {
	existing, err := s.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	if existing.Number != "" {
		return nil
	}

	taken, err := s.mdb.NewFind((*receiptModel)(nil)).
		Filter(bson.M{"number": number}).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: assign number: %w", err)
	}
	if taken > 0 {
		return dues.ErrAlreadyExists
	}

	_, err = s.mdb.NewUpdate((*receiptModel)(nil)).
		Filter(bson.M{"_id": receiptID.String(), "number": ""}).
		Set("number", number).
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, "assign number")
	}
	return nil
}

func (s *Store) ConsumeSession(ctx context.Context, receiptID id.ReceiptID) (bool, error) {
	res, err := s.mdb.NewUpdate((*receiptModel)(nil)).
		Filter(bson.M{
			"_id":   receiptID.String(),
			"$expr": bson.M{"$lt": bson.A{"$sessions_taken", "$sessions_paid"}},
		}).
		SetUpdate(bson.M{"$inc": bson.M{"sessions_taken": 1}}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: consume session: %w", err)
	}
	return s.flipped(ctx, res, (*receiptModel)(nil), receiptID.String(), dues.ErrReceiptNotFound)
}

func (s *Store) LogSession(ctx context.Context, receiptID id.ReceiptID) error {
	res, err := s.mdb.NewUpdate((*receiptModel)(nil)).
		Filter(bson.M{"_id": receiptID.String()}).
		SetUpdate(bson.M{"$inc": bson.M{"sessions_taken": 1}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("dues/mongo: log session: %w", err)
	}
	if res.MatchedCount() == 0 {
		return dues.ErrReceiptNotFound
	}
	return nil
}

func (s *Store) BackfillSessionsPaid(ctx context.Context, receiptID id.ReceiptID, sessions int) (bool, error) {
	res, err := s.mdb.NewUpdate((*receiptModel)(nil)).
		Filter(bson.M{"_id": receiptID.String(), "sessions_paid": 0}).
		Set("sessions_paid", sessions).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: backfill sessions: %w", err)
	}
	return s.flipped(ctx, res, (*receiptModel)(nil), receiptID.String(), dues.ErrReceiptNotFound)
}

func (s *Store) SettlingReceipt(ctx context.Context, target receipt.TargetType, targetID string) (*receipt.Receipt, error) {
	var claim settlementModel
	err := s.mdb.NewFind(&claim).
		Filter(bson.M{"_id": settlementKey(target, targetID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, dues.ErrReceiptNotFound
		}
		return nil, fmt.Errorf("dues/mongo: settling receipt: %w", err)
	}
	return s.findReceipt(ctx, bson.M{"_id": claim.ReceiptID})
}

// ==================== Helpers ====================

// insertUnique inserts model unless a document matching key exists. The
// upsert only writes on insert, so an existing match reports
// ErrAlreadyExists without a duplicate-key error aborting the session.
func (s *Store) insertUnique(ctx context.Context, model any, key bson.M, op string) error {
	res, err := s.mdb.NewUpdate(model).
		Filter(key).
		SetUpdate(bson.M{"$setOnInsert": model}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return mapWriteErr(err, op)
	}
	if res.UpsertedCount() == 0 {
		return dues.ErrAlreadyExists
	}
	return nil
}

type updateResult interface {
	MatchedCount() int64
	ModifiedCount() int64
}

// flipped interprets a conditional update: a modified document means
// true, no match means false when the record exists and notFound
// otherwise.
func (s *Store) flipped(ctx context.Context, res updateResult, model any, recordID string, notFound error) (bool, error) {
	if res.ModifiedCount() > 0 {
		return true, nil
	}
	n, err := s.mdb.NewFind(model).
		Filter(bson.M{"_id": recordID}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("dues/mongo: lookup %s: %w", recordID, err)
	}
	if n == 0 {
		return false, notFound
	}
	return false, nil
}

// dateRange builds an inclusive day filter; nil when both bounds are zero.
func dateRange(from, to time.Time) bson.M {
	r := bson.M{}
	if !from.IsZero() {
		r["$gte"] = types.DateOf(from)
	}
	if !to.IsZero() {
		r["$lte"] = types.DateOf(to)
	}
	if len(r) == 0 {
		return nil
	}
	return r
}

func mapWriteErr(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return dues.ErrAlreadyExists
	}
	return fmt.Errorf("dues/mongo: %s: %w", op, err)
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all dues collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlayers: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "sort_last", Value: 1}, {Key: "sort_first", Value: 1}, {Key: "key", Value: 1}}},
		},
		colDues: {
			{
				Keys:    bson.D{{Key: "player_id", Value: 1}, {Key: "year", Value: 1}, {Key: "month", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "period", Value: 1}}},
		},
		colAttendance: {
			{
				Keys:    bson.D{{Key: "player_id", Value: 1}, {Key: "session_date", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "session_date", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "starts_on", Value: -1}}},
		},
		colCategories: {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colRegistrations: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "player_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "player_id", Value: 1}}},
		},
		colReceipts: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "number", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"number": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "player_id", Value: 1}, {Key: "paid_at", Value: 1}}},
			{Keys: bson.D{{Key: "paid_at", Value: 1}, {Key: "seq", Value: 1}}},
		},
		colSettlements: {
			{Keys: bson.D{{Key: "receipt_id", Value: 1}}},
		},
	}
}
