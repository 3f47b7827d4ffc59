package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
	NewRaw(query string, args ...any) *pgdriver.RawQuery
}

type txKey struct{}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("dues/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", dues.ErrMigrationFailed, err)
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

// WithTx implements store.Store. The transaction travels in the context;
// a nested call joins it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return fn(ctx)
	}

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", dues.ErrTransactionFailed, err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error wins
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", dues.ErrTransactionFailed, err)
	}
	return nil
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*pgdriver.PgTx); ok {
		return tx
	}
	return s.pg
}

// ==================== Player Store ====================

func (s *Store) CreatePlayer(ctx context.Context, p *player.Player) error {
	res, err := s.q(ctx).NewInsert(toPlayerModel(p)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) GetPlayer(ctx context.Context, playerID id.PlayerID) (*player.Player, error) {
	m := new(playerModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", playerID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrPlayerNotFound
		}
		return nil, err
	}
	return fromPlayerModel(m)
}

func (s *Store) GetPlayerByKey(ctx context.Context, key string) (*player.Player, error) {
	m := new(playerModel)
	err := s.q(ctx).NewSelect(m).
		Where("key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrPlayerNotFound
		}
		return nil, err
	}
	return fromPlayerModel(m)
}

func (s *Store) UpdatePlayer(ctx context.Context, p *player.Player) error {
	res, err := s.q(ctx).NewUpdate(toPlayerModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return mapWriteErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dues.ErrPlayerNotFound
	}
	return nil
}

func (s *Store) ListPlayers(ctx context.Context, opts player.ListOpts) ([]*player.Player, error) {
	var models []playerModel
	q := s.q(ctx).NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active")
	}
	if opts.MonthlyOnly {
		q = q.Where("is_monthly AND monthly_fee IS NOT NULL")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("lower(last_name) ASC, lower(first_name) ASC, key ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.q(ctx).NewInsert(toDueModel(d)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) GetDue(ctx context.Context, dueID id.DueID) (*due.Due, error) {
	m := new(dueModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", dueID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrDueNotFound
		}
		return nil, err
	}
	return fromDueModel(m)
}

func (s *Store) GetDueFor(ctx context.Context, playerID id.PlayerID, year, month int) (*due.Due, error) {
	m := new(dueModel)
	err := s.q(ctx).NewSelect(m).
		Where("player_id = $1", playerID.String()).
		Where("year = $2", year).
		Where("month = $3", month).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrDueNotFound
		}
		return nil, err
	}
	return fromDueModel(m)
}

func (s *Store) ListDues(ctx context.Context, opts due.ListOpts) ([]*due.Due, error) {
	var models []dueModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.PlayerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("player_id = $%d", argIdx), opts.PlayerID.String())
	}
	if opts.Year != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("year = $%d", argIdx), opts.Year)
	}
	if opts.Month != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("month = $%d", argIdx), opts.Month)
	}
	if opts.UnpaidOnly {
		q = q.Where("NOT paid")
	}
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("make_date(year, month, 1) >= $%d", argIdx), types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("make_date(year, month, 1) <= $%d", argIdx), types.DateOf(opts.To))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("year ASC, month ASC, player_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.q(ctx).NewUpdate((*dueModel)(nil)).
		Set("paid = $1", true).
		Set("paid_on = $2", types.DateOf(paidOn)).
		Set("updated_at = $3", now()).
		Where("id = $4", dueID.String()).
		Where("NOT paid").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return s.flipped(ctx, res, (*dueModel)(nil), dueID.String(), dues.ErrDueNotFound)
}

// ==================== Attendance Store ====================

func (s *Store) CreateAttendance(ctx context.Context, a *attendance.Attendance) error {
	res, err := s.q(ctx).NewInsert(toAttendanceModel(a)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) GetAttendance(ctx context.Context, attID id.AttendanceID) (*attendance.Attendance, error) {
	m := new(attendanceModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", attID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrAttendanceNotFound
		}
		return nil, err
	}
	return fromAttendanceModel(m)
}

func (s *Store) ListAttendance(ctx context.Context, opts attendance.ListOpts) ([]*attendance.Attendance, error) {
	var models []attendanceModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.PlayerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("player_id = $%d", argIdx), opts.PlayerID.String())
	}
	if opts.UnpaidOnly {
		q = q.Where("NOT paid")
	}
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("session_date >= $%d", argIdx), types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("session_date <= $%d", argIdx), types.DateOf(opts.To))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("session_date ASC, player_id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	q := s.q(ctx).NewSelect((*attendanceModel)(nil)).
		Where("player_id = $1", playerID.String())

	argIdx := 1
	if !from.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("session_date >= $%d", argIdx), types.DateOf(from))
	}
	if !to.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("session_date <= $%d", argIdx), types.DateOf(to))
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) SetAttendanceReceipt(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID, paid bool) error {
	res, err := s.q(ctx).NewUpdate((*attendanceModel)(nil)).
		Set("receipt_id = $1", receiptID.String()).
		Set("paid = $2", paid).
		Where("id = $3", attID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dues.ErrAttendanceNotFound
	}
	return nil
}

func (s *Store) MarkAttendancePaid(ctx context.Context, attID id.AttendanceID, receiptID id.ReceiptID) (bool, error) {
	res, err := s.q(ctx).NewUpdate((*attendanceModel)(nil)).
		Set("paid = $1", true).
		Set("receipt_id = $2", receiptID.String()).
		Where("id = $3", attID.String()).
		Where("NOT paid").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return s.flipped(ctx, res, (*attendanceModel)(nil), attID.String(), dues.ErrAttendanceNotFound)
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, e *event.Event) error {
	res, err := s.q(ctx).NewInsert(toEventModel(e)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) GetEvent(ctx context.Context, eventID id.EventID) (*event.Event, error) {
	m := new(eventModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", eventID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrEventNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("starts_on >= $%d", argIdx), types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("starts_on <= $%d", argIdx), types.DateOf(opts.To))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("starts_on DESC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.q(ctx).NewInsert(toCategoryModel(c)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) ListCategories(ctx context.Context, eventID id.EventID) ([]*event.Category, error) {
	var models []categoryModel
	err := s.q(ctx).NewSelect(&models).
		Where("event_id = $1", eventID.String()).
		OrderExpr("name ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	m, err := toRegistrationModel(r)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertResult(res, err)
}

func (s *Store) GetRegistration(ctx context.Context, regID id.RegistrationID) (*event.Registration, error) {
	m := new(registrationModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", regID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrRegistrationNotFound
		}
		return nil, err
	}
	return fromRegistrationModel(m)
}

func (s *Store) ListRegistrations(ctx context.Context, opts event.RegistrationListOpts) ([]*event.Registration, error) {
	var models []registrationModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.EventID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id = $%d", argIdx), opts.EventID.String())
	}
	if !opts.PlayerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("player_id = $%d", argIdx), opts.PlayerID.String())
	}
	if opts.UnpaidOnly {
		q = q.Where("NOT paid")
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.q(ctx).NewUpdate((*registrationModel)(nil)).
		Set("paid = $1", true).
		Set("paid_on = $2", types.DateOf(paidOn)).
		Set("updated_at = $3", now()).
		Where("id = $4", regID.String()).
		Where("NOT paid").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return s.flipped(ctx, res, (*registrationModel)(nil), regID.String(), dues.ErrRegistrationNotFound)
}

// ==================== Receipt Store ====================

// CreateReceipt inserts the receipt, letting the sequence assign Seq, then
// claims one settlement row per settling link. A claim that collides
// removes what this call wrote and reports ErrAlreadyExists.
func (s *Store) CreateReceipt(ctx context.Context, r *receipt.Receipt) error {
	links, err := linksJSON(r.Links)
	if err != nil {
		return err
	}

	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)

		var seq int64
		err := q.NewRaw(`
			INSERT INTO dues_receipts (
				id, number, kind, source, player_id, amount, currency, method, note,
				year, month, sessions_paid, sessions_taken, links, paid_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT DO NOTHING
			RETURNING seq
		`,
			r.ID.String(), r.Number, string(r.Kind), string(r.Source), r.PlayerID.String(),
			r.Amount, r.Currency, r.Method, r.Note,
			r.Year, r.Month, r.SessionsPaid, r.SessionsTaken, string(links), r.PaidAt, r.CreatedAt,
		).Scan(ctx, &seq)
		if err != nil {
			if isNoRows(err) {
				return dues.ErrAlreadyExists
			}
			return mapWriteErr(err)
		}

		for _, l := range r.SettlingTargets() {
			res, err := q.NewRaw(`
				INSERT INTO dues_settlements (target_type, target_id, receipt_id)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, string(l.TargetType), l.TargetID, r.ID.String()).Exec(ctx)
			if err != nil {
				return mapWriteErr(err)
			}
			if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // pgx always reports rows
				if err := s.discardReceipt(ctx, r.ID); err != nil {
					return err
				}
				return dues.ErrAlreadyExists
			}
		}

		r.Seq = seq
		return nil
	})
}

// discardReceipt removes a receipt whose settlement claims collided.
func (s *Store) discardReceipt(ctx context.Context, receiptID id.ReceiptID) error {
	q := s.q(ctx)
	if _, err := q.NewRaw(`DELETE FROM dues_settlements WHERE receipt_id = $1`, receiptID.String()).Exec(ctx); err != nil {
		return err
	}
	_, err := q.NewRaw(`DELETE FROM dues_receipts WHERE id = $1`, receiptID.String()).Exec(ctx)
	return err
}

func (s *Store) GetReceipt(ctx context.Context, receiptID id.ReceiptID) (*receipt.Receipt, error) {
	m := new(receiptModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = $1", receiptID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrReceiptNotFound
		}
		return nil, err
	}
	return fromReceiptModel(m)
}

func (s *Store) GetReceiptByNumber(ctx context.Context, number string) (*receipt.Receipt, error) {
	if number == "" {
		return nil, dues.ErrReceiptNotFound
	}
	m := new(receiptModel)
	err := s.q(ctx).NewSelect(m).
		Where("number = $1", number).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrReceiptNotFound
		}
		return nil, err
	}
	return fromReceiptModel(m)
}

func (s *Store) ListReceipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	var models []receiptModel
	q := s.q(ctx).NewSelect(&models)

	argIdx := 0
	if !opts.PlayerID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("player_id = $%d", argIdx), opts.PlayerID.String())
	}
	if len(opts.Kinds) > 0 {
		kinds := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		argIdx++
		q = q.Where(fmt.Sprintf("kind = ANY($%d)", argIdx), kinds)
	}
	if len(opts.Sources) > 0 {
		sources := make([]string, len(opts.Sources))
		for i, src := range opts.Sources {
			sources[i] = string(src)
		}
		argIdx++
		q = q.Where(fmt.Sprintf("source = ANY($%d)", argIdx), sources)
	}
	if opts.MissingNumber {
		q = q.Where("number = ''")
	}
	if !opts.From.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("paid_at >= $%d", argIdx), types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("paid_at < $%d", argIdx), types.DateOf(opts.To).AddDate(0, 0, 1))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("paid_at ASC, seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.q(ctx).NewRaw(`
		UPDATE dues_receipts SET number = $1
		WHERE id = $2 AND number = ''
		AND NOT EXISTS (SELECT 1 FROM dues_receipts WHERE number = $1)
	`, number, receiptID.String()).Exec(ctx)
	if err != nil {
		return mapWriteErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	existing, err := s.GetReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	if existing.Number != "" {
		return nil
	}
	return dues.ErrAlreadyExists
}

func (s *Store) ConsumeSession(ctx context.Context, receiptID id.ReceiptID) (bool, error) {
	res, err := s.q(ctx).NewRaw(`
		UPDATE dues_receipts SET sessions_taken = sessions_taken + 1
		WHERE id = $1 AND sessions_taken < sessions_paid
	`, receiptID.String()).Exec(ctx)
	if err != nil {
		return false, err
	}
	return s.flipped(ctx, res, (*receiptModel)(nil), receiptID.String(), dues.ErrReceiptNotFound)
}

func (s *Store) LogSession(ctx context.Context, receiptID id.ReceiptID) error {
	res, err := s.q(ctx).NewRaw(`
		UPDATE dues_receipts SET sessions_taken = sessions_taken + 1 WHERE id = $1
	`, receiptID.String()).Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dues.ErrReceiptNotFound
	}
	return nil
}

func (s *Store) BackfillSessionsPaid(ctx context.Context, receiptID id.ReceiptID, sessions int) (bool, error) {
	res, err := s.q(ctx).NewRaw(`
		UPDATE dues_receipts SET sessions_paid = $1
		WHERE id = $2 AND sessions_paid = 0
	`, sessions, receiptID.String()).Exec(ctx)
	if err != nil {
		return false, err
	}
	return s.flipped(ctx, res, (*receiptModel)(nil), receiptID.String(), dues.ErrReceiptNotFound)
}

func (s *Store) SettlingReceipt(ctx context.Context, target receipt.TargetType, targetID string) (*receipt.Receipt, error) {
	m := new(receiptModel)
	err := s.q(ctx).NewSelect(m).
		Where("id = (SELECT receipt_id FROM dues_settlements WHERE target_type = $1 AND target_id = $2)",
			string(target), targetID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dues.ErrReceiptNotFound
		}
		return nil, err
	}
	return fromReceiptModel(m)
}

// ==================== Helpers ====================

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// insertResult maps an ON CONFLICT DO NOTHING insert that wrote nothing to
// ErrAlreadyExists.
func insertResult(res rowsAffecter, err error) error {
	if err != nil {
		return mapWriteErr(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dues.ErrAlreadyExists
	}
	return nil
}

// flipped interprets a conditional update: a row changed means true, no
// row changed means false when the record exists and notFound otherwise.
func (s *Store) flipped(ctx context.Context, res rowsAffecter, model any, recordID string, notFound error) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	n, err := s.q(ctx).NewSelect(model).Where("id = $1", recordID).Count(ctx)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, notFound
	}
	return false, nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return dues.ErrAlreadyExists
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
