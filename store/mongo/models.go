package mongo

import (
	"strings"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/types"
)

// ==================== Player models ====================

type playerModel struct {
	grove.BaseModel `grove:"table:dues_players" bson:"-"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	Key          string            `grove:"key"           bson:"key"`
	FirstName    string            `grove:"first_name"    bson:"first_name"`
	LastName     string            `grove:"last_name"     bson:"last_name"`
	SortFirst    string            `grove:"sort_first"    bson:"sort_first"`
	SortLast     string            `grove:"sort_last"     bson:"sort_last"`
	Belt         string            `grove:"belt"          bson:"belt"`
	Email        string            `grove:"email"         bson:"email"`
	Phone        string            `grove:"phone"         bson:"phone"`
	MonthlyFee   *int64            `grove:"monthly_fee"   bson:"monthly_fee"`
	IsMonthly    bool              `grove:"is_monthly"    bson:"is_monthly"`
	Active       bool              `grove:"active"        bson:"active"`
	AnonymizedAt *time.Time        `grove:"anonymized_at" bson:"anonymized_at,omitempty"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toPlayerModel(p *player.Player) *playerModel {
	return &playerModel{
		ID:           p.ID.String(),
		Key:          p.Key,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		SortFirst:    strings.ToLower(p.FirstName),
		SortLast:     strings.ToLower(p.LastName),
		Belt:         p.Belt,
		Email:        p.Email,
		Phone:        p.Phone,
		MonthlyFee:   p.MonthlyFee,
		IsMonthly:    p.IsMonthly,
		Active:       p.Active,
		AnonymizedAt: utcPtr(p.AnonymizedAt),
		Metadata:     p.Metadata,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func fromPlayerModel(m *playerModel) (*player.Player, error) {
	playerID, err := id.ParsePlayerID(m.ID)
	if err != nil {
		return nil, err
	}
	metadata := m.Metadata
	if len(metadata) == 0 {
		metadata = nil
	}
	return &player.Player{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           playerID,
		Key:          m.Key,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Belt:         m.Belt,
		Email:        m.Email,
		Phone:        m.Phone,
		MonthlyFee:   m.MonthlyFee,
		IsMonthly:    m.IsMonthly,
		Active:       m.Active,
		AnonymizedAt: utcPtr(m.AnonymizedAt),
		Metadata:     metadata,
	}, nil
}

// ==================== Due models ====================

// dueModel.Period holds the first day of the billing month so range
// filters can compare dates directly.
type dueModel struct {
	grove.BaseModel `grove:"table:dues_dues" bson:"-"`

	ID        string     `grove:"id,pk"      bson:"_id"`
	PlayerID  string     `grove:"player_id"  bson:"player_id"`
	Year      int        `grove:"year"       bson:"year"`
	Month     int        `grove:"month"      bson:"month"`
	Period    time.Time  `grove:"period"     bson:"period"`
	Amount    int64      `grove:"amount"     bson:"amount"`
	Currency  string     `grove:"currency"   bson:"currency"`
	Paid      bool       `grove:"paid"       bson:"paid"`
	PaidOn    *time.Time `grove:"paid_on"    bson:"paid_on,omitempty"`
	CreatedAt time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at" bson:"updated_at"`
}

func toDueModel(d *due.Due) *dueModel {
	return &dueModel{
		ID:        d.ID.String(),
		PlayerID:  d.PlayerID.String(),
		Year:      d.Year,
		Month:     d.Month,
		Period:    time.Date(d.Year, time.Month(d.Month), 1, 0, 0, 0, 0, time.UTC),
		Amount:    d.Amount,
		Currency:  d.Currency,
		Paid:      d.Paid,
		PaidOn:    datePtr(d.PaidOn),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func fromDueModel(m *dueModel) (*due.Due, error) {
	dueID, err := id.ParseDueID(m.ID)
	if err != nil {
		return nil, err
	}
	playerID, err := id.ParsePlayerID(m.PlayerID)
	if err != nil {
		return nil, err
	}
	return &due.Due{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:       dueID,
		PlayerID: playerID,
		Year:     m.Year,
		Month:    m.Month,
		Amount:   m.Amount,
		Currency: m.Currency,
		Paid:     m.Paid,
		PaidOn:   datePtr(m.PaidOn),
	}, nil
}

// ==================== Attendance models ====================

type attendanceModel struct {
	grove.BaseModel `grove:"table:dues_attendance" bson:"-"`

	ID        string    `grove:"id,pk"        bson:"_id"`
	PlayerID  string    `grove:"player_id"    bson:"player_id"`
	Date      time.Time `grove:"session_date" bson:"session_date"`
	Paid      bool      `grove:"paid"         bson:"paid"`
	ReceiptID string    `grove:"receipt_id"   bson:"receipt_id,omitempty"`
	Source    string    `grove:"source"       bson:"source"`
	CreatedAt time.Time `grove:"created_at"   bson:"created_at"`
}

func toAttendanceModel(a *attendance.Attendance) *attendanceModel {
	m := &attendanceModel{
		ID:        a.ID.String(),
		PlayerID:  a.PlayerID.String(),
		Date:      types.DateOf(a.Date),
		Paid:      a.Paid,
		Source:    string(a.Source),
		CreatedAt: a.CreatedAt.UTC(),
	}
	if a.ReceiptID != nil {
		m.ReceiptID = a.ReceiptID.String()
	}
	return m
}

func fromAttendanceModel(m *attendanceModel) (*attendance.Attendance, error) {
	attID, err := id.ParseAttendanceID(m.ID)
	if err != nil {
		return nil, err
	}
	playerID, err := id.ParsePlayerID(m.PlayerID)
	if err != nil {
		return nil, err
	}
	a := &attendance.Attendance{
		ID:        attID,
		PlayerID:  playerID,
		Date:      types.DateOf(m.Date),
		Paid:      m.Paid,
		Source:    attendance.Source(m.Source),
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.ReceiptID != "" {
		rid, err := id.ParseReceiptID(m.ReceiptID)
		if err != nil {
			return nil, err
		}
		a.ReceiptID = &rid
	}
	return a, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:dues_events" bson:"-"`

	ID        string     `grove:"id,pk"      bson:"_id"`
	Name      string     `grove:"name"       bson:"name"`
	Location  string     `grove:"location"   bson:"location"`
	StartsOn  time.Time  `grove:"starts_on"  bson:"starts_on"`
	EndsOn    *time.Time `grove:"ends_on"    bson:"ends_on,omitempty"`
	Currency  string     `grove:"currency"   bson:"currency"`
	CreatedAt time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at" bson:"updated_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Location:  e.Location,
		StartsOn:  types.DateOf(e.StartsOn),
		EndsOn:    datePtr(e.EndsOn),
		Currency:  e.Currency,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:       eventID,
		Name:     m.Name,
		Location: m.Location,
		StartsOn: types.DateOf(m.StartsOn),
		EndsOn:   datePtr(m.EndsOn),
		Currency: m.Currency,
	}, nil
}

type categoryModel struct {
	grove.BaseModel `grove:"table:dues_categories" bson:"-"`

	ID      string `grove:"id,pk"    bson:"_id"`
	EventID string `grove:"event_id" bson:"event_id"`
	Name    string `grove:"name"     bson:"name"`
	Fee     *int64 `grove:"fee"      bson:"fee"`
}

func toCategoryModel(c *event.Category) *categoryModel {
	return &categoryModel{
		ID:      c.ID.String(),
		EventID: c.EventID.String(),
		Name:    c.Name,
		Fee:     c.Fee,
	}
}

func fromCategoryModel(m *categoryModel) (*event.Category, error) {
	catID, err := id.ParseCategoryID(m.ID)
	if err != nil {
		return nil, err
	}
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	return &event.Category{
		ID:      catID,
		EventID: eventID,
		Name:    m.Name,
		Fee:     m.Fee,
	}, nil
}

type entryModel struct {
	CategoryID string `bson:"category_id"`
	Medal      string `bson:"medal"`
}

type registrationModel struct {
	grove.BaseModel `grove:"table:dues_registrations" bson:"-"`

	ID          string       `grove:"id,pk"        bson:"_id"`
	EventID     string       `grove:"event_id"     bson:"event_id"`
	PlayerID    string       `grove:"player_id"    bson:"player_id"`
	Entries     []entryModel `grove:"entries"      bson:"entries"`
	FeeOverride *int64       `grove:"fee_override" bson:"fee_override"`
	Paid        bool         `grove:"paid"         bson:"paid"`
	PaidOn      *time.Time   `grove:"paid_on"      bson:"paid_on,omitempty"`
	CreatedAt   time.Time    `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time    `grove:"updated_at"   bson:"updated_at"`
}

func toRegistrationModel(r *event.Registration) *registrationModel {
	entries := make([]entryModel, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = entryModel{CategoryID: e.CategoryID.String(), Medal: string(e.Medal)}
	}
	return &registrationModel{
		ID:          r.ID.String(),
		EventID:     r.EventID.String(),
		PlayerID:    r.PlayerID.String(),
		Entries:     entries,
		FeeOverride: r.FeeOverride,
		Paid:        r.Paid,
		PaidOn:      datePtr(r.PaidOn),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func fromRegistrationModel(m *registrationModel) (*event.Registration, error) {
	regID, err := id.ParseRegistrationID(m.ID)
	if err != nil {
		return nil, err
	}
	eventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, err
	}
	playerID, err := id.ParsePlayerID(m.PlayerID)
	if err != nil {
		return nil, err
	}
	var entries []event.Entry
	for _, e := range m.Entries {
		catID, err := id.ParseCategoryID(e.CategoryID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, event.Entry{CategoryID: catID, Medal: event.Medal(e.Medal)})
	}
	return &event.Registration{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          regID,
		EventID:     eventID,
		PlayerID:    playerID,
		Entries:     entries,
		FeeOverride: m.FeeOverride,
		Paid:        m.Paid,
		PaidOn:      datePtr(m.PaidOn),
	}, nil
}

// ==================== Receipt models ====================

type linkModel struct {
	TargetType  string `bson:"target_type"`
	TargetID    string `bson:"target_id"`
	Amount      int64  `bson:"amount"`
	Sessions    int    `bson:"sessions,omitempty"`
	Settles     bool   `bson:"settles"`
	Description string `bson:"description,omitempty"`
}

type receiptModel struct {
	grove.BaseModel `grove:"table:dues_receipts" bson:"-"`

	ID            string      `grove:"id,pk"          bson:"_id"`
	Seq           int64       `grove:"seq"            bson:"seq"`
	Number        string      `grove:"number"         bson:"number"`
	Kind          string      `grove:"kind"           bson:"kind"`
	Source        string      `grove:"source"         bson:"source"`
	PlayerID      string      `grove:"player_id"      bson:"player_id"`
	Amount        int64       `grove:"amount"         bson:"amount"`
	Currency      string      `grove:"currency"       bson:"currency"`
	Method        string      `grove:"method"         bson:"method"`
	Note          string      `grove:"note"           bson:"note"`
	Year          int         `grove:"year"           bson:"year"`
	Month         int         `grove:"month"          bson:"month"`
	SessionsPaid  int         `grove:"sessions_paid"  bson:"sessions_paid"`
	SessionsTaken int         `grove:"sessions_taken" bson:"sessions_taken"`
	Links         []linkModel `grove:"links"          bson:"links"`
	PaidAt        time.Time   `grove:"paid_at"        bson:"paid_at"`
	CreatedAt     time.Time   `grove:"created_at"     bson:"created_at"`
}

func toReceiptModel(r *receipt.Receipt) *receiptModel {
	links := make([]linkModel, len(r.Links))
	for i, l := range r.Links {
		links[i] = linkModel{
			TargetType:  string(l.TargetType),
			TargetID:    l.TargetID,
			Amount:      l.Amount,
			Sessions:    l.Sessions,
			Settles:     l.Settles,
			Description: l.Description,
		}
	}
	return &receiptModel{
		ID:            r.ID.String(),
		Seq:           r.Seq,
		Number:        r.Number,
		Kind:          string(r.Kind),
		Source:        string(r.Source),
		PlayerID:      r.PlayerID.String(),
		Amount:        r.Amount,
		Currency:      r.Currency,
		Method:        r.Method,
		Note:          r.Note,
		Year:          r.Year,
		Month:         r.Month,
		SessionsPaid:  r.SessionsPaid,
		SessionsTaken: r.SessionsTaken,
		Links:         links,
		PaidAt:        r.PaidAt.UTC(),
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func fromReceiptModel(m *receiptModel) (*receipt.Receipt, error) {
	receiptID, err := id.ParseReceiptID(m.ID)
	if err != nil {
		return nil, err
	}
	playerID, err := id.ParsePlayerID(m.PlayerID)
	if err != nil {
		return nil, err
	}
	var links []receipt.Link
	for _, l := range m.Links {
		links = append(links, receipt.Link{
			TargetType:  receipt.TargetType(l.TargetType),
			TargetID:    l.TargetID,
			Amount:      l.Amount,
			Sessions:    l.Sessions,
			Settles:     l.Settles,
			Description: l.Description,
		})
	}
	return &receipt.Receipt{
		ID:            receiptID,
		Seq:           m.Seq,
		Number:        m.Number,
		Kind:          receipt.Kind(m.Kind),
		Source:        receipt.Source(m.Source),
		PlayerID:      playerID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Method:        m.Method,
		Note:          m.Note,
		Year:          m.Year,
		Month:         m.Month,
		SessionsPaid:  m.SessionsPaid,
		SessionsTaken: m.SessionsTaken,
		Links:         links,
		PaidAt:        m.PaidAt.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
	}, nil
}

// settlementModel claims one obligation for one receipt. The _id is
// "<target_type>/<target_id>", so the primary key enforces a single
// settling receipt per target.
type settlementModel struct {
	grove.BaseModel `grove:"table:dues_settlements" bson:"-"`

	ID         string `grove:"id,pk"       bson:"_id"`
	TargetType string `grove:"target_type" bson:"target_type"`
	TargetID   string `grove:"target_id"   bson:"target_id"`
	ReceiptID  string `grove:"receipt_id"  bson:"receipt_id"`
}

func settlementKey(target receipt.TargetType, targetID string) string {
	return string(target) + "/" + targetID
}

type counterModel struct {
	grove.BaseModel `grove:"table:dues_counters" bson:"-"`

	ID    string `grove:"id,pk" bson:"_id"`
	Value int64  `grove:"value" bson:"value"`
}

// BSON datetimes carry millisecond precision in UTC; these normalize
// optional values on the way in and out.

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := types.DateOf(*t)
	return &d
}
