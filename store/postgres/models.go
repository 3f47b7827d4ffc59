package postgres

import (
	"encoding/json"
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
	grove.BaseModel `grove:"table:dues_players"`

	ID           string            `grove:"id,pk"`
	Key          string            `grove:"key"`
	FirstName    string            `grove:"first_name"`
	LastName     string            `grove:"last_name"`
	Belt         string            `grove:"belt"`
	Email        string            `grove:"email"`
	Phone        string            `grove:"phone"`
	MonthlyFee   *int64            `grove:"monthly_fee"`
	IsMonthly    bool              `grove:"is_monthly"`
	Active       bool              `grove:"active"`
	AnonymizedAt *time.Time        `grove:"anonymized_at"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt    time.Time         `grove:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"`
}

func toPlayerModel(p *player.Player) *playerModel {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &playerModel{
		ID:           p.ID.String(),
		Key:          p.Key,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Belt:         p.Belt,
		Email:        p.Email,
		Phone:        p.Phone,
		MonthlyFee:   p.MonthlyFee,
		IsMonthly:    p.IsMonthly,
		Active:       p.Active,
		AnonymizedAt: p.AnonymizedAt,
		Metadata:     metadata,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func fromPlayerModel(m *playerModel) (*player.Player, error) {
	playerID, err := id.ParsePlayerID(m.ID)
	if err != nil {
		return nil, err
	}
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		metadata = m.Metadata
	}
	return &player.Player{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
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
		AnonymizedAt: m.AnonymizedAt,
		Metadata:     metadata,
	}, nil
}

// ==================== Due models ====================

type dueModel struct {
	grove.BaseModel `grove:"table:dues_dues"`

	ID        string     `grove:"id,pk"`
	PlayerID  string     `grove:"player_id"`
	Year      int        `grove:"year"`
	Month     int        `grove:"month"`
	Amount    int64      `grove:"amount"`
	Currency  string     `grove:"currency"`
	Paid      bool       `grove:"paid"`
	PaidOn    *time.Time `grove:"paid_on"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toDueModel(d *due.Due) *dueModel {
	return &dueModel{
		ID:        d.ID.String(),
		PlayerID:  d.PlayerID.String(),
		Year:      d.Year,
		Month:     d.Month,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Paid:      d.Paid,
		PaidOn:    d.PaidOn,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
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
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       dueID,
		PlayerID: playerID,
		Year:     m.Year,
		Month:    m.Month,
		Amount:   m.Amount,
		Currency: m.Currency,
		Paid:     m.Paid,
		PaidOn:   utcDate(m.PaidOn),
	}, nil
}

// ==================== Attendance models ====================

type attendanceModel struct {
	grove.BaseModel `grove:"table:dues_attendance"`

	ID        string    `grove:"id,pk"`
	PlayerID  string    `grove:"player_id"`
	Date      time.Time `grove:"session_date"`
	Paid      bool      `grove:"paid"`
	ReceiptID *string   `grove:"receipt_id"`
	Source    string    `grove:"source"`
	CreatedAt time.Time `grove:"created_at"`
}

func toAttendanceModel(a *attendance.Attendance) *attendanceModel {
	var receiptID *string
	if a.ReceiptID != nil {
		s := a.ReceiptID.String()
		receiptID = &s
	}
	return &attendanceModel{
		ID:        a.ID.String(),
		PlayerID:  a.PlayerID.String(),
		Date:      types.DateOf(a.Date),
		Paid:      a.Paid,
		ReceiptID: receiptID,
		Source:    string(a.Source),
		CreatedAt: a.CreatedAt,
	}
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
		CreatedAt: m.CreatedAt,
	}
	if m.ReceiptID != nil && *m.ReceiptID != "" {
		rid, err := id.ParseReceiptID(*m.ReceiptID)
		if err != nil {
			return nil, err
		}
		a.ReceiptID = &rid
	}
	return a, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:dues_events"`

	ID        string     `grove:"id,pk"`
	Name      string     `grove:"name"`
	Location  string     `grove:"location"`
	StartsOn  time.Time  `grove:"starts_on"`
	EndsOn    *time.Time `grove:"ends_on"`
	Currency  string     `grove:"currency"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Location:  e.Location,
		StartsOn:  types.DateOf(e.StartsOn),
		EndsOn:    utcDate(e.EndsOn),
		Currency:  e.Currency,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       eventID,
		Name:     m.Name,
		Location: m.Location,
		StartsOn: types.DateOf(m.StartsOn),
		EndsOn:   utcDate(m.EndsOn),
		Currency: m.Currency,
	}, nil
}

type categoryModel struct {
	grove.BaseModel `grove:"table:dues_categories"`

	ID      string `grove:"id,pk"`
	EventID string `grove:"event_id"`
	Name    string `grove:"name"`
	Fee     *int64 `grove:"fee"`
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

type registrationModel struct {
	grove.BaseModel `grove:"table:dues_registrations"`

	ID          string          `grove:"id,pk"`
	EventID     string          `grove:"event_id"`
	PlayerID    string          `grove:"player_id"`
	Entries     json.RawMessage `grove:"entries,type:jsonb"`
	FeeOverride *int64          `grove:"fee_override"`
	Paid        bool            `grove:"paid"`
	PaidOn      *time.Time      `grove:"paid_on"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toRegistrationModel(r *event.Registration) (*registrationModel, error) {
	entries := r.Entries
	if entries == nil {
		entries = []event.Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return &registrationModel{
		ID:          r.ID.String(),
		EventID:     r.EventID.String(),
		PlayerID:    r.PlayerID.String(),
		Entries:     raw,
		FeeOverride: r.FeeOverride,
		Paid:        r.Paid,
		PaidOn:      r.PaidOn,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
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
	if len(m.Entries) > 0 {
		if err := json.Unmarshal(m.Entries, &entries); err != nil {
			return nil, err
		}
	}
	return &event.Registration{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          regID,
		EventID:     eventID,
		PlayerID:    playerID,
		Entries:     entries,
		FeeOverride: m.FeeOverride,
		Paid:        m.Paid,
		PaidOn:      utcDate(m.PaidOn),
	}, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:dues_receipts"`

	ID            string          `grove:"id,pk"`
	Seq           int64           `grove:"seq"`
	Number        string          `grove:"number"`
	Kind          string          `grove:"kind"`
	Source        string          `grove:"source"`
	PlayerID      string          `grove:"player_id"`
	Amount        int64           `grove:"amount"`
	Currency      string          `grove:"currency"`
	Method        string          `grove:"method"`
	Note          string          `grove:"note"`
	Year          int             `grove:"year"`
	Month         int             `grove:"month"`
	SessionsPaid  int             `grove:"sessions_paid"`
	SessionsTaken int             `grove:"sessions_taken"`
	Links         json.RawMessage `grove:"links,type:jsonb"`
	PaidAt        time.Time       `grove:"paid_at"`
	CreatedAt     time.Time       `grove:"created_at"`
}

func linksJSON(links []receipt.Link) ([]byte, error) {
	if links == nil {
		links = []receipt.Link{}
	}
	return json.Marshal(links)
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
	if len(m.Links) > 0 {
		if err := json.Unmarshal(m.Links, &links); err != nil {
			return nil, err
		}
	}
	if len(links) == 0 {
		links = nil
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

// utcDate normalizes an optional calendar date read from a DATE column.
func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := types.DateOf(*t)
	return &d
}
