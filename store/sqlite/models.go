package sqlite

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

// Timestamps are stored as fixed-width UTC text so that they sort
// lexically; calendar dates as YYYY-MM-DD.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func fmtDate(t time.Time) string { return types.DateOf(t).Format(dateLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func fmtOptTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func fmtOptDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtDate(*t)
	return &s
}

func parseOptTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ==================== Player models ====================

type playerModel struct {
	grove.BaseModel `grove:"table:dues_players"`

	ID           string  `grove:"id,pk"`
	Key          string  `grove:"key"`
	FirstName    string  `grove:"first_name"`
	LastName     string  `grove:"last_name"`
	Belt         string  `grove:"belt"`
	Email        string  `grove:"email"`
	Phone        string  `grove:"phone"`
	MonthlyFee   *int64  `grove:"monthly_fee"`
	IsMonthly    bool    `grove:"is_monthly"`
	Active       bool    `grove:"active"`
	AnonymizedAt *string `grove:"anonymized_at"`
	Metadata     string  `grove:"metadata"`
	CreatedAt    string  `grove:"created_at"`
	UpdatedAt    string  `grove:"updated_at"`
}

func toPlayerModel(p *player.Player) (*playerModel, error) {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
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
		AnonymizedAt: fmtOptTime(p.AnonymizedAt),
		Metadata:     string(raw),
		CreatedAt:    fmtTime(p.CreatedAt),
		UpdatedAt:    fmtTime(p.UpdatedAt),
	}, nil
}

func fromPlayerModel(m *playerModel) (*player.Player, error) {
	playerID, err := id.ParsePlayerID(m.ID)
	if err != nil {
		return nil, err
	}
	var metadata map[string]string
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, err
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	anonymizedAt, err := parseOptTime(m.AnonymizedAt)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &player.Player{
		Entity: types.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
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
		AnonymizedAt: anonymizedAt,
		Metadata:     metadata,
	}, nil
}

// ==================== Due models ====================

type dueModel struct {
	grove.BaseModel `grove:"table:dues_dues"`

	ID        string  `grove:"id,pk"`
	PlayerID  string  `grove:"player_id"`
	Year      int     `grove:"year"`
	Month     int     `grove:"month"`
	Amount    int64   `grove:"amount"`
	Currency  string  `grove:"currency"`
	Paid      bool    `grove:"paid"`
	PaidOn    *string `grove:"paid_on"`
	CreatedAt string  `grove:"created_at"`
	UpdatedAt string  `grove:"updated_at"`
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
		PaidOn:    fmtOptDate(d.PaidOn),
		CreatedAt: fmtTime(d.CreatedAt),
		UpdatedAt: fmtTime(d.UpdatedAt),
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
	paidOn, err := parseOptDate(m.PaidOn)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &due.Due{
		Entity: types.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       dueID,
		PlayerID: playerID,
		Year:     m.Year,
		Month:    m.Month,
		Amount:   m.Amount,
		Currency: m.Currency,
		Paid:     m.Paid,
		PaidOn:   paidOn,
	}, nil
}

// ==================== Attendance models ====================

type attendanceModel struct {
	grove.BaseModel `grove:"table:dues_attendance"`

	ID        string  `grove:"id,pk"`
	PlayerID  string  `grove:"player_id"`
	Date      string  `grove:"session_date"`
	Paid      bool    `grove:"paid"`
	ReceiptID *string `grove:"receipt_id"`
	Source    string  `grove:"source"`
	CreatedAt string  `grove:"created_at"`
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
		Date:      fmtDate(a.Date),
		Paid:      a.Paid,
		ReceiptID: receiptID,
		Source:    string(a.Source),
		CreatedAt: fmtTime(a.CreatedAt),
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
	date, err := parseDate(m.Date)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	a := &attendance.Attendance{
		ID:        attID,
		PlayerID:  playerID,
		Date:      date,
		Paid:      m.Paid,
		Source:    attendance.Source(m.Source),
		CreatedAt: createdAt,
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

	ID        string  `grove:"id,pk"`
	Name      string  `grove:"name"`
	Location  string  `grove:"location"`
	StartsOn  string  `grove:"starts_on"`
	EndsOn    *string `grove:"ends_on"`
	Currency  string  `grove:"currency"`
	CreatedAt string  `grove:"created_at"`
	UpdatedAt string  `grove:"updated_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Location:  e.Location,
		StartsOn:  fmtDate(e.StartsOn),
		EndsOn:    fmtOptDate(e.EndsOn),
		Currency:  e.Currency,
		CreatedAt: fmtTime(e.CreatedAt),
		UpdatedAt: fmtTime(e.UpdatedAt),
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	startsOn, err := parseDate(m.StartsOn)
	if err != nil {
		return nil, err
	}
	endsOn, err := parseOptDate(m.EndsOn)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		Entity: types.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       eventID,
		Name:     m.Name,
		Location: m.Location,
		StartsOn: startsOn,
		EndsOn:   endsOn,
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

	ID          string  `grove:"id,pk"`
	EventID     string  `grove:"event_id"`
	PlayerID    string  `grove:"player_id"`
	Entries     string  `grove:"entries"`
	FeeOverride *int64  `grove:"fee_override"`
	Paid        bool    `grove:"paid"`
	PaidOn      *string `grove:"paid_on"`
	CreatedAt   string  `grove:"created_at"`
	UpdatedAt   string  `grove:"updated_at"`
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
		Entries:     string(raw),
		FeeOverride: r.FeeOverride,
		Paid:        r.Paid,
		PaidOn:      fmtOptDate(r.PaidOn),
		CreatedAt:   fmtTime(r.CreatedAt),
		UpdatedAt:   fmtTime(r.UpdatedAt),
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
	if m.Entries != "" {
		if err := json.Unmarshal([]byte(m.Entries), &entries); err != nil {
			return nil, err
		}
	}
	paidOn, err := parseOptDate(m.PaidOn)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTime(m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &event.Registration{
		Entity: types.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          regID,
		EventID:     eventID,
		PlayerID:    playerID,
		Entries:     entries,
		FeeOverride: m.FeeOverride,
		Paid:        m.Paid,
		PaidOn:      paidOn,
	}, nil
}

// ==================== Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:dues_receipts"`

	ID            string `grove:"id,pk"`
	Seq           int64  `grove:"seq"`
	Number        string `grove:"number"`
	Kind          string `grove:"kind"`
	Source        string `grove:"source"`
	PlayerID      string `grove:"player_id"`
	Amount        int64  `grove:"amount"`
	Currency      string `grove:"currency"`
	Method        string `grove:"method"`
	Note          string `grove:"note"`
	Year          int    `grove:"year"`
	Month         int    `grove:"month"`
	SessionsPaid  int    `grove:"sessions_paid"`
	SessionsTaken int    `grove:"sessions_taken"`
	Links         string `grove:"links"`
	PaidAt        string `grove:"paid_at"`
	CreatedAt     string `grove:"created_at"`
}

func linksJSON(links []receipt.Link) (string, error) {
	if links == nil {
		links = []receipt.Link{}
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return "", err
	}
	return string(raw), nil
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
	if m.Links != "" {
		if err := json.Unmarshal([]byte(m.Links), &links); err != nil {
			return nil, err
		}
	}
	if len(links) == 0 {
		links = nil
	}
	paidAt, err := parseTime(m.PaidAt)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseTime(m.CreatedAt)
	if err != nil {
		return nil, err
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
		PaidAt:        paidAt,
		CreatedAt:     createdAt,
	}, nil
}
