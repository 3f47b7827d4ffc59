// Package storetest is a conformance suite every store.Store backend runs
// against itself.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/due"
	"github.com/xraph/dues/event"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store"
	"github.com/xraph/dues/types"
)

// Factory returns an empty, migrated store. It is called once per case.
type Factory func(t *testing.T) store.Store

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Players", testPlayers},
		{"Dues", testDues},
		{"Attendance", testAttendance},
		{"Events", testEvents},
		{"ReceiptSequence", testReceiptSequence},
		{"SettlingConflict", testSettlingConflict},
		{"SessionSlots", testSessionSlots},
		{"ReceiptNumbers", testReceiptNumbers},
		{"ListReceipts", testListReceipts},
		{"Transactions", testTransactions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var (
	june1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	june3 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
)

func newPlayer(t *testing.T, s store.Store, key, last string, fee *int64, monthly bool) *player.Player {
	t.Helper()
	p := &player.Player{
		Entity:     types.NewEntity(),
		ID:         id.NewPlayerID(),
		Key:        key,
		FirstName:  "Test",
		LastName:   last,
		MonthlyFee: fee,
		IsMonthly:  monthly,
		Active:     true,
	}
	require.NoError(t, s.CreatePlayer(context.Background(), p))
	return p
}

func newReceipt(playerID id.PlayerID, kind receipt.Kind, amount int64, paidAt time.Time, links ...receipt.Link) *receipt.Receipt {
	return &receipt.Receipt{
		ID:        id.NewReceiptID(),
		Kind:      kind,
		Source:    receipt.SourceManual,
		PlayerID:  playerID,
		Amount:    amount,
		Currency:  "EUR",
		Links:     links,
		PaidAt:    paidAt,
		CreatedAt: paidAt,
	}
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()

	b := newPlayer(t, s, "k-b", "Berg", player.Fee(30), true)
	a := newPlayer(t, s, "k-a", "Adler", player.Fee(10), false)
	c := newPlayer(t, s, "k-c", "Cole", nil, true)

	dup := &player.Player{Entity: types.NewEntity(), ID: id.NewPlayerID(), Key: "k-a", Active: true}
	require.ErrorIs(t, s.CreatePlayer(ctx, dup), dues.ErrAlreadyExists)

	got, err := s.GetPlayerByKey(ctx, "k-b")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	require.NotNil(t, got.MonthlyFee)
	assert.Equal(t, int64(30), *got.MonthlyFee)

	_, err = s.GetPlayer(ctx, id.NewPlayerID())
	require.ErrorIs(t, err, dues.ErrPlayerNotFound)

	c.Active = false
	c.Belt = "green"
	require.NoError(t, s.UpdatePlayer(ctx, c))
	got, err = s.GetPlayer(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "green", got.Belt)
	assert.Nil(t, got.MonthlyFee)

	all, err := s.ListPlayers(ctx, player.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []id.PlayerID{a.ID, b.ID, c.ID}, []id.PlayerID{all[0].ID, all[1].ID, all[2].ID})

	active, err := s.ListPlayers(ctx, player.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	monthly, err := s.ListPlayers(ctx, player.ListOpts{MonthlyOnly: true})
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	assert.Equal(t, b.ID, monthly[0].ID)

	page, err := s.ListPlayers(ctx, player.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)
}

func testDues(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Monthly", player.Fee(20), true)

	d := &due.Due{Entity: types.NewEntity(), ID: id.NewDueID(), PlayerID: p.ID, Year: 2024, Month: 6, Amount: 20, Currency: "EUR"}
	require.NoError(t, s.CreateDue(ctx, d))

	again := &due.Due{Entity: types.NewEntity(), ID: id.NewDueID(), PlayerID: p.ID, Year: 2024, Month: 6, Amount: 20, Currency: "EUR"}
	require.ErrorIs(t, s.CreateDue(ctx, again), dues.ErrAlreadyExists)

	july := &due.Due{Entity: types.NewEntity(), ID: id.NewDueID(), PlayerID: p.ID, Year: 2024, Month: 7, Amount: 20, Currency: "EUR"}
	require.NoError(t, s.CreateDue(ctx, july))

	got, err := s.GetDueFor(ctx, p.ID, 2024, 6)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	_, err = s.GetDueFor(ctx, p.ID, 2024, 8)
	require.ErrorIs(t, err, dues.ErrDueNotFound)

	flipped, err := s.MarkDuePaid(ctx, d.ID, june3)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.MarkDuePaid(ctx, d.ID, june3)
	require.NoError(t, err)
	assert.False(t, flipped)
	_, err = s.MarkDuePaid(ctx, id.NewDueID(), june3)
	require.ErrorIs(t, err, dues.ErrDueNotFound)

	got, err = s.GetDue(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Paid)
	require.NotNil(t, got.PaidOn)
	assert.True(t, june3.Equal(*got.PaidOn))

	unpaid, err := s.ListDues(ctx, due.ListOpts{PlayerID: p.ID, UnpaidOnly: true})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, july.ID, unpaid[0].ID)

	ranged, err := s.ListDues(ctx, due.ListOpts{From: june1, To: june3})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, d.ID, ranged[0].ID)

	ordered, err := s.ListDues(ctx, due.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, 6, ordered[0].Month)
	assert.Equal(t, 7, ordered[1].Month)
}

func testAttendance(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Session", player.Fee(10), false)

	first := &attendance.Attendance{ID: id.NewAttendanceID(), PlayerID: p.ID, Date: june3, Source: attendance.SourceStaff, CreatedAt: june3}
	require.NoError(t, s.CreateAttendance(ctx, first))

	sameDay := &attendance.Attendance{
		ID:        id.NewAttendanceID(),
		PlayerID:  p.ID,
		Date:      june3.Add(5 * time.Hour),
		Source:    attendance.SourceSelfCheckIn,
		CreatedAt: june3,
	}
	require.ErrorIs(t, s.CreateAttendance(ctx, sameDay), dues.ErrAlreadyExists)

	earlier := &attendance.Attendance{ID: id.NewAttendanceID(), PlayerID: p.ID, Date: june1, Source: attendance.SourceStaff, CreatedAt: june1}
	require.NoError(t, s.CreateAttendance(ctx, earlier))

	n, err := s.CountAttendance(ctx, p.ID, june1, june3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.CountAttendance(ctx, p.ID, june3, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	debt := id.NewReceiptID()
	require.NoError(t, s.SetAttendanceReceipt(ctx, earlier.ID, debt, false))
	got, err := s.GetAttendance(ctx, earlier.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReceiptID)
	assert.Equal(t, debt, *got.ReceiptID)
	assert.False(t, got.Paid)

	payment := id.NewReceiptID()
	flipped, err := s.MarkAttendancePaid(ctx, earlier.ID, payment)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.MarkAttendancePaid(ctx, earlier.ID, payment)
	require.NoError(t, err)
	assert.False(t, flipped)
	_, err = s.MarkAttendancePaid(ctx, id.NewAttendanceID(), payment)
	require.ErrorIs(t, err, dues.ErrAttendanceNotFound)

	list, err := s.ListAttendance(ctx, attendance.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, june1.Equal(list[0].Date))
	assert.True(t, june3.Equal(list[1].Date))

	unpaid, err := s.ListAttendance(ctx, attendance.ListOpts{PlayerID: p.ID, UnpaidOnly: true})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, first.ID, unpaid[0].ID)
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Fighter", nil, true)

	ev := &event.Event{Entity: types.NewEntity(), ID: id.NewEventID(), Name: "Open", StartsOn: june3, Currency: "EUR"}
	require.NoError(t, s.CreateEvent(ctx, ev))

	orphan := &event.Category{ID: id.NewCategoryID(), EventID: id.NewEventID(), Name: "Kata"}
	require.ErrorIs(t, s.CreateCategory(ctx, orphan), dues.ErrEventNotFound)

	kumite := &event.Category{ID: id.NewCategoryID(), EventID: ev.ID, Name: "Kumite", Fee: player.Fee(15)}
	kata := &event.Category{ID: id.NewCategoryID(), EventID: ev.ID, Name: "Kata"}
	require.NoError(t, s.CreateCategory(ctx, kumite))
	require.NoError(t, s.CreateCategory(ctx, kata))

	cats, err := s.ListCategories(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Kata", cats[0].Name)
	assert.Nil(t, cats[0].Fee)
	require.NotNil(t, cats[1].Fee)
	assert.Equal(t, int64(15), *cats[1].Fee)

	reg := &event.Registration{
		Entity:   types.NewEntity(),
		ID:       id.NewRegistrationID(),
		EventID:  ev.ID,
		PlayerID: p.ID,
		Entries: []event.Entry{
			{CategoryID: kumite.ID, Medal: event.MedalGold},
			{CategoryID: kata.ID, Medal: event.MedalNone},
		},
	}
	require.NoError(t, s.CreateRegistration(ctx, reg))

	twice := &event.Registration{Entity: types.NewEntity(), ID: id.NewRegistrationID(), EventID: ev.ID, PlayerID: p.ID}
	require.ErrorIs(t, s.CreateRegistration(ctx, twice), dues.ErrAlreadyExists)

	got, err := s.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.Entries, got.Entries)
	assert.Nil(t, got.FeeOverride)

	flipped, err := s.MarkRegistrationPaid(ctx, reg.ID, june3)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.MarkRegistrationPaid(ctx, reg.ID, june3)
	require.NoError(t, err)
	assert.False(t, flipped)

	unpaid, err := s.ListRegistrations(ctx, event.RegistrationListOpts{EventID: ev.ID, UnpaidOnly: true})
	require.NoError(t, err)
	assert.Empty(t, unpaid)

	events, err := s.ListEvents(ctx, event.ListOpts{From: june1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, june3.Equal(events[0].StartsOn))
}

func testReceiptSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Payer", player.Fee(10), false)

	var last int64
	for range 3 {
		r := newReceipt(p.ID, receipt.KindPerSession, 10, june3)
		r.SessionsPaid = 1
		require.NoError(t, s.CreateReceipt(ctx, r))
		assert.Greater(t, r.Seq, last)
		last = r.Seq
	}
}

func testSettlingConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Payer", player.Fee(20), true)

	link := receipt.Link{TargetType: receipt.TargetDue, TargetID: id.NewDueID().String(), Amount: 20, Settles: true}
	first := newReceipt(p.ID, receipt.KindMonthly, 20, june3, link)
	require.NoError(t, s.CreateReceipt(ctx, first))

	second := newReceipt(p.ID, receipt.KindMonthly, 20, june3, link)
	require.ErrorIs(t, s.CreateReceipt(ctx, second), dues.ErrAlreadyExists)
	_, err := s.GetReceipt(ctx, second.ID)
	require.ErrorIs(t, err, dues.ErrReceiptNotFound)

	settling, err := s.SettlingReceipt(ctx, receipt.TargetDue, link.TargetID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, settling.ID)
	require.Len(t, settling.Links, 1)
	assert.Equal(t, link, settling.Links[0])

	_, err = s.SettlingReceipt(ctx, receipt.TargetDue, id.NewDueID().String())
	require.ErrorIs(t, err, dues.ErrReceiptNotFound)

	// Non-settling links may repeat.
	credit := receipt.Link{TargetType: receipt.TargetSessionCredit, TargetID: p.ID.String(), Amount: 5}
	require.NoError(t, s.CreateReceipt(ctx, newReceipt(p.ID, receipt.KindBulk, 5, june3, credit)))
	require.NoError(t, s.CreateReceipt(ctx, newReceipt(p.ID, receipt.KindBulk, 5, june3, credit)))
}

func testSessionSlots(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Payer", player.Fee(10), false)

	r := newReceipt(p.ID, receipt.KindPerSession, 20, june3)
	r.SessionsPaid = 2
	require.NoError(t, s.CreateReceipt(ctx, r))

	for _, want := range []bool{true, true, false} {
		took, err := s.ConsumeSession(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, want, took)
	}
	_, err := s.ConsumeSession(ctx, id.NewReceiptID())
	require.ErrorIs(t, err, dues.ErrReceiptNotFound)

	legacy := newReceipt(p.ID, receipt.KindPerSession, 30, june1)
	require.NoError(t, s.CreateReceipt(ctx, legacy))
	updated, err := s.BackfillSessionsPaid(ctx, legacy.ID, 3)
	require.NoError(t, err)
	assert.True(t, updated)
	updated, err = s.BackfillSessionsPaid(ctx, legacy.ID, 5)
	require.NoError(t, err)
	assert.False(t, updated)

	tracking := newReceipt(p.ID, receipt.KindDebt, 10, june3)
	require.NoError(t, s.CreateReceipt(ctx, tracking))
	require.NoError(t, s.LogSession(ctx, tracking.ID))

	got, err := s.GetReceipt(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SessionsPaid)
	got, err = s.GetReceipt(ctx, tracking.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SessionsTaken)
	assert.Zero(t, got.Slack())
}

func testReceiptNumbers(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Payer", player.Fee(10), false)

	r := newReceipt(p.ID, receipt.KindPerSession, 10, june3)
	require.NoError(t, s.CreateReceipt(ctx, r))
	number := receipt.FormatNumber(r.PaidAt, r.Seq)
	require.NoError(t, s.AssignNumber(ctx, r.ID, number))
	// A numbered receipt keeps its number.
	require.NoError(t, s.AssignNumber(ctx, r.ID, "RCPT-OTHER"))

	got, err := s.GetReceiptByNumber(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	other := newReceipt(p.ID, receipt.KindPerSession, 10, june3)
	require.NoError(t, s.CreateReceipt(ctx, other))
	err = s.AssignNumber(ctx, other.ID, number)
	require.True(t, errors.Is(err, dues.ErrAlreadyExists), "got %v", err)

	_, err = s.GetReceiptByNumber(ctx, "RCPT-19990101-000001")
	require.ErrorIs(t, err, dues.ErrReceiptNotFound)
}

func testListReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPlayer(t, s, "k", "Payer", player.Fee(10), false)
	q := newPlayer(t, s, "q", "Other", player.Fee(10), false)

	late := newReceipt(p.ID, receipt.KindPerSession, 10, june3.Add(10*time.Hour))
	early := newReceipt(p.ID, receipt.KindDebt, 10, june1)
	foreign := newReceipt(q.ID, receipt.KindEvent, 15, june3)
	for _, r := range []*receipt.Receipt{late, early, foreign} {
		require.NoError(t, s.CreateReceipt(ctx, r))
	}
	require.NoError(t, s.AssignNumber(ctx, late.ID, receipt.FormatNumber(late.PaidAt, late.Seq)))

	mine, err := s.ListReceipts(ctx, receipt.ListOpts{PlayerID: p.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, early.ID, mine[0].ID)
	assert.Equal(t, late.ID, mine[1].ID)

	debts, err := s.ListReceipts(ctx, receipt.ListOpts{Kinds: []receipt.Kind{receipt.KindDebt}})
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, early.ID, debts[0].ID)

	unnumbered, err := s.ListReceipts(ctx, receipt.ListOpts{MissingNumber: true})
	require.NoError(t, err)
	assert.Len(t, unnumbered, 2)

	onDay, err := s.ListReceipts(ctx, receipt.ListOpts{From: june3, To: june3})
	require.NoError(t, err)
	assert.Len(t, onDay, 2)

	manual, err := s.ListReceipts(ctx, receipt.ListOpts{Sources: []receipt.Source{receipt.SourceManual}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, early.ID, manual[0].ID)
}

func testTransactions(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	var kept, dropped *player.Player
	err := s.WithTx(ctx, func(ctx context.Context) error {
		dropped = &player.Player{Entity: types.NewEntity(), ID: id.NewPlayerID(), Key: "dropped", Active: true}
		if err := s.CreatePlayer(ctx, dropped); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return s.WithTx(ctx, func(ctx context.Context) error {
			d := &due.Due{Entity: types.NewEntity(), ID: id.NewDueID(), PlayerID: dropped.ID, Year: 2024, Month: 6, Amount: 1, Currency: "EUR"}
			if err := s.CreateDue(ctx, d); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)
	_, err = s.GetPlayer(ctx, dropped.ID)
	require.ErrorIs(t, err, dues.ErrPlayerNotFound)

	err = s.WithTx(ctx, func(ctx context.Context) error {
		kept = &player.Player{Entity: types.NewEntity(), ID: id.NewPlayerID(), Key: "kept", Active: true}
		return s.CreatePlayer(ctx, kept)
	})
	require.NoError(t, err)
	_, err = s.GetPlayer(ctx, kept.ID)
	require.NoError(t, err)
}
