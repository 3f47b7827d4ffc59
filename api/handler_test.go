package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/api"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
	"github.com/xraph/dues/receipt"
	"github.com/xraph/dues/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var june3 = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

// testCaller resolves X-Test-Admin and X-Test-Player headers. Requests
// without either run as an anonymous non-admin.
func testCaller(c *gin.Context) dues.Caller {
	caller := dues.Caller{ID: "anonymous"}
	if c.GetHeader("X-Test-Admin") == "true" {
		caller = dues.Caller{ID: "admin", Admin: true}
	}
	if s := c.GetHeader("X-Test-Player"); s != "" {
		if playerID, err := id.ParsePlayerID(s); err == nil {
			caller = dues.Caller{ID: s, PlayerID: playerID}
		}
	}
	return caller
}

type testServer struct {
	engine *dues.Engine
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	e := dues.New(memory.New(),
		dues.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		dues.WithClock(func() time.Time { return june3 }),
	)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	r := gin.New()
	api.NewHandler(e, testCaller).Register(r.Group("/dues"))
	return &testServer{engine: e, router: r}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.ErrorInfo  `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

var asAdmin = map[string]string{"X-Test-Admin": "true"}

func (s *testServer) createPlayer(t *testing.T, in dues.PlayerInput) *player.Player {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/dues/players", in, asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p player.Player
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return &p
}

func TestCreateAndGetPlayer(t *testing.T) {
	s := newTestServer(t)

	p := s.createPlayer(t, dues.PlayerInput{Key: "ana", FirstName: "Ana", MonthlyFee: player.Fee(45), IsMonthly: true})
	assert.Equal(t, "ana", p.Key)
	assert.False(t, p.ID.IsNil())

	w, env := s.do(t, http.MethodGet, "/dues/players/"+p.ID.String(), nil, asAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	// A player may read their own profile but not someone else's.
	w, _ = s.do(t, http.MethodGet, "/dues/players/"+p.ID.String(), nil, map[string]string{"X-Test-Player": p.ID.String()})
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodGet, "/dues/players/"+p.ID.String(), nil, map[string]string{"X-Test-Player": id.NewPlayerID().String()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, api.ErrCodeForbidden, env.Error.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.createPlayer(t, dues.PlayerInput{Key: "ana"})

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     "/dues/players/not-an-id",
			headers:  asAdmin,
			wantCode: http.StatusBadRequest,
			wantErr:  api.ErrCodeBadRequest,
		},
		{
			name:     "id with the wrong prefix",
			method:   http.MethodGet,
			path:     "/dues/players/" + id.NewDueID().String(),
			headers:  asAdmin,
			wantCode: http.StatusBadRequest,
			wantErr:  api.ErrCodeBadRequest,
		},
		{
			name:     "unknown player",
			method:   http.MethodGet,
			path:     "/dues/players/" + id.NewPlayerID().String(),
			headers:  asAdmin,
			wantCode: http.StatusNotFound,
			wantErr:  api.ErrCodeNotFound,
		},
		{
			name:     "duplicate key",
			method:   http.MethodPost,
			path:     "/dues/players",
			body:     dues.PlayerInput{Key: "ana"},
			headers:  asAdmin,
			wantCode: http.StatusConflict,
			wantErr:  api.ErrCodeConflict,
		},
		{
			name:     "engine validation",
			method:   http.MethodPost,
			path:     "/dues/players",
			body:     dues.PlayerInput{Key: "cara", Email: "not-an-email"},
			headers:  asAdmin,
			wantCode: http.StatusBadRequest,
			wantErr:  api.ErrCodeValidation,
		},
		{
			name:     "non-admin listing",
			method:   http.MethodGet,
			path:     "/dues/players",
			wantCode: http.StatusForbidden,
			wantErr:  api.ErrCodeForbidden,
		},
		{
			name:     "non-admin paying an unknown due",
			method:   http.MethodPost,
			path:     "/dues/dues/" + id.NewDueID().String() + "/pay",
			wantCode: http.StatusForbidden,
			wantErr:  api.ErrCodeForbidden,
		},
		{
			name:     "bad date filter",
			method:   http.MethodGet,
			path:     "/dues/receipts?from=03.06.2024",
			headers:  asAdmin,
			wantCode: http.StatusBadRequest,
			wantErr:  api.ErrCodeBadRequest,
		},
		{
			name:     "unknown receipt kind",
			method:   http.MethodGet,
			path:     "/dues/receipts?kind=gift",
			headers:  asAdmin,
			wantCode: http.StatusBadRequest,
			wantErr:  api.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestSessionDebtFlow(t *testing.T) {
	s := newTestServer(t)
	bo := s.createPlayer(t, dues.PlayerInput{Key: "bo", MonthlyFee: player.Fee(12)})
	base := "/dues/players/" + bo.ID.String()

	w, env := s.do(t, http.MethodPost, base+"/sessions", map[string]string{"date": "2024-06-03"}, asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res dues.SessionResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, attendance.OutcomeDebt, res.Outcome)
	require.NotNil(t, res.Debt)

	// Same day again is a no-op.
	w, env = s.do(t, http.MethodPost, base+"/sessions", map[string]string{"date": "2024-06-03"}, asAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	var dup dues.SessionResult
	require.NoError(t, json.Unmarshal(env.Data, &dup))
	assert.True(t, dup.Duplicate)

	w, env = s.do(t, http.MethodGet, base+"/debts", nil, asAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	var debts []*receipt.Receipt
	require.NoError(t, json.Unmarshal(env.Data, &debts))
	require.Len(t, debts, 1)
	debtID := debts[0].ID.String()

	w, _ = s.do(t, http.MethodPost, "/dues/receipts/"+debtID+"/pay", nil, asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodPost, "/dues/receipts/"+debtID+"/pay", nil, asAdmin)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, api.ErrCodeAlreadySettled, env.Error.Code)

	w, env = s.do(t, http.MethodGet, base+"/balance", nil, asAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	var b dues.Balance
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, 1, b.SessionsTaken)
	assert.Equal(t, int64(0), b.OwedAmount)
}

func TestCheckInIsSelfService(t *testing.T) {
	s := newTestServer(t)
	bo := s.createPlayer(t, dues.PlayerInput{Key: "bo", MonthlyFee: player.Fee(12)})
	other := s.createPlayer(t, dues.PlayerInput{Key: "cy", MonthlyFee: player.Fee(12)})
	self := map[string]string{"X-Test-Player": bo.ID.String()}

	w, _ := s.do(t, http.MethodPost, "/dues/players/"+bo.ID.String()+"/check-in", nil, self)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.do(t, http.MethodPost, "/dues/players/"+other.ID.String()+"/check-in", nil, self)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Staff recording stays with administrators.
	w, _ = s.do(t, http.MethodPost, "/dues/players/"+bo.ID.String()+"/sessions", nil, self)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerateDuesAndSettle(t *testing.T) {
	s := newTestServer(t)
	ana := s.createPlayer(t, dues.PlayerInput{Key: "ana", MonthlyFee: player.Fee(45), IsMonthly: true})

	w, env := s.do(t, http.MethodPost, "/dues/dues/generate", map[string]string{"month": "2024-06"}, asAdmin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"created":1}`, string(env.Data))

	w, env = s.do(t, http.MethodGet, "/dues/players/"+ana.ID.String()+"/selection?scope=monthly", nil, asAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	var sel dues.BulkInput
	require.NoError(t, json.Unmarshal(env.Data, &sel))
	require.Len(t, sel.DueIDs, 1)

	sel.Method = "cash"
	w, env = s.do(t, http.MethodPost, "/dues/players/"+ana.ID.String()+"/settle", sel, asAdmin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res dues.BulkResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, int64(45), res.Amount)

	// Nothing left: a second settlement issues no receipt.
	w, env = s.do(t, http.MethodPost, "/dues/players/"+ana.ID.String()+"/settle", sel, asAdmin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var again dues.BulkResult
	require.NoError(t, json.Unmarshal(env.Data, &again))
	assert.Nil(t, again.Receipt)
	assert.Equal(t, 1, again.Skipped)
}

func TestExportPlayersCSV(t *testing.T) {
	s := newTestServer(t)
	s.createPlayer(t, dues.PlayerInput{Key: "ana", FirstName: "Ana", MonthlyFee: player.Fee(45), IsMonthly: true})

	w, _ := s.do(t, http.MethodGet, "/dues/exports/players.csv", nil, asAdmin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="players.csv"`)

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "key", records[0][0])
	assert.Equal(t, "ana", records[1][0])

	w, env := s.do(t, http.MethodGet, "/dues/exports/players.csv", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
}

func TestImportPlayersFromBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/dues/players/import",
		strings.NewReader("key,first_name,monthly_fee,is_monthly\nana,Ana,45,yes\nbo,Bo,12,no\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Test-Admin", "true")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var res dues.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Created)

	players, err := s.engine.ListPlayers(context.Background(), player.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, players, 2)
}
