// Package api exposes the dues engine over HTTP with gin.
//
// JSON endpoints answer with a Response envelope. CSV and ZIP exports are
// rendered in memory first so a failure can still be reported as JSON.
// The host resolves the calling identity; see CallerFunc.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/export"
	"github.com/xraph/dues/id"
)

// CallerFunc resolves the identity a request runs as, typically from the
// host's session or JWT middleware.
type CallerFunc func(c *gin.Context) dues.Caller

// Handler serves the dues HTTP API.
type Handler struct {
	engine  *dues.Engine
	exports *export.Exporter
	caller  CallerFunc
}

// NewHandler creates a Handler over engine. Requests run as the identity
// caller returns.
func NewHandler(engine *dues.Engine, caller CallerFunc) *Handler {
	return &Handler{
		engine:  engine,
		exports: export.New(engine),
		caller:  caller,
	}
}

// Register mounts every route on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	players := rg.Group("/players")
	players.GET("", h.ListPlayers)
	players.POST("", h.CreatePlayer)
	players.POST("/import", h.ImportPlayers)
	players.GET("/:id", h.GetPlayer)
	players.PUT("/:id", h.UpdatePlayer)
	players.POST("/:id/deactivate", h.DeactivatePlayer)
	players.POST("/:id/anonymize", h.AnonymizePlayer)
	players.GET("/:id/balance", h.Balance)
	players.GET("/:id/attendance", h.ListAttendance)
	players.POST("/:id/sessions", h.RecordSession)
	players.POST("/:id/check-in", h.CheckIn)
	players.POST("/:id/pay-sessions", h.PaySessions)
	players.GET("/:id/debts", h.OutstandingDebts)
	players.GET("/:id/selection", h.BulkSelection)
	players.POST("/:id/settle", h.Settle)

	rg.POST("/dues/generate", h.GenerateDues)
	rg.POST("/dues/:id/pay", h.PayMonthlyDue)

	receipts := rg.Group("/receipts")
	receipts.GET("", h.ListReceipts)
	receipts.POST("", h.IssueReceipt)
	receipts.POST("/:id/pay", h.PayDebt)

	events := rg.Group("/events")
	events.POST("", h.CreateEvent)
	events.POST("/:id/categories", h.AddCategory)
	events.POST("/:id/registrations", h.RegisterForEvent)
	events.GET("/:id/medals", h.Medals)
	events.GET("/:id/bundle", h.EventBundle)

	rg.GET("/registrations/:id/fee", h.RegistrationFee)
	rg.POST("/registrations/:id/pay", h.PayRegistration)

	rg.GET("/reports/summary", h.Report)
	rg.GET("/reports/fees", h.MonthlyFees)

	rg.GET("/exports/fees.csv", h.ExportFees)
	rg.GET("/exports/payments.csv", h.ExportPayments)
	rg.GET("/exports/players.csv", h.ExportPlayers)

	rg.POST("/sweeps/paid-flags", h.RepairPaidFlags)
	rg.POST("/sweeps/receipt-numbers", h.AssignMissingNumbers)
}

// pathID parses the :id path parameter with parse. On failure it writes a
// 400 and returns false.
func (h *Handler) pathID(c *gin.Context, parse func(string) (id.ID, error)) (id.ID, bool) {
	v, err := parse(c.Param("id"))
	if err != nil {
		h.badRequest(c, "Invalid ID format")
		return id.Nil, false
	}
	return v, true
}

// queryDay parses an optional YYYY-MM-DD query parameter.
func queryDay(c *gin.Context, name string) (time.Time, error) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// queryRange reads the from and to query parameters. On failure it writes
// a 400 and returns false.
func (h *Handler) queryRange(c *gin.Context) (from, to time.Time, ok bool) {
	from, err := queryDay(c, "from")
	if err != nil {
		h.badRequest(c, "from must be YYYY-MM-DD")
		return from, to, false
	}
	to, err = queryDay(c, "to")
	if err != nil {
		h.badRequest(c, "to must be YYYY-MM-DD")
		return from, to, false
	}
	return from, to, true
}

func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

// attachment writes a rendered file.
func attachment(c *gin.Context, name, contentType string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, data)
}
