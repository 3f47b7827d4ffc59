package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/attendance"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/player"
)

// CreatePlayer handles POST /players.
func (h *Handler) CreatePlayer(c *gin.Context) {
	var req dues.PlayerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	p, err := h.engine.CreatePlayer(c.Request.Context(), h.caller(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, p)
}

// UpdatePlayer handles PUT /players/:id.
func (h *Handler) UpdatePlayer(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	var req dues.PlayerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	p, err := h.engine.UpdatePlayer(c.Request.Context(), h.caller(c), playerID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, p)
}

// GetPlayer handles GET /players/:id. A player may read their own profile.
func (h *Handler) GetPlayer(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.engine.Authorize(ctx, h.caller(c), dues.ActionReadBalance, playerID); err != nil {
		h.handleError(c, err)
		return
	}
	p, err := h.engine.GetPlayer(ctx, playerID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, p)
}

// ListPlayers handles GET /players?active=&monthly=&limit=&offset=.
func (h *Handler) ListPlayers(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.engine.Authorize(ctx, h.caller(c), dues.ActionManagePlayers, id.Nil); err != nil {
		h.handleError(c, err)
		return
	}
	players, err := h.engine.ListPlayers(ctx, player.ListOpts{
		ActiveOnly:  queryBool(c, "active"),
		MonthlyOnly: queryBool(c, "monthly"),
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, players)
}

// DeactivatePlayer handles POST /players/:id/deactivate.
func (h *Handler) DeactivatePlayer(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	if err := h.engine.DeactivatePlayer(c.Request.Context(), h.caller(c), playerID); err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, gin.H{"id": playerID, "active": false})
}

// AnonymizePlayer handles POST /players/:id/anonymize.
func (h *Handler) AnonymizePlayer(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	if err := h.engine.AnonymizePlayer(c.Request.Context(), h.caller(c), playerID); err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, gin.H{"id": playerID, "anonymized": true})
}

// ImportPlayers handles POST /players/import. The CSV arrives either as
// the multipart field "file" or as the raw request body.
func (h *Handler) ImportPlayers(c *gin.Context) {
	var r io.Reader = c.Request.Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			h.badRequest(c, "Unable to read uploaded file")
			return
		}
		defer f.Close()
		r = f
	}
	res, err := h.exports.ImportPlayers(c.Request.Context(), h.caller(c), r)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, res)
}

// Balance handles GET /players/:id/balance?from=&to=.
func (h *Handler) Balance(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	from, to, ok := h.queryRange(c)
	if !ok {
		return
	}
	b, err := h.engine.Balance(c.Request.Context(), h.caller(c), playerID, dues.BalanceOpts{From: from, To: to})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, b)
}

// ListAttendance handles GET /players/:id/attendance?from=&to=&unpaid=.
func (h *Handler) ListAttendance(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	from, to, ok := h.queryRange(c)
	if !ok {
		return
	}
	units, err := h.engine.ListAttendance(c.Request.Context(), h.caller(c), attendance.ListOpts{
		PlayerID:   playerID,
		From:       from,
		To:         to,
		UnpaidOnly: queryBool(c, "unpaid"),
		Limit:      queryInt(c, "limit"),
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, units)
}

// RecordSessionRequest is the body of POST /players/:id/sessions.
type RecordSessionRequest struct {
	Date   string `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Source string `json:"source" binding:"omitempty,oneof=staff self_checkin import"`
}

// RecordSession handles POST /players/:id/sessions. An empty date means
// today.
func (h *Handler) RecordSession(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	var req RecordSessionRequest
	if !h.bindOptional(c, &req) {
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse(time.DateOnly, req.Date)
	}
	h.recordSession(c, playerID, date, attendance.Source(req.Source))
}

// CheckIn handles POST /players/:id/check-in: a player marks today's
// training themself.
func (h *Handler) CheckIn(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	h.recordSession(c, playerID, time.Time{}, attendance.SourceSelfCheckIn)
}

func (h *Handler) recordSession(c *gin.Context, playerID id.PlayerID, date time.Time, source attendance.Source) {
	res, err := h.engine.RecordSession(c.Request.Context(), h.caller(c), playerID, date, source)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if res.Duplicate {
		h.success(c, res)
		return
	}
	h.created(c, res)
}

// PaySessionsRequest is the body of POST /players/:id/pay-sessions.
type PaySessionsRequest struct {
	Sessions int `json:"sessions" binding:"required,min=1"`
	dues.PaymentInput
}

// PaySessions handles POST /players/:id/pay-sessions.
func (h *Handler) PaySessions(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	var req PaySessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	r, err := h.engine.PaySessions(c.Request.Context(), h.caller(c), playerID, req.Sessions, req.PaymentInput)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, r)
}

// OutstandingDebts handles GET /players/:id/debts.
func (h *Handler) OutstandingDebts(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	debts, err := h.engine.OutstandingDebts(c.Request.Context(), h.caller(c), playerID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, debts)
}

// BulkSelection handles GET /players/:id/selection?scope=. The result can
// be posted back to /players/:id/settle as is.
func (h *Handler) BulkSelection(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	sel, err := h.engine.BulkSelection(c.Request.Context(), h.caller(c), playerID, dues.ParseScope(c.Query("scope")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, sel)
}

// Settle handles POST /players/:id/settle with a dues.BulkInput body.
func (h *Handler) Settle(c *gin.Context) {
	playerID, ok := h.pathID(c, id.ParsePlayerID)
	if !ok {
		return
	}
	var req dues.BulkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	res, err := h.engine.PayDue(c.Request.Context(), h.caller(c), playerID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if res.Receipt == nil {
		h.success(c, res)
		return
	}
	h.created(c, res)
}
