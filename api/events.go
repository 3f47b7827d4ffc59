package api

import (
	"bytes"

	"github.com/gin-gonic/gin"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/id"
)

// CreateEvent handles POST /events.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req dues.EventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	ev, err := h.engine.CreateEvent(c.Request.Context(), h.caller(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, ev)
}

// AddCategory handles POST /events/:id/categories.
func (h *Handler) AddCategory(c *gin.Context) {
	eventID, ok := h.pathID(c, id.ParseEventID)
	if !ok {
		return
	}
	var req dues.CategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	cat, err := h.engine.AddCategory(c.Request.Context(), h.caller(c), eventID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, cat)
}

// RegisterForEvent handles POST /events/:id/registrations.
func (h *Handler) RegisterForEvent(c *gin.Context) {
	eventID, ok := h.pathID(c, id.ParseEventID)
	if !ok {
		return
	}
	var req dues.RegistrationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	reg, err := h.engine.Register(c.Request.Context(), h.caller(c), eventID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, reg)
}

// RegistrationFee handles GET /registrations/:id/fee.
func (h *Handler) RegistrationFee(c *gin.Context) {
	regID, ok := h.pathID(c, id.ParseRegistrationID)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.engine.Authorize(ctx, h.caller(c), dues.ActionReport, id.Nil); err != nil {
		h.handleError(c, err)
		return
	}
	fee, err := h.engine.RegistrationFee(ctx, regID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, fee)
}

// PayRegistration handles POST /registrations/:id/pay.
func (h *Handler) PayRegistration(c *gin.Context) {
	regID, ok := h.pathID(c, id.ParseRegistrationID)
	if !ok {
		return
	}
	in, ok := h.bindPayment(c)
	if !ok {
		return
	}
	r, err := h.engine.PayRegistration(c.Request.Context(), h.caller(c), regID, in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, r)
}

// Medals handles GET /events/:id/medals.
func (h *Handler) Medals(c *gin.Context) {
	eventID, ok := h.pathID(c, id.ParseEventID)
	if !ok {
		return
	}
	m, err := h.engine.Medals(c.Request.Context(), h.caller(c), eventID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, m)
}

// EventBundle handles GET /events/:id/bundle, a ZIP of the event's CSVs.
func (h *Handler) EventBundle(c *gin.Context) {
	eventID, ok := h.pathID(c, id.ParseEventID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exports.EventBundle(c.Request.Context(), h.caller(c), &buf, eventID); err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, "event-"+eventID.String()+".zip", "application/zip", buf.Bytes())
}
