package api

import (
	"github.com/gin-gonic/gin"

	dues "github.com/xraph/dues"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/receipt"
)

// GenerateDuesRequest is the body of POST /dues/generate.
type GenerateDuesRequest struct {
	Month string `json:"month" binding:"omitempty,datetime=2006-01"` // empty means the current month
}

// GenerateDues handles POST /dues/generate. It is safe to repeat; only
// missing dues are created.
func (h *Handler) GenerateDues(c *gin.Context) {
	var req GenerateDuesRequest
	if !h.bindOptional(c, &req) {
		return
	}
	n, err := h.engine.EnsureDuesForMonthKey(c.Request.Context(), h.caller(c), req.Month)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, gin.H{"created": n})
}

// PayMonthlyDue handles POST /dues/:id/pay.
func (h *Handler) PayMonthlyDue(c *gin.Context) {
	dueID, ok := h.pathID(c, id.ParseDueID)
	if !ok {
		return
	}
	in, ok := h.bindPayment(c)
	if !ok {
		return
	}
	r, err := h.engine.PayMonthlyDue(c.Request.Context(), h.caller(c), dueID, in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, r)
}

// ListReceipts handles GET /receipts?player_id=&kind=&source=&from=&to=.
// kind and source may repeat.
func (h *Handler) ListReceipts(c *gin.Context) {
	opts, ok := h.receiptQuery(c)
	if !ok {
		return
	}
	receipts, err := h.engine.ListReceipts(c.Request.Context(), h.caller(c), opts)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, receipts)
}

// IssueReceipt handles POST /receipts with a dues.IssueInput body.
func (h *Handler) IssueReceipt(c *gin.Context) {
	var req dues.IssueInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	r, err := h.engine.IssueReceipt(c.Request.Context(), h.caller(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, r)
}

// PayDebt handles POST /receipts/:id/pay, settling a debt receipt.
func (h *Handler) PayDebt(c *gin.Context) {
	debtID, ok := h.pathID(c, id.ParseReceiptID)
	if !ok {
		return
	}
	in, ok := h.bindPayment(c)
	if !ok {
		return
	}
	r, err := h.engine.PayDebt(c.Request.Context(), h.caller(c), debtID, in)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.created(c, r)
}

// bindPayment reads an optional dues.PaymentInput body.
func (h *Handler) bindPayment(c *gin.Context) (dues.PaymentInput, bool) {
	var in dues.PaymentInput
	ok := h.bindOptional(c, &in)
	return in, ok
}

// bindOptional binds a JSON body when one was sent. On failure it writes
// a 400 and returns false.
func (h *Handler) bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		h.badRequest(c, err.Error())
		return false
	}
	return true
}

// receiptQuery builds receipt.ListOpts from the query string.
func (h *Handler) receiptQuery(c *gin.Context) (receipt.ListOpts, bool) {
	from, to, ok := h.queryRange(c)
	if !ok {
		return receipt.ListOpts{}, false
	}
	opts := receipt.ListOpts{
		From:          from,
		To:            to,
		MissingNumber: queryBool(c, "missing_number"),
		Limit:         queryInt(c, "limit"),
		Offset:        queryInt(c, "offset"),
	}
	if s := c.Query("player_id"); s != "" {
		playerID, err := id.ParsePlayerID(s)
		if err != nil {
			h.badRequest(c, "Invalid player_id")
			return opts, false
		}
		opts.PlayerID = playerID
	}
	for _, k := range c.QueryArray("kind") {
		kind := receipt.Kind(k)
		if !kind.IsValid() {
			h.badRequest(c, "Unknown receipt kind: "+k)
			return opts, false
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	for _, s := range c.QueryArray("source") {
		source := receipt.Source(s)
		if !source.IsValid() {
			h.badRequest(c, "Unknown receipt source: "+s)
			return opts, false
		}
		opts.Sources = append(opts.Sources, source)
	}
	return opts, true
}
