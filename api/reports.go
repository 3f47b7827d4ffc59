package api

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

const csvContentType = "text/csv; charset=utf-8"

// Report handles GET /reports/summary?from=&to=.
func (h *Handler) Report(c *gin.Context) {
	from, to, ok := h.queryRange(c)
	if !ok {
		return
	}
	rep, err := h.engine.Report(c.Request.Context(), h.caller(c), from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, rep)
}

// MonthlyFees handles GET /reports/fees?month=YYYY-MM.
func (h *Handler) MonthlyFees(c *gin.Context) {
	fees, err := h.engine.MonthlyFees(c.Request.Context(), h.caller(c), c.Query("month"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, fees)
}

// ExportFees handles GET /exports/fees.csv?month=YYYY-MM.
func (h *Handler) ExportFees(c *gin.Context) {
	month := c.Query("month")
	var buf bytes.Buffer
	if err := h.exports.Fees(c.Request.Context(), h.caller(c), &buf, month); err != nil {
		h.handleError(c, err)
		return
	}
	name := "fees.csv"
	if month != "" {
		name = "fees-" + month + ".csv"
	}
	attachment(c, name, csvContentType, buf.Bytes())
}

// ExportPayments handles GET /exports/payments.csv with the same filters
// as GET /receipts.
func (h *Handler) ExportPayments(c *gin.Context) {
	opts, ok := h.receiptQuery(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exports.Payments(c.Request.Context(), h.caller(c), &buf, opts); err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, "payments.csv", csvContentType, buf.Bytes())
}

// ExportPlayers handles GET /exports/players.csv.
func (h *Handler) ExportPlayers(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.exports.Players(c.Request.Context(), h.caller(c), &buf); err != nil {
		h.handleError(c, err)
		return
	}
	attachment(c, "players.csv", csvContentType, buf.Bytes())
}

// RepairPaidFlags handles POST /sweeps/paid-flags.
func (h *Handler) RepairPaidFlags(c *gin.Context) {
	res, err := h.engine.RepairPaidFlags(c.Request.Context(), h.caller(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, res)
}

// AssignMissingNumbers handles POST /sweeps/receipt-numbers.
func (h *Handler) AssignMissingNumbers(c *gin.Context) {
	n, err := h.engine.AssignMissingNumbers(c.Request.Context(), h.caller(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.success(c, gin.H{"assigned": n})
}
