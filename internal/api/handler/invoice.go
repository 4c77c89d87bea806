package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/service"
)

// InvoiceHandler serves record listing and editing endpoints.
type InvoiceHandler struct {
	invoices *service.InvoiceService
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(invoices *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// List handles GET /invoices?search=term. An empty term lists all
// records, newest issue date first.
func (h *InvoiceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	term := c.Query("search")
	recs, summary, err := h.invoices.Search(ctx, term)
	if err != nil {
		logger.CtxError(ctx, "Failed to search invoices: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query invoices"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices": recs,
		"summary":  summary,
	})
}

// UpdateRequest carries the editable fields of a record. Pointer fields
// distinguish "not sent" from explicit empty values.
type UpdateRequest struct {
	InvoiceCode   *string  `json:"invoice_code"`
	InvoiceNumber *string  `json:"invoice_number"`
	IssueDate     *string  `json:"issue_date"`
	Amount        *float64 `json:"amount"`
	TotalAmount   *float64 `json:"total_amount"`
	BuyerName     *string  `json:"buyer_name"`
	BuyerTaxID    *string  `json:"buyer_tax_id"`
	SellerName    *string  `json:"seller_name"`
	SellerTaxID   *string  `json:"seller_tax_id"`
}

// Update handles PUT /invoices/:id.
func (h *InvoiceHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.invoices.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	if req.InvoiceCode != nil {
		rec.InvoiceCode = *req.InvoiceCode
	}
	if req.InvoiceNumber != nil {
		rec.InvoiceNumber = *req.InvoiceNumber
	}
	if req.IssueDate != nil {
		d, err := time.Parse(time.DateOnly, *req.IssueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "issue_date must be YYYY-MM-DD"})
			return
		}
		rec.IssueDate = d
	}
	if req.Amount != nil {
		rec.Amount = *req.Amount
	}
	if req.TotalAmount != nil {
		rec.TotalAmount = *req.TotalAmount
	}
	if req.BuyerName != nil {
		rec.BuyerName = *req.BuyerName
	}
	if req.BuyerTaxID != nil {
		rec.BuyerTaxID = *req.BuyerTaxID
	}
	if req.SellerName != nil {
		rec.SellerName = *req.SellerName
	}
	if req.SellerTaxID != nil {
		rec.SellerTaxID = *req.SellerTaxID
	}

	if err := h.invoices.Update(ctx, rec); err != nil {
		logger.CtxError(ctx, "Failed to update invoice %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update invoice"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// Delete handles DELETE /invoices/:id. The archived file is removed
// along with the record.
func (h *InvoiceHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	if _, err := h.invoices.Get(ctx, id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	if err := h.invoices.Delete(ctx, id); err != nil {
		logger.CtxError(ctx, "Failed to delete invoice %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete invoice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "invoice deleted"})
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
