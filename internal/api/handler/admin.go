package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/service"
)

// AdminHandler exposes destructive maintenance operations.
type AdminHandler struct {
	invoices *service.InvoiceService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(invoices *service.InvoiceService) *AdminHandler {
	return &AdminHandler{invoices: invoices}
}

// ClearAll handles POST /clear-all. Every record, job and archived
// file is removed.
func (h *AdminHandler) ClearAll(c *gin.Context) {
	ctx := c.Request.Context()

	logger.CtxWarn(ctx, "Clear-all requested: client_ip=%s", c.ClientIP())
	if err := h.invoices.ClearAll(ctx); err != nil {
		logger.CtxError(ctx, "Clear-all failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all records cleared"})
}
