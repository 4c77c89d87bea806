package handler

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/service"
)

// DownloadHandler streams archived documents back to clients, singly,
// bundled as a zip, or as an XLSX workbook.
type DownloadHandler struct {
	invoices *service.InvoiceService
	export   *service.ExportService
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(invoices *service.InvoiceService, export *service.ExportService) *DownloadHandler {
	return &DownloadHandler{invoices: invoices, export: export}
}

// Download handles GET /download/:id, streaming one archived document.
func (h *DownloadHandler) Download(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	rec, err := h.invoices.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	rc, err := h.invoices.Open(ctx, rec)
	if err != nil {
		logger.CtxError(ctx, "Failed to open archived file for invoice %d: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "archived file not available"})
		return
	}
	defer rc.Close()

	name := path.Base(rec.FilePath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", "application/pdf")
	if _, err := io.Copy(c.Writer, rc); err != nil {
		logger.CtxWarn(ctx, "Download interrupted for invoice %d: %v", id, err)
	}
}

// BundleRequest selects the records to include in a zip bundle.
type BundleRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// DownloadZip handles POST /download/zip, bundling the selected
// archived documents into a single zip. Records whose file cannot be
// opened are skipped.
func (h *DownloadHandler) DownloadZip(c *gin.Context) {
	ctx := c.Request.Context()

	var req BundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recs, err := h.invoices.GetByIDs(ctx, req.IDs)
	if err != nil {
		logger.CtxError(ctx, "Failed to load invoices for bundle: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoices"})
		return
	}
	if len(recs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching invoices"})
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	added := 0
	for i := range recs {
		rec := &recs[i]
		rc, err := h.invoices.Open(ctx, rec)
		if err != nil {
			logger.CtxWarn(ctx, "Skipping invoice %d in bundle: %v", rec.ID, err)
			continue
		}
		name := fmt.Sprintf("%d_%s", rec.ID, path.Base(rec.FilePath))
		w, err := zw.Create(name)
		if err == nil {
			_, err = io.Copy(w, rc)
		}
		rc.Close()
		if err != nil {
			logger.CtxError(ctx, "Failed to bundle invoice %d: %v", rec.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build zip"})
			return
		}
		added++
	}
	if err := zw.Close(); err != nil {
		logger.CtxError(ctx, "Failed to finalize zip bundle: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build zip"})
		return
	}
	if added == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no archived files available"})
		return
	}

	filename := fmt.Sprintf("invoices_%s.zip", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// ExportXLSX handles GET /export/xlsx?search=term.
func (h *DownloadHandler) ExportXLSX(c *gin.Context) {
	ctx := c.Request.Context()

	data, err := h.export.ExportXLSX(ctx, c.Query("search"))
	if err != nil {
		logger.CtxError(ctx, "Failed to export workbook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export workbook"})
		return
	}

	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
