package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validate"
)

func (a *API) GetInvoice(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	inv, err := a.invoices.GetByID(c.Request.Context(), invoiceID)
	if err != nil {
		respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (a *API) ListInvoices(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	invs, err := a.invoices.List(c.Request.Context(), offset, limit)
	if err != nil {
		respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invs, "count": len(invs)})
}

func (a *API) SearchInvoices(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	invs, err := a.invoices.Search(c.Request.Context(), query, limit)
	if err != nil {
		respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invs, "count": len(invs)})
}

func (a *API) UpdateInvoice(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	var fields validate.CleanedFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := a.invoices.Update(c.Request.Context(), invoiceID, fields)
	if err != nil {
		respondRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (a *API) DeleteInvoice(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	if err := a.invoices.Delete(c.Request.Context(), invoiceID); err != nil {
		respondRepoError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportInvoices streams an XLSX workbook filtered by an optional date window
// (from/to as YYYY-MM-DD query params).
func (a *API) ExportInvoices(c *gin.Context) {
	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := a.exporter.ExportInvoicesXLSX(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func parseDateQuery(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return &t, nil
}

func respondRepoError(c *gin.Context, err error) {
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
