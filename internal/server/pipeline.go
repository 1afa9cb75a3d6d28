package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 32 << 20

// ProcessInvoice accepts a multipart document upload and runs the full
// pipeline synchronously, returning the run result whatever its outcome.
func (a *API) ProcessInvoice(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	content, filename, err := readUpload(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoiceID, err := a.resolveInvoiceID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A failed run is still a well-formed result; the caller reads final_status.
	run := a.orc.ProcessInvoice(c.Request.Context(), invoiceID, filename, content)
	c.JSON(http.StatusOK, run)
}

// BatchProcess accepts multiple documents and queues them for asynchronous
// processing, returning the assigned invoice ids immediately.
func (a *API) BatchProcess(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	type accepted struct {
		InvoiceID int64  `json:"invoice_id"`
		Filename  string `json:"filename"`
	}
	queued := make([]accepted, 0, len(files))
	for _, fh := range files {
		content, filename, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", fh.Filename, err)})
			return
		}
		invoiceID, err := a.invoices.NextInvoiceID(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		job := async.Job{
			InvoiceID:   invoiceID,
			Filename:    filename,
			Content:     content,
			SubmittedAt: time.Now(),
			TraceID:     uuid.NewString(),
		}
		if err := a.queue.Enqueue(c.Request.Context(), job); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, async.ErrQueueClosed) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		queued = append(queued, accepted{InvoiceID: invoiceID, Filename: filename})
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// InvoiceStatus reports which pipeline artifacts exist for the invoice.
func (a *API) InvoiceStatus(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	report, err := a.orc.Status(c.Request.Context(), invoiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// CleanedData streams the stored cleaned artifact, or 404 when none exists.
func (a *API) CleanedData(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	data, err := a.orc.CleanedData(c.Request.Context(), invoiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no cleaned data for invoice %d", invoiceID)})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Reprocess re-runs validation from the stored extraction artifact.
func (a *API) Reprocess(c *gin.Context) {
	invoiceID, ok := pathInvoiceID(c)
	if !ok {
		return
	}
	run, err := a.orc.Reprocess(c.Request.Context(), invoiceID)
	if errors.Is(err, pipeline.ErrNoPriorExtraction) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              run.FinalStatus,
		"errors":              run.Errors,
		"warnings":            run.Warnings,
		"cleaned_object_name": run.Stages[constants.StageCleanedUpload].ObjectName,
	})
}

func (a *API) resolveInvoiceID(c *gin.Context) (int64, error) {
	if raw := c.PostForm("invoice_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid invoice_id %q", raw)
		}
		return id, nil
	}
	return a.invoices.NextInvoiceID(c.Request.Context())
}

func pathInvoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return 0, false
	}
	return id, true
}

func readUpload(fh *multipart.FileHeader) ([]byte, string, error) {
	ext := constants.ExtFromFilename(fh.Filename)
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return nil, "", fmt.Errorf("unsupported file type .%s", ext)
	}
	if fh.Size > maxUploadBytes {
		return nil, "", fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(content) == 0 {
		return nil, "", errors.New("file is empty")
	}
	return content, fh.Filename, nil
}
