// Package controllers implements the HTTP handlers of the upload API.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/response"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

// multipartMemory is the part of a multipart body kept in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

type UploadController struct {
	up      *uploader.Uploader
	maxBody int64
}

// NewUploadController serves up. maxFileSize bounds request bodies; 0
// leaves them unbounded.
func NewUploadController(up *uploader.Uploader, maxFileSize int64) *UploadController {
	c := &UploadController{up: up}
	if maxFileSize > 0 {
		// Room for the multipart envelope and plain fields.
		c.maxBody = maxFileSize + 1<<20
	}
	return c
}

// Store handles POST /api/uploads, the endpoint Fine Uploader posts to.
func (c *UploadController) Store(w http.ResponseWriter, r *http.Request) {
	if c.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.maxBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.UploadFailure(w, http.StatusRequestEntityTooLarge, "file too large", true)
			return
		}
		response.UploadFailure(w, http.StatusBadRequest, "invalid multipart body", true)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile("qqfile")
	if err != nil {
		response.UploadFailure(w, http.StatusBadRequest, "missing qqfile", true)
		return
	}
	defer file.Close()

	name := r.FormValue("qqfilename")
	if name == "" {
		name = hdr.Filename
	}

	rec, err := c.up.AddFile(r.Context(), name, file)
	if err != nil {
		status, preventRetry := statusFor(err)
		logger.WithCtx(r.Context()).Info("upload refused",
			"name", name, "client_uuid", r.FormValue("qquuid"), "status", status, "error", err)
		response.UploadFailure(w, status, err.Error(), preventRetry)
		return
	}
	response.UploadSuccess(w, http.StatusCreated, rec.UUID, rec)
}

// Index handles GET /api/uploads.
func (c *UploadController) Index(w http.ResponseWriter, r *http.Request) {
	recs, err := c.up.GetUploads(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, recs)
}

// Show handles GET /api/uploads/{id}.
func (c *UploadController) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	rec, err := c.up.GetUpload(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, rec)
}

// Content handles GET /api/uploads/{id}/content by streaming the stored
// blob back from the disk.
func (c *UploadController) Content(w http.ResponseWriter, r *http.Request) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	rec, err := c.up.GetUpload(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if rec.Status != uploader.StatusUploadSuccessful {
		fail(w, r, fmt.Errorf("%w: upload %d is %s", uploader.ErrInvalidState, id, rec.Status))
		return
	}

	rc, err := c.up.Disk().Get(r.Context(), rec.Path)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer rc.Close()

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	if _, err := io.Copy(w, rc); err != nil {
		logger.WithCtx(r.Context()).Warn("content stream aborted", "upload_id", id, "error", err)
	}
}

// Upload handles POST /api/uploads/{id}/upload.
func (c *UploadController) Upload(w http.ResponseWriter, r *http.Request) {
	c.act(w, r, c.up.Upload)
}

// UploadAll handles POST /api/uploads/start, queueing every submitted file.
func (c *UploadController) UploadAll(w http.ResponseWriter, r *http.Request) {
	n, err := c.up.UploadStoredFiles(r.Context())
	if err != nil && n == 0 {
		fail(w, r, err)
		return
	}
	body := map[string]any{"queued": n}
	if err != nil {
		body["error"] = err.Error()
	}
	response.Accepted(w, body)
}

// Prune handles POST /api/uploads/prune, forgetting rejected, canceled and
// deleted records.
func (c *UploadController) Prune(w http.ResponseWriter, r *http.Request) {
	n, err := c.up.Prune(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, map[string]any{"removed": n})
}

// Cancel handles POST /api/uploads/{id}/cancel.
func (c *UploadController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.act(w, r, c.up.Cancel)
}

// Retry handles POST /api/uploads/{id}/retry.
func (c *UploadController) Retry(w http.ResponseWriter, r *http.Request) {
	c.act(w, r, c.up.Retry)
}

// Destroy handles DELETE /api/uploads/{id}.
func (c *UploadController) Destroy(w http.ResponseWriter, r *http.Request) {
	c.act(w, r, c.up.Delete)
}

// act runs op on the id in the path and answers with the fresh record.
func (c *UploadController) act(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) error) {
	id, ok := uploadID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := c.up.GetUpload(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.UploadSuccess(w, http.StatusOK, rec.UUID, rec)
}

func uploadID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		response.NotFound(w)
		return 0, false
	}
	return id, true
}

// statusFor maps engine errors to an HTTP status and whether a client
// retry could help.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, uploader.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, uploader.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, true
	case errors.Is(err, uploader.ErrRejected),
		errors.Is(err, uploader.ErrExtension),
		errors.Is(err, uploader.ErrEmptyFile):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, uploader.ErrInvalidState):
		return http.StatusConflict, true
	default:
		return http.StatusInternalServerError, false
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, preventRetry := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithCtx(r.Context()).Error("upload api error", "error", err)
	}
	response.UploadFailure(w, status, err.Error(), preventRetry)
}
