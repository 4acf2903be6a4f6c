package http

import (
	"context"
	"encoding/base64"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/InboxGo/internal/mail"
	apperrors "github.com/utafrali/InboxGo/pkg/errors"
	"github.com/utafrali/InboxGo/pkg/httputil"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 100
)

// MailReader reads the delegated mailbox.
type MailReader interface {
	List(ctx context.Context, max int) ([]mail.Message, error)
	Get(ctx context.Context, id string) (*mail.Message, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// EmailHandler exposes the mailbox over HTTP.
type EmailHandler struct {
	mail   MailReader
	logger *slog.Logger
}

// NewEmailHandler creates a new email HTTP handler.
func NewEmailHandler(m MailReader, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{mail: m, logger: logger}
}

// List handles GET /api/v1/emails
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	max := defaultMaxResults
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMaxResults {
			httputil.WriteError(w, r, apperrors.InvalidInput("max_results must be an integer between 1 and 100"), h.logger)
			return
		}
		max = n
	}

	msgs, err := h.mail.List(r.Context(), max)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, msgs)
}

// Get handles GET /api/v1/emails/{id}
func (h *EmailHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, err := h.mail.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, msg)
}

// Download handles GET /api/v1/emails/{id}/attachments/{attachmentId}
func (h *EmailHandler) Download(w http.ResponseWriter, r *http.Request) {
	attID := chi.URLParam(r, "attachmentId")
	data, err := h.mail.Attachment(r.Context(), chi.URLParam(r, "id"), attID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = attID
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// AttachmentBase64Response wraps an attachment body for JSON clients.
type AttachmentBase64Response struct {
	AttachmentData string `json:"attachment_data"`
}

// DownloadBase64 handles GET /api/v1/emails/{id}/attachments/{attachmentId}/base64
func (h *EmailHandler) DownloadBase64(w http.ResponseWriter, r *http.Request) {
	data, err := h.mail.Attachment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attachmentId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, AttachmentBase64Response{
		AttachmentData: base64.StdEncoding.EncodeToString(data),
	})
}
