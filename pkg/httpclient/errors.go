package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/InboxGo/pkg/errors"
)

// maxErrorBody bounds how much of an error body is read.
const maxErrorBody = 1 << 20

// upstreamErrorResponse matches both our own envelope ({"error":{"code":"X"}})
// and Google-style bodies ({"error":{"code":404,"status":"NOT_FOUND"}}).
type upstreamErrorResponse struct {
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Status  string          `json:"status"`
		Message string          `json:"message"`
	} `json:"error"`
}

func (u upstreamErrorResponse) code() string {
	if u.Error.Status != "" {
		return u.Error.Status
	}
	raw := strings.Trim(string(u.Error.Code), `"`)
	if _, err := strconv.Atoi(raw); err == nil || raw == "" {
		return "UPSTREAM_ERROR"
	}
	return raw
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// translates it into an AppError named after serviceName.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	message := strings.TrimSpace(string(body))
	code := "UPSTREAM_ERROR"
	var upstream upstreamErrorResponse
	if json.Unmarshal(body, &upstream) == nil && upstream.Error != nil {
		message = upstream.Error.Message
		code = upstream.code()
	}
	return mapUpstreamError(resp.StatusCode, code, message, serviceName)
}

func mapUpstreamError(status int, code, message, serviceName string) error {
	qualified := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.New("NOT_FOUND", qualified, http.StatusNotFound, apperrors.ErrNotFound)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusTooManyRequests:
		return apperrors.New(code, qualified, http.StatusTooManyRequests, apperrors.ErrRateLimited)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		return apperrors.BadGateway(qualified)
	default:
		return apperrors.New(code, qualified, status, nil)
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
