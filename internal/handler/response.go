package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogpulse/internal/domain"
	"blogpulse/internal/middleware"
	"blogpulse/pkg/errors"
	"blogpulse/pkg/logger"
)

// SuccessResponse is the envelope of every successful API response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// sendJSON writes v with the given status
func sendJSON(w http.ResponseWriter, log *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// sendSuccess wraps data in the success envelope
func sendSuccess(w http.ResponseWriter, log *logger.Logger, data interface{}) {
	sendJSON(w, log, http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// sendError maps err to the error envelope. Errors that are not AppErrors
// are reported as internal without leaking their message.
func sendError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := errors.AsAppError(err)

	entry := log.WithError(err).WithField("path", r.URL.Path)
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.RequestIDFromContext(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	sendJSON(w, log, appErr.StatusCode, response)
}

// getRealIPAddress extracts the client IP, preferring proxy headers
func getRealIPAddress(r *http.Request) string {
	headers := []string{
		"CF-Connecting-IP", // Cloudflare
		"X-Forwarded-For",  // Standard proxy header
		"X-Real-IP",        // Nginx proxy
	}

	for _, header := range headers {
		ip := r.Header.Get(header)
		if ip == "" {
			continue
		}
		// X-Forwarded-For can contain multiple IPs, take the first one
		if header == "X-Forwarded-For" {
			if first := getFirstIP(ip); first != "" {
				return first
			}
			continue
		}
		return strings.TrimSpace(ip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// getFirstIP extracts the first IP from a comma-separated list
func getFirstIP(ips string) string {
	first, _, _ := strings.Cut(ips, ",")
	return strings.TrimSpace(first)
}

// requestMeta collects what the server observed about the caller
func requestMeta(r *http.Request) domain.RequestMeta {
	return domain.RequestMeta{
		IP:        getRealIPAddress(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		Session:   middleware.SessionFromContext(r.Context()),
	}
}

// intQuery parses a non-negative integer query parameter. Missing or
// malformed values yield 0 so callers apply their default.
func intQuery(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
