package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"videostream/internal/domain"
	"videostream/internal/usecase"
)

// userHeader carries the caller's identity, set by the trusted proxy in front
// of the service.
const userHeader = "X-User-ID"

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// segmentError is the error shape shared by the segments endpoint and the
// watch socket, so players handle both the same way.
type segmentError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUseCaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput), errors.Is(err, domain.ErrInvalidJobType):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, usecase.ErrUploadNotFound):
		writeError(w, http.StatusNotFound, "not_found", "upload not found")
	case errors.Is(err, usecase.ErrChunkOffset):
		writeError(w, http.StatusConflict, "offset_mismatch", err.Error())
	case errors.Is(err, usecase.ErrUploadCompleted):
		writeError(w, http.StatusConflict, "upload_completed", "upload already completed")
	case errors.Is(err, usecase.ErrRepository):
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// segmentErrorResponse maps resolver failures to a status and payload.
func segmentErrorResponse(err error) (int, segmentError) {
	payload := segmentError{Type: "error", Message: err.Error()}
	switch {
	case errors.Is(err, domain.ErrManifestNotFound):
		payload.Code = "manifest_not_found"
		return http.StatusNotFound, payload
	case errors.Is(err, domain.ErrPositionOutOfRange):
		payload.Code = "position_out_of_range"
		return http.StatusRequestedRangeNotSatisfiable, payload
	case errors.Is(err, domain.ErrInvalidPosition), errors.Is(err, usecase.ErrInvalidInput):
		payload.Code = "invalid_position"
		return http.StatusBadRequest, payload
	default:
		payload.Code = "unavailable"
		payload.Message = "segment lookup unavailable"
		return http.StatusServiceUnavailable, payload
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

// socketUser also accepts ?user= because browsers cannot set headers on a
// WebSocket handshake.
func socketUser(r *http.Request) string {
	if user := requestUser(r); user != "" {
		return user
	}
	return strings.TrimSpace(r.URL.Query().Get("user"))
}

var (
	errInvalidContentRange = errors.New("invalid content range")
	errMissingContentRange = errors.New("missing content range")
)

// parseContentRange parses "bytes start-end/total" and returns the chunk's
// start and length. total is -1 when given as "*". The empty form
// "bytes */total" is a zero-length chunk at offset total, used to finalize
// an upload whose bytes all arrived.
func parseContentRange(value string) (start, length, total int64, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, 0, errMissingContentRange
	}
	if !strings.HasPrefix(strings.ToLower(value), "bytes ") {
		return 0, 0, 0, errInvalidContentRange
	}
	spec := strings.TrimSpace(value[len("bytes "):])
	rangePart, totalPart, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, errInvalidContentRange
	}
	if strings.TrimSpace(rangePart) == "*" {
		total, err = strconv.ParseInt(strings.TrimSpace(totalPart), 10, 64)
		if err != nil || total <= 0 {
			return 0, 0, 0, errInvalidContentRange
		}
		return total, 0, total, nil
	}
	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, 0, errInvalidContentRange
	}
	start, err = strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, 0, errInvalidContentRange
	}
	end, err := strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil || end < start {
		return 0, 0, 0, errInvalidContentRange
	}
	total = -1
	if t := strings.TrimSpace(totalPart); t != "*" {
		total, err = strconv.ParseInt(t, 10, 64)
		if err != nil || total <= end {
			return 0, 0, 0, errInvalidContentRange
		}
	}
	return start, end - start + 1, total, nil
}

// parsePosition reads the position query value; empty means the start.
func parsePosition(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func mediaContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
