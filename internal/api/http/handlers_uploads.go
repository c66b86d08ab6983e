package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"videostream/internal/usecase"
)

type beginUploadRequest struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Size     int64  `json:"size"`
}

func (s *Server) handleBeginUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "uploads not configured")
		return
	}
	user := requestUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	var body beginUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	session, err := s.uploads.Begin(r.Context(), user, usecase.BeginUploadInput{
		Filename: body.Filename,
		Title:    body.Title,
		Size:     body.Size,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	w.Header().Set("Upload-Offset", "0")
	writeJSON(w, http.StatusCreated, session)
}

// handleUploadChunk appends one Content-Range chunk. It answers 200 while
// bytes are missing and 201 with the registered video once the last chunk
// lands. "Content-Range: bytes */<size>" with an empty body retries the
// registration of a fully received upload.
func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "uploads not configured")
		return
	}
	user := requestUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	id := r.PathValue("id")
	session, err := s.uploads.Get(user, id)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	start, length, total, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if total >= 0 && total != session.Size {
		writeError(w, http.StatusBadRequest, "invalid_request", "content range total does not match upload size")
		return
	}
	if r.ContentLength >= 0 && r.ContentLength != length {
		writeError(w, http.StatusBadRequest, "invalid_request", "content length does not match content range")
		return
	}

	result, err := s.uploads.AppendChunk(r.Context(), user, id, start, length, r.Body)
	if err != nil {
		if errors.Is(err, usecase.ErrChunkOffset) {
			w.Header().Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
		}
		writeUseCaseError(w, err)
		return
	}
	w.Header().Set("Upload-Offset", strconv.FormatInt(result.Session.Offset, 10))
	status := http.StatusOK
	if result.Video != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "uploads not configured")
		return
	}
	session, err := s.uploads.Get(requestUser(r), r.PathValue("id"))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	w.Header().Set("Upload-Offset", strconv.FormatInt(session.Offset, 10))
	writeJSON(w, http.StatusOK, session)
}
