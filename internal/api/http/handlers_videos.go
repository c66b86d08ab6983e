package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"videostream/internal/domain"
	"videostream/internal/pipeline"
	"videostream/internal/usecase"
)

type registerVideoRequest struct {
	Title      string `json:"title"`
	SourcePath string `json:"sourcePath"`
}

type enqueueJobRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleRegisterVideo(w http.ResponseWriter, r *http.Request) {
	if s.registerVideo == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "video registration not configured")
		return
	}
	var body registerVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	result, err := s.registerVideo.Execute(r.Context(), usecase.RegisterVideoInput{
		OwnerID:    requestUser(r),
		Title:      body.Title,
		SourcePath: body.SourcePath,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	if s.videos == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "videos not configured")
		return
	}
	video, err := s.videos.Get(r.Context(), domain.VideoID(r.PathValue("id")))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	if s.enqueueJob == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job queue not configured")
		return
	}
	var body enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	jobType, err := domain.ParseJobType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be TRANSCODE or THUMBNAIL")
		return
	}
	job, err := s.enqueueJob.Execute(r.Context(), domain.VideoID(r.PathValue("id")), jobType)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.listJobs == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job queue not configured")
		return
	}
	jobs, err := s.listJobs.Execute(r.Context(), domain.VideoID(r.PathValue("id")))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs, "count": len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.getJob == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "job queue not configured")
		return
	}
	job, err := s.getJob.Execute(r.Context(), domain.JobID(r.PathValue("id")))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetWatchState(w http.ResponseWriter, r *http.Request) {
	if s.syncWatch == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch state not configured")
		return
	}
	user := requestUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	videoID := domain.VideoID(r.PathValue("id"))
	if !s.videoExists(w, r, videoID) {
		return
	}
	state, err := s.syncWatch.Current(r.Context(), user, videoID)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleUpdateWatchState is the HTTP twin of the socket "update" message,
// for players that report progress without holding a socket open.
func (s *Server) handleUpdateWatchState(w http.ResponseWriter, r *http.Request) {
	if s.syncWatch == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "watch state not configured")
		return
	}
	user := requestUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	videoID := domain.VideoID(r.PathValue("id"))
	if !s.videoExists(w, r, videoID) {
		return
	}
	var upd usecase.WatchUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	state, err := s.syncWatch.Execute(r.Context(), user, videoID, upd)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if s.resolveSegments == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "playback not configured")
		return
	}
	position, err := parsePosition(r.URL.Query().Get("position"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, segmentError{Type: "error", Code: "invalid_position", Message: "position must be a number"})
		return
	}
	quality := r.URL.Query().Get("quality")
	if quality == "" {
		quality = usecase.AutoQuality
	}
	info, err := s.resolveSegments.Execute(r.Context(), domain.VideoID(r.PathValue("id")), position, quality)
	if err != nil {
		status, payload := segmentErrorResponse(err)
		writeJSON(w, status, payload)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMasterManifest(w http.ResponseWriter, r *http.Request) {
	if s.layout == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "media not configured")
		return
	}
	path, err := s.layout.VideoFile(domain.VideoID(r.PathValue("id")), pipeline.MasterManifestName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid video id")
		return
	}
	s.serveMedia(w, r, path, "manifest not available")
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	if s.layout == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "media not configured")
		return
	}
	path, err := s.layout.VideoFile(domain.VideoID(r.PathValue("id")), pipeline.ThumbnailName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid video id")
		return
	}
	s.serveMedia(w, r, path, "thumbnail not available")
}

func (s *Server) handleSegmentFile(w http.ResponseWriter, r *http.Request) {
	if s.layout == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "media not configured")
		return
	}
	path, err := s.layout.SegmentFile(domain.VideoID(r.PathValue("id")), r.PathValue("quality"), r.PathValue("file"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid segment path")
		return
	}
	s.serveMedia(w, r, path, "segment not found")
}

// serveMedia streams a pipeline output file with Range support.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request, path, missing string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "not_found", missing)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "media unavailable")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", missing)
		return
	}
	w.Header().Set("Content-Type", mediaContentType(path))
	if mediaContentType(path) == "application/vnd.apple.mpegurl" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
