package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"videostream/internal/domain"
	"videostream/internal/events"
	"videostream/internal/usecase"
)

// wsInbound is a client message on the watch socket:
// {"type":"update","data":{...}} or {"type":"get_segments","data":{...}}.
type wsInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type getSegmentsRequest struct {
	Position *float64 `json:"position"`
	Quality  string   `json:"quality"`
}

// handleUploadWS relays the progress events of one upload session.
func (s *Server) handleUploadWS(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil || s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "websocket not available")
		return
	}
	user := socketUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	uploadID := r.PathValue("id")
	if _, err := s.uploads.Get(user, uploadID); err != nil {
		writeUseCaseError(w, err)
		return
	}
	s.serveSocket(w, r, events.UploadChannel(user, uploadID), nil, nil)
}

// handleWatchWS shares watch state between every session of one user on one
// video and answers segment lookups.
func (s *Server) handleWatchWS(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil || s.syncWatch == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "websocket not available")
		return
	}
	user := socketUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+userHeader)
		return
	}
	videoID := domain.VideoID(r.PathValue("id"))
	if !s.videoExists(w, r, videoID) {
		return
	}
	// A new session starts from the stored state so it can resume playback.
	state, err := s.syncWatch.Current(r.Context(), user, videoID)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	s.serveSocket(w, r, events.WatchChannel(user, videoID), func(ctx context.Context, c *wsClient, data []byte) {
		s.handleWatchMessage(ctx, c, user, videoID, data)
	}, usecase.NewWatchUpdateMessage(state))
}

// videoExists writes a 404 and returns false for unknown videos. Without a
// video repository every id is accepted.
func (s *Server) videoExists(w http.ResponseWriter, r *http.Request, id domain.VideoID) bool {
	if s.videos == nil {
		return true
	}
	if _, err := s.videos.Get(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "video not found")
			return false
		}
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return false
	}
	return true
}

// serveSocket upgrades the request and relays channel to the client. A
// non-nil greeting is the first message the client receives.
func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request, channel string, handle func(context.Context, *wsClient, []byte), greeting any) {
	// The connection outlives the handler, so its context must too.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	sub, err := s.broker.Subscribe(ctx, channel)
	if err != nil {
		cancel()
		s.logger.Error("ws subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "broker_unavailable", "event broker unavailable")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		_ = sub.Close()
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:    s.wsHub,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		sub:    sub,
		handle: handle,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !s.wsHub.join(client) {
		client.stop()
		_ = sub.Close()
		conn.Close()
		return
	}
	if greeting != nil {
		client.reply(greeting)
	}
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleWatchMessage(ctx context.Context, c *wsClient, userID string, videoID domain.VideoID, data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(segmentError{Type: "error", Code: "invalid_request", Message: "invalid JSON data received"})
		return
	}

	switch msg.Type {
	case "update":
		var upd usecase.WatchUpdate
		if err := decodeData(msg.Data, &upd); err != nil {
			c.reply(segmentError{Type: "error", Code: "invalid_request", Message: "invalid update payload"})
			return
		}
		// Success is echoed to every session, this one included, through
		// the watch channel.
		if _, err := s.syncWatch.Execute(ctx, userID, videoID, upd); err != nil {
			code := "internal_error"
			if errors.Is(err, usecase.ErrInvalidInput) {
				code = "invalid_request"
			}
			c.reply(segmentError{Type: "error", Code: code, Message: err.Error()})
		}
	case "get_segments":
		if s.resolveSegments == nil {
			c.reply(segmentError{Type: "error", Code: "unavailable", Message: "playback not configured"})
			return
		}
		var req getSegmentsRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.reply(segmentError{Type: "error", Code: "invalid_request", Message: "invalid get_segments payload"})
			return
		}
		position := 0.0
		if req.Position != nil {
			position = *req.Position
		}
		quality := req.Quality
		if quality == "" {
			quality = usecase.AutoQuality
		}
		info, err := s.resolveSegments.Execute(ctx, videoID, position, quality)
		if err != nil {
			_, payload := segmentErrorResponse(err)
			c.reply(payload)
			return
		}
		c.reply(info)
	default:
		c.reply(segmentError{Type: "error", Code: "invalid_request", Message: "unknown message type " + msg.Type})
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
