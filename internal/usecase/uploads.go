package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"videostream/internal/domain"
	"videostream/internal/metrics"
)

var (
	ErrUploadNotFound  = errors.New("upload not found")
	ErrChunkOffset     = errors.New("chunk does not start at the current offset")
	ErrUploadCompleted = errors.New("upload already completed")
)

type UploadSession struct {
	ID        string         `json:"uploadId"`
	UserID    string         `json:"-"`
	Filename  string         `json:"filename"`
	Title     string         `json:"title"`
	Size      int64          `json:"size"`
	Offset    int64          `json:"offset"`
	Path      string         `json:"-"`
	StartedAt time.Time      `json:"startedAt"`
	VideoID   domain.VideoID `json:"videoId,omitempty"`
}

type BeginUploadInput struct {
	Filename string
	Title    string
	Size     int64
}

type ChunkResult struct {
	Session  UploadSession          `json:"upload"`
	Progress domain.UploadProgress  `json:"progress"`
	Video    *domain.VideoRecord    `json:"video,omitempty"`
	Jobs     []domain.ProcessingJob `json:"jobs,omitempty"`
}

// Uploads receives chunked uploads into Dir. Each chunk is appended at the
// session's current offset; the final chunk registers the video and enqueues
// its processing jobs. If registration fails after the last byte landed, a
// zero-length chunk at the final offset retries it.
//
// Sessions live in memory. Unfinished sessions idle for IdleTTL are dropped
// together with their partial file; finished ones stay readable for
// CompletedTTL. A zero TTL keeps sessions forever.
type Uploads struct {
	Dir          string
	Register     RegisterVideo
	Progress     ProgressReporter
	IdleTTL      time.Duration
	CompletedTTL time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
	NewID        func() string

	mu       sync.Mutex
	sessions map[string]*uploadState
}

type uploadState struct {
	mu      sync.Mutex
	session UploadSession
	// videoID is reserved on the first registration attempt so retries
	// resume the same record.
	videoID    domain.VideoID
	touched    time.Time
	finishedAt time.Time
}

func (u *Uploads) Begin(_ context.Context, userID string, in BeginUploadInput) (UploadSession, error) {
	if strings.TrimSpace(userID) == "" {
		return UploadSession{}, invalidInput("user is required")
	}
	if in.Size <= 0 {
		return UploadSession{}, invalidInput("size must be positive")
	}
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return UploadSession{}, invalidInput("filename is required")
	}
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return UploadSession{}, err
	}

	id := newID(u.NewID)
	path := filepath.Join(u.Dir, id+strings.ToLower(filepath.Ext(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return UploadSession{}, err
	}
	_ = f.Close()

	session := UploadSession{
		ID:        id,
		UserID:    userID,
		Filename:  name,
		Title:     strings.TrimSpace(in.Title),
		Size:      in.Size,
		Path:      path,
		StartedAt: clock(u.Now),
	}

	u.mu.Lock()
	if u.sessions == nil {
		u.sessions = make(map[string]*uploadState)
	}
	u.sessions[id] = &uploadState{session: session, touched: session.StartedAt}
	u.mu.Unlock()
	return session, nil
}

// AppendChunk writes length bytes from r at offset start. Sessions of other
// users are reported as ErrUploadNotFound. A zero-length chunk is accepted
// only at the final offset of a session whose registration failed.
func (u *Uploads) AppendChunk(ctx context.Context, userID, uploadID string, start, length int64, r io.Reader) (ChunkResult, error) {
	u.mu.Lock()
	state, ok := u.sessions[uploadID]
	u.mu.Unlock()
	if !ok || state.session.UserID != userID {
		return ChunkResult{}, ErrUploadNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	s := &state.session
	now := clock(u.Now)
	state.touched = now

	if s.VideoID != "" {
		return ChunkResult{}, ErrUploadCompleted
	}
	if start != s.Offset {
		return ChunkResult{}, fmt.Errorf("%w: got %d, want %d", ErrChunkOffset, start, s.Offset)
	}

	retryFinalize := length == 0 && s.Offset == s.Size
	if !retryFinalize {
		if length <= 0 || s.Offset+length > s.Size {
			return ChunkResult{}, invalidInput("chunk exceeds declared size")
		}
		written, err := appendToFile(s.Path, r, length)
		s.Offset += written
		metrics.UploadBytesTotal.Add(float64(written))
		if err != nil {
			return ChunkResult{}, err
		}
		if written != length {
			return ChunkResult{}, invalidInput(fmt.Sprintf("short chunk: got %d of %d bytes", written, length))
		}
	}

	elapsed := now.Sub(s.StartedAt)
	if s.Offset < s.Size {
		progress := domain.ComputeUploadProgress(s.Offset, s.Size, elapsed)
		progress.UserID, progress.UploadID = s.UserID, s.ID
		u.Progress.Report(ctx, progress)
		return ChunkResult{Session: *s, Progress: progress}, nil
	}

	if state.videoID == "" {
		state.videoID = domain.VideoID(newID(u.Register.NewID))
	}
	registered, err := u.Register.Execute(ctx, RegisterVideoInput{
		OwnerID:    s.UserID,
		Title:      titleOrFilename(s.Title, s.Filename),
		SourcePath: s.Path,
		VideoID:    state.videoID,
	})
	if err != nil {
		u.logger().Warn("upload: registration failed, awaiting finalize retry",
			slog.String("uploadId", s.ID),
			slog.String("videoId", string(state.videoID)),
			slog.String("error", err.Error()))
		return ChunkResult{}, err
	}
	s.VideoID = registered.Video.ID
	state.finishedAt = now

	progress := domain.CompletedUploadProgress(s.Size, elapsed, registered.Video.ID)
	progress.UserID, progress.UploadID = s.UserID, s.ID
	u.Progress.Report(ctx, progress)
	return ChunkResult{
		Session:  *s,
		Progress: progress,
		Video:    &registered.Video,
		Jobs:     registered.Jobs,
	}, nil
}

func (u *Uploads) Get(userID, uploadID string) (UploadSession, error) {
	u.mu.Lock()
	state, ok := u.sessions[uploadID]
	u.mu.Unlock()
	if !ok || state.session.UserID != userID {
		return UploadSession{}, ErrUploadNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.session, nil
}

// Run sweeps expired sessions until ctx is done. It returns at once when
// neither TTL is set.
func (u *Uploads) Run(ctx context.Context) error {
	interval := sweepInterval(u.IdleTTL, u.CompletedTTL)
	if interval == 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			u.Sweep()
		}
	}
}

// Sweep drops expired sessions and returns how many it removed. Partial
// files of unfinished sessions are deleted; a file that holds every byte is
// kept because a video record may already point at it. Sessions busy with a
// chunk are skipped.
func (u *Uploads) Sweep() int {
	now := clock(u.Now)

	u.mu.Lock()
	var expired []UploadSession
	for id, state := range u.sessions {
		if !state.mu.TryLock() {
			continue
		}
		if u.expired(state, now) {
			expired = append(expired, state.session)
			delete(u.sessions, id)
		}
		state.mu.Unlock()
	}
	u.mu.Unlock()

	for _, s := range expired {
		attrs := []any{slog.String("uploadId", s.ID), slog.Int64("offset", s.Offset), slog.Int64("size", s.Size)}
		if s.VideoID == "" && s.Offset < s.Size {
			if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
				attrs = append(attrs, slog.String("error", err.Error()))
				u.logger().Warn("upload: remove partial file failed", attrs...)
				continue
			}
		}
		u.logger().Info("upload session expired", attrs...)
	}
	return len(expired)
}

func (u *Uploads) expired(state *uploadState, now time.Time) bool {
	if state.session.VideoID != "" {
		return u.CompletedTTL > 0 && now.Sub(state.finishedAt) >= u.CompletedTTL
	}
	return u.IdleTTL > 0 && now.Sub(state.touched) >= u.IdleTTL
}

// sweepInterval is a quarter of the shortest positive TTL, at least a
// second, or zero when both are off.
func sweepInterval(ttls ...time.Duration) time.Duration {
	var shortest time.Duration
	for _, ttl := range ttls {
		if ttl > 0 && (shortest == 0 || ttl < shortest) {
			shortest = ttl
		}
	}
	if shortest == 0 {
		return 0
	}
	return max(shortest/4, time.Second)
}

func (u *Uploads) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

func appendToFile(path string, r io.Reader, length int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(f, io.LimitReader(r, length))
	closeErr := f.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}

func titleOrFilename(title, filename string) string {
	if title != "" {
		return title
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
