package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"videostream/internal/domain"
	"videostream/internal/pipeline"
	"videostream/internal/storage/memory"
	"videostream/internal/usecase"
)

type fakeResolveSegments struct {
	called   int
	videoID  domain.VideoID
	position float64
	quality  string
	result   usecase.SegmentInfo
	err      error
}

func (f *fakeResolveSegments) Execute(ctx context.Context, videoID domain.VideoID, position float64, quality string) (usecase.SegmentInfo, error) {
	f.called++
	f.videoID = videoID
	f.position = position
	f.quality = quality
	return f.result, f.err
}

type fakeRegisterVideo struct {
	called int
	input  usecase.RegisterVideoInput
	result usecase.RegisteredVideo
	err    error
}

func (f *fakeRegisterVideo) Execute(ctx context.Context, input usecase.RegisterVideoInput) (usecase.RegisteredVideo, error) {
	f.called++
	f.input = input
	return f.result, f.err
}

type fakeEnqueueJob struct {
	called  int
	videoID domain.VideoID
	jobType domain.JobType
	err     error
}

func (f *fakeEnqueueJob) Execute(ctx context.Context, videoID domain.VideoID, jobType domain.JobType) (domain.ProcessingJob, error) {
	f.called++
	f.videoID = videoID
	f.jobType = jobType
	if f.err != nil {
		return domain.ProcessingJob{}, f.err
	}
	return domain.ProcessingJob{ID: "j1", VideoID: videoID, Type: jobType, Status: domain.JobPending}, nil
}

type fakeGetJob struct {
	result domain.ProcessingJob
	err    error
}

func (f *fakeGetJob) Execute(ctx context.Context, id domain.JobID) (domain.ProcessingJob, error) {
	return f.result, f.err
}

type fakeListJobs struct {
	result []domain.ProcessingJob
	err    error
}

func (f *fakeListJobs) Execute(ctx context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error) {
	return f.result, f.err
}

type fakeUploads struct {
	session   usecase.UploadSession
	getErr    error
	beginUser string
	begin     usecase.BeginUploadInput
	start     int64
	length    int64
	body      string
	result    usecase.ChunkResult
	err       error
}

func (f *fakeUploads) Begin(ctx context.Context, userID string, in usecase.BeginUploadInput) (usecase.UploadSession, error) {
	f.beginUser = userID
	f.begin = in
	if f.err != nil {
		return usecase.UploadSession{}, f.err
	}
	return usecase.UploadSession{ID: "up1", UserID: userID, Filename: in.Filename, Size: in.Size}, nil
}

func (f *fakeUploads) AppendChunk(ctx context.Context, userID, uploadID string, start, length int64, r io.Reader) (usecase.ChunkResult, error) {
	data, _ := io.ReadAll(r)
	f.start, f.length, f.body = start, length, string(data)
	return f.result, f.err
}

func (f *fakeUploads) Get(userID, uploadID string) (usecase.UploadSession, error) {
	if f.getErr != nil {
		return usecase.UploadSession{}, f.getErr
	}
	if userID != f.session.UserID || uploadID != f.session.ID {
		return usecase.UploadSession{}, usecase.ErrUploadNotFound
	}
	return f.session, nil
}

type fakeVideos struct {
	videos map[domain.VideoID]domain.VideoRecord
	err    error
}

func (f *fakeVideos) Create(ctx context.Context, v domain.VideoRecord) error { return nil }

func (f *fakeVideos) Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	if f.err != nil {
		return domain.VideoRecord{}, f.err
	}
	v, ok := f.videos[id]
	if !ok {
		return domain.VideoRecord{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeVideos) Patch(ctx context.Context, id domain.VideoID, patch domain.VideoPatch, now time.Time) error {
	return nil
}

func serve(t *testing.T, s *Server, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rec.Body.String())
	}
	return env.Error.Code
}

func TestRegisterVideo(t *testing.T) {
	reg := &fakeRegisterVideo{result: usecase.RegisteredVideo{Video: domain.VideoRecord{ID: "v1", Title: "clip"}}}
	s := NewServer(nil, WithRegisterVideo(reg))
	defer s.Close()

	rec := serve(t, s, http.MethodPost, "/videos", strings.NewReader(`{"title":"clip","sourcePath":"/data/clip.mp4"}`), map[string]string{userHeader: "u1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if reg.input != (usecase.RegisterVideoInput{OwnerID: "u1", Title: "clip", SourcePath: "/data/clip.mp4"}) {
		t.Fatalf("unexpected input: %+v", reg.input)
	}

	reg.err = fmt.Errorf("%w: source file not found", usecase.ErrInvalidInput)
	rec = serve(t, s, http.MethodPost, "/videos", strings.NewReader(`{"sourcePath":"/missing"}`), nil)
	if rec.Code != http.StatusBadRequest || decodeErrorCode(t, rec) != "invalid_request" {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, s, http.MethodPost, "/videos", strings.NewReader(`{`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEnqueueJob(t *testing.T) {
	enqueue := &fakeEnqueueJob{}
	s := NewServer(nil, WithEnqueueJob(enqueue))
	defer s.Close()

	rec := serve(t, s, http.MethodPost, "/videos/v1/jobs", strings.NewReader(`{"type":"THUMBNAIL"}`), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if enqueue.videoID != "v1" || enqueue.jobType != domain.JobThumbnail {
		t.Fatalf("unexpected call: %+v", enqueue)
	}
	var job domain.ProcessingJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil || job.Status != domain.JobPending {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = serve(t, s, http.MethodPost, "/videos/v1/jobs", strings.NewReader(`{"type":"ENCODE"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d", rec.Code)
	}
	if enqueue.called != 1 {
		t.Fatalf("use case called for invalid type")
	}

	enqueue.err = domain.ErrNotFound
	rec = serve(t, s, http.MethodPost, "/videos/ghost/jobs", strings.NewReader(`{"type":"TRANSCODE"}`), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown video status = %d", rec.Code)
	}
}

func TestJobQueries(t *testing.T) {
	s := NewServer(nil,
		WithGetJob(&fakeGetJob{err: domain.ErrNotFound}),
		WithListJobs(&fakeListJobs{result: []domain.ProcessingJob{{ID: "j1"}, {ID: "j2"}}}),
	)
	defer s.Close()

	rec := serve(t, s, http.MethodGet, "/jobs/missing", nil, nil)
	if rec.Code != http.StatusNotFound || decodeErrorCode(t, rec) != "not_found" {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, s, http.MethodGet, "/videos/v1/jobs", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Items []domain.ProcessingJob `json:"items"`
		Count int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Count != 2 || len(body.Items) != 2 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	repoErr := NewServer(nil, WithGetJob(&fakeGetJob{err: fmt.Errorf("%w: timeout", usecase.ErrRepository)}))
	defer repoErr.Close()
	rec = serve(t, repoErr, http.MethodGet, "/jobs/j1", nil, nil)
	if rec.Code != http.StatusInternalServerError || decodeErrorCode(t, rec) != "repository_error" {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	resolve := &fakeResolveSegments{result: usecase.SegmentInfo{
		Type:         "segment_info",
		Segments:     []string{"https://cdn/videos/v1/segments/720p/segment_003.ts"},
		StartOffset:  5,
		SegmentIndex: 3,
		Quality:      "720p",
		VideoID:      "v1",
	}}
	s := NewServer(resolve)
	defer s.Close()

	rec := serve(t, s, http.MethodGet, "/videos/v1/segments?position=35&quality=720p", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resolve.videoID != "v1" || resolve.position != 35 || resolve.quality != "720p" {
		t.Fatalf("unexpected call: %+v", resolve)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["type"] != "segment_info" || body["start_offset"] != 5.0 || body["video_id"] != "v1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = serve(t, s, http.MethodGet, "/videos/v1/segments", nil, nil)
	if rec.Code != http.StatusOK || resolve.position != 0 || resolve.quality != usecase.AutoQuality {
		t.Fatalf("defaults not applied: %+v", resolve)
	}
}

func TestSegmentsEndpointErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
		code   string
	}{
		{"manifest missing", "position=0", fmt.Errorf("%w: not yet", domain.ErrManifestNotFound), http.StatusNotFound, "manifest_not_found"},
		{"out of range", "position=1000", fmt.Errorf("%w: segment 100 of 10", domain.ErrPositionOutOfRange), http.StatusRequestedRangeNotSatisfiable, "position_out_of_range"},
		{"negative", "position=-1", domain.ErrInvalidPosition, http.StatusBadRequest, "invalid_position"},
		{"not a number", "position=abc", nil, http.StatusBadRequest, "invalid_position"},
		{"store down", "position=1", fmt.Errorf("%w: timeout", usecase.ErrRepository), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeResolveSegments{err: tt.err})
			defer s.Close()
			rec := serve(t, s, http.MethodGet, "/videos/v1/segments?"+tt.query, nil, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var payload segmentError
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatal(err)
			}
			if payload.Type != "error" || payload.Code != tt.code || payload.Message == "" {
				t.Fatalf("unexpected payload: %+v", payload)
			}
		})
	}
}

func TestMediaServing(t *testing.T) {
	layout := pipeline.Layout{MediaDir: t.TempDir()}
	segDir := layout.SegmentDir("v1", "720p")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		t.Fatal(err)
	}
	master := []byte("#EXTM3U\n")
	if err := os.WriteFile(layout.MasterManifestPath("v1"), master, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(segDir, "segment_000.ts"), bytes.Repeat([]byte{0x47}, 376), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewServer(nil, WithMedia(layout))
	defer s.Close()

	rec := serve(t, s, http.MethodGet, "/videos/v1/master.m3u8", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != string(master) {
		t.Fatalf("master: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Fatalf("content type = %q", ct)
	}

	rec = serve(t, s, http.MethodGet, "/videos/v1/segments/720p/segment_000.ts", nil, map[string]string{"Range": "bytes=0-187"})
	if rec.Code != http.StatusPartialContent || rec.Body.Len() != 188 {
		t.Fatalf("segment range: %d len=%d", rec.Code, rec.Body.Len())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp2t" {
		t.Fatalf("content type = %q", ct)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/videos/v1/segments/720p/segment_009.ts", http.StatusNotFound},
		{"/videos/v2/master.m3u8", http.StatusNotFound},
		{"/videos/v1/thumbnail.jpg", http.StatusNotFound},
		{"/videos/v1/segments/720p/..%5Csecret", http.StatusBadRequest},
		{"/videos/..%5C..%5Cetc/master.m3u8", http.StatusBadRequest},
		{"/videos/..%5Csecret/thumbnail.jpg", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := serve(t, s, http.MethodGet, tt.target, nil, nil); rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d", tt.target, rec.Code, tt.status)
		}
	}
}

func TestGetVideo(t *testing.T) {
	s := NewServer(nil, WithVideos(&fakeVideos{videos: map[domain.VideoID]domain.VideoRecord{
		"v1": {ID: "v1", Title: "clip", SourcePath: "/secret/path.mp4", NativeQuality: "1080p"},
	}}))
	defer s.Close()

	rec := serve(t, s, http.MethodGet, "/videos/v1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "/secret/path.mp4") {
		t.Fatalf("source path leaked: %s", rec.Body.String())
	}
	if rec := serve(t, s, http.MethodGet, "/videos/v9", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBeginUpload(t *testing.T) {
	uploads := &fakeUploads{}
	s := NewServer(nil, WithUploads(uploads))
	defer s.Close()

	rec := serve(t, s, http.MethodPost, "/uploads", strings.NewReader(`{"filename":"a.mp4","size":10}`), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	rec = serve(t, s, http.MethodPost, "/uploads", strings.NewReader(`{"filename":"a.mp4","size":10,"title":"A"}`), map[string]string{userHeader: "u1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if uploads.beginUser != "u1" || uploads.begin != (usecase.BeginUploadInput{Filename: "a.mp4", Title: "A", Size: 10}) {
		t.Fatalf("unexpected call: %+v", uploads)
	}
	var session map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil || session["uploadId"] != "up1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestUploadChunk(t *testing.T) {
	uploads := &fakeUploads{
		session: usecase.UploadSession{ID: "up1", UserID: "u1", Size: 10, Offset: 4},
		result:  usecase.ChunkResult{Session: usecase.UploadSession{ID: "up1", Offset: 10}, Video: &domain.VideoRecord{ID: "v1"}},
	}
	s := NewServer(nil, WithUploads(uploads))
	defer s.Close()

	headers := map[string]string{userHeader: "u1", "Content-Range": "bytes 4-9/10"}
	rec := serve(t, s, http.MethodPut, "/uploads/up1", strings.NewReader("efghij"), headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if uploads.start != 4 || uploads.length != 6 || uploads.body != "efghij" {
		t.Fatalf("unexpected chunk: %+v", uploads)
	}
	if got := rec.Header().Get("Upload-Offset"); got != "10" {
		t.Fatalf("Upload-Offset = %q", got)
	}

	uploads.result = usecase.ChunkResult{Session: usecase.UploadSession{ID: "up1", Offset: 6}}
	rec = serve(t, s, http.MethodPut, "/uploads/up1", strings.NewReader("ef"), map[string]string{userHeader: "u1", "Content-Range": "bytes 4-5/*"})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial status = %d", rec.Code)
	}

	uploads.result = usecase.ChunkResult{Session: usecase.UploadSession{ID: "up1", Offset: 10, VideoID: "v1"}, Video: &domain.VideoRecord{ID: "v1"}}
	rec = serve(t, s, http.MethodPut, "/uploads/up1", strings.NewReader(""), map[string]string{userHeader: "u1", "Content-Range": "bytes */10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("finalize status = %d: %s", rec.Code, rec.Body.String())
	}
	if uploads.start != 10 || uploads.length != 0 || uploads.body != "" {
		t.Fatalf("finalize chunk: start=%d length=%d body=%q", uploads.start, uploads.length, uploads.body)
	}
}

func TestUploadChunkErrors(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		body    string
		err     error
		status  int
		code    string
	}{
		{"anonymous", map[string]string{"Content-Range": "bytes 0-1/10"}, "ab", nil, http.StatusUnauthorized, "unauthorized"},
		{"other user", map[string]string{userHeader: "u2", "Content-Range": "bytes 0-1/10"}, "ab", nil, http.StatusNotFound, "not_found"},
		{"no range", map[string]string{userHeader: "u1"}, "ab", nil, http.StatusBadRequest, "invalid_request"},
		{"bad range", map[string]string{userHeader: "u1", "Content-Range": "bytes 5-1/10"}, "ab", nil, http.StatusBadRequest, "invalid_request"},
		{"wrong total", map[string]string{userHeader: "u1", "Content-Range": "bytes 0-1/11"}, "ab", nil, http.StatusBadRequest, "invalid_request"},
		{"length mismatch", map[string]string{userHeader: "u1", "Content-Range": "bytes 0-3/10"}, "ab", nil, http.StatusBadRequest, "invalid_request"},
		{"offset mismatch", map[string]string{userHeader: "u1", "Content-Range": "bytes 0-1/10"}, "ab", fmt.Errorf("%w: got 0, want 4", usecase.ErrChunkOffset), http.StatusConflict, "offset_mismatch"},
		{"completed", map[string]string{userHeader: "u1", "Content-Range": "bytes 0-1/10"}, "ab", usecase.ErrUploadCompleted, http.StatusConflict, "upload_completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := &fakeUploads{session: usecase.UploadSession{ID: "up1", UserID: "u1", Size: 10, Offset: 4}, err: tt.err}
			s := NewServer(nil, WithUploads(uploads))
			defer s.Close()
			rec := serve(t, s, http.MethodPut, "/uploads/up1", strings.NewReader(tt.body), tt.headers)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if code := decodeErrorCode(t, rec); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
			if tt.code == "offset_mismatch" && rec.Header().Get("Upload-Offset") != "4" {
				t.Fatalf("Upload-Offset = %q", rec.Header().Get("Upload-Offset"))
			}
		})
	}
}

func TestGetUpload(t *testing.T) {
	uploads := &fakeUploads{session: usecase.UploadSession{ID: "up1", UserID: "u1", Size: 10, Offset: 4}}
	s := NewServer(nil, WithUploads(uploads))
	defer s.Close()

	rec := serve(t, s, http.MethodGet, "/uploads/up1", nil, map[string]string{userHeader: "u1"})
	if rec.Code != http.StatusOK || rec.Header().Get("Upload-Offset") != "4" {
		t.Fatalf("status = %d offset=%q", rec.Code, rec.Header().Get("Upload-Offset"))
	}
	if rec := serve(t, s, http.MethodGet, "/uploads/up1", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}

func TestWatchStateEndpoints(t *testing.T) {
	syncWatch := usecase.SyncWatchState{States: memory.NewWatchStateStore()}
	videos := &fakeVideos{videos: map[domain.VideoID]domain.VideoRecord{"v1": {ID: "v1"}}}
	s := NewServer(nil, WithSyncWatchState(syncWatch), WithVideos(videos))
	defer s.Close()
	user := map[string]string{userHeader: "u1"}

	rec := serve(t, s, http.MethodPost, "/videos/v1/watch", strings.NewReader(`{"position":12.5,"speed":2}`), user)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = serve(t, s, http.MethodGet, "/videos/v1/watch", nil, user)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var state domain.WatchState
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.Position != 12.5 || state.Speed != 2 || state.Quality != "auto" || state.VideoID != "v1" {
		t.Fatalf("state = %+v", state)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		header map[string]string
		status int
	}{
		{"anonymous read", http.MethodGet, "/videos/v1/watch", "", nil, http.StatusUnauthorized},
		{"anonymous write", http.MethodPost, "/videos/v1/watch", `{}`, nil, http.StatusUnauthorized},
		{"unknown video", http.MethodGet, "/videos/ghost/watch", "", user, http.StatusNotFound},
		{"bad json", http.MethodPost, "/videos/v1/watch", `{`, user, http.StatusBadRequest},
		{"negative volume", http.MethodPost, "/videos/v1/watch", `{"volume":-1}`, user, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, s, tt.method, tt.target, strings.NewReader(tt.body), tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestNotConfiguredEndpoints(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()
	for _, target := range []string{"/videos/v1/segments", "/jobs/j1", "/videos/v1/jobs", "/videos/v1/master.m3u8", "/videos/v1", "/videos/v1/watch"} {
		if rec := serve(t, s, http.MethodGet, target, nil, nil); rec.Code != http.StatusNotImplemented {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(nil, WithHealthCheck("mongo", func(context.Context) error { return nil }))
	defer s.Close()
	if rec := serve(t, s, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	degraded := NewServer(nil,
		WithHealthCheck("mongo", func(context.Context) error { return nil }),
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	defer degraded.Close()
	rec := serve(t, degraded, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()
	if rec := serve(t, s, http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
