package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"videostream/internal/domain"
)

type VideoStore struct {
	mu     sync.RWMutex
	videos map[domain.VideoID]domain.VideoRecord
}

func NewVideoStore() *VideoStore {
	return &VideoStore{videos: make(map[domain.VideoID]domain.VideoRecord)}
}

func (s *VideoStore) Create(_ context.Context, video domain.VideoRecord) error {
	if video.ID == "" {
		return errors.New("video id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; ok {
		return domain.ErrAlreadyExists
	}
	video.Qualities = append(domain.QualityLadder(nil), video.Qualities...)
	s.videos[video.ID] = video
	return nil
}

func (s *VideoStore) Get(_ context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.videos[id]
	if !ok {
		return domain.VideoRecord{}, domain.ErrNotFound
	}
	video.Qualities = append(domain.QualityLadder(nil), video.Qualities...)
	return video, nil
}

func (s *VideoStore) Patch(_ context.Context, id domain.VideoID, patch domain.VideoPatch, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Empty() {
		return nil
	}
	video = patch.Apply(video)
	video.UpdatedAt = now
	s.videos[id] = video
	return nil
}

type watchKey struct {
	userID  string
	videoID domain.VideoID
}

type WatchStateStore struct {
	mu     sync.RWMutex
	states map[watchKey]domain.WatchState
}

func NewWatchStateStore() *WatchStateStore {
	return &WatchStateStore{states: make(map[watchKey]domain.WatchState)}
}

func (s *WatchStateStore) Upsert(_ context.Context, state domain.WatchState) error {
	if state.UserID == "" || state.VideoID == "" {
		return errors.New("user id and video id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[watchKey{state.UserID, state.VideoID}] = state
	return nil
}

func (s *WatchStateStore) Get(_ context.Context, userID string, videoID domain.VideoID) (domain.WatchState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[watchKey{userID, videoID}]
	if !ok {
		return domain.WatchState{}, domain.ErrNotFound
	}
	return state, nil
}
