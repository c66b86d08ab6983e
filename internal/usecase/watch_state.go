package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"videostream/internal/domain"
	"videostream/internal/domain/ports"
	"videostream/internal/events"
)

// WatchUpdate carries the player fields a client reported. Nil fields keep
// their stored value.
type WatchUpdate struct {
	Position *float64 `json:"position,omitempty"`
	Quality  *string  `json:"quality,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

// WatchUpdateMessage is fanned out to every session of the same user and
// video.
type WatchUpdateMessage struct {
	Type     string         `json:"type"`
	Position float64        `json:"position"`
	Quality  string         `json:"quality"`
	Speed    float64        `json:"speed"`
	Volume   float64        `json:"volume"`
	VideoID  domain.VideoID `json:"video_id"`
}

func NewWatchUpdateMessage(state domain.WatchState) WatchUpdateMessage {
	return WatchUpdateMessage{
		Type:     "watch_update",
		Position: state.Position,
		Quality:  state.Quality,
		Speed:    state.Speed,
		Volume:   state.Volume,
		VideoID:  state.VideoID,
	}
}

type SyncWatchState struct {
	States ports.WatchStateRepository
	Broker ports.EventBroker
	Logger *slog.Logger
	Now    func() time.Time
}

// Execute merges the update into the stored state (last write wins), saves
// it and publishes it on the user's watch channel.
func (uc SyncWatchState) Execute(ctx context.Context, userID string, videoID domain.VideoID, upd WatchUpdate) (domain.WatchState, error) {
	if userID == "" {
		return domain.WatchState{}, invalidInput("user is required")
	}
	if err := upd.validate(); err != nil {
		return domain.WatchState{}, err
	}

	state, err := uc.Current(ctx, userID, videoID)
	if err != nil {
		return domain.WatchState{}, err
	}
	if upd.Position != nil {
		state.Position = *upd.Position
	}
	if upd.Quality != nil {
		state.Quality = *upd.Quality
	}
	if upd.Speed != nil {
		state.Speed = *upd.Speed
	}
	if upd.Volume != nil {
		state.Volume = *upd.Volume
	}
	state.UpdatedAt = clock(uc.Now)

	if err := uc.States.Upsert(ctx, state); err != nil {
		return domain.WatchState{}, wrapRepo(err)
	}

	if uc.Broker != nil {
		payload, _ := json.Marshal(NewWatchUpdateMessage(state))
		if err := uc.Broker.Publish(ctx, events.WatchChannel(userID, videoID), payload); err != nil {
			uc.logger().Warn("watch state: publish failed",
				slog.String("videoId", string(videoID)),
				slog.String("error", err.Error()))
		}
	}
	return state, nil
}

// Current returns the stored state, or the defaults when the user has never
// watched the video.
func (uc SyncWatchState) Current(ctx context.Context, userID string, videoID domain.VideoID) (domain.WatchState, error) {
	if userID == "" {
		return domain.WatchState{}, invalidInput("user is required")
	}
	state, err := uc.States.Get(ctx, userID, videoID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.WatchState{}, wrapRepo(err)
		}
		return domain.DefaultWatchState(userID, videoID), nil
	}
	return state, nil
}

func (u WatchUpdate) validate() error {
	for _, v := range []*float64{u.Position, u.Speed, u.Volume} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0) {
			return invalidInput("position, speed and volume must be non-negative numbers")
		}
	}
	return nil
}

func (uc SyncWatchState) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
