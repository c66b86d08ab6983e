package domain

import "time"

// WatchState is the last reported player state of one user on one video.
type WatchState struct {
	UserID    string    `json:"userId"`
	VideoID   VideoID   `json:"videoId"`
	Position  float64   `json:"position"`
	Quality   string    `json:"quality"`
	Speed     float64   `json:"speed"`
	Volume    float64   `json:"volume"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func DefaultWatchState(userID string, videoID VideoID) WatchState {
	return WatchState{
		UserID:  userID,
		VideoID: videoID,
		Quality: "auto",
		Speed:   1.0,
		Volume:  1.0,
	}
}
