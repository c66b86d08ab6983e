// Package events names the pub/sub channels that carry upload progress and
// watch-state updates. Brokers live in the memory and redis subpackages.
package events

import "videostream/internal/domain"

// UploadChannel carries progress for one upload session of one user.
func UploadChannel(userID, uploadID string) string {
	return "upload:" + userID + ":" + uploadID
}

// WatchChannel carries watch-state updates shared by every session of one
// user on one video.
func WatchChannel(userID string, videoID domain.VideoID) string {
	return "watch:" + userID + ":" + string(videoID)
}
