// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-realtime/internal/repositories"
	"chat-realtime/internal/storage"
)

// StatusExpiry deletes expired status stories together with their media files.
type StatusExpiry struct {
	stories repositories.StoryRepository
	blobs   storage.Remover
	now     func() time.Time
}

func NewStatusExpiry(stories repositories.StoryRepository, blobs storage.Remover) *StatusExpiry {
	return &StatusExpiry{stories: stories, blobs: blobs, now: time.Now}
}

// RunOnce removes everything expired at the current time and returns how many stories went away.
func (j *StatusExpiry) RunOnce(ctx context.Context) (int, error) {
	expired, err := j.stories.DeleteExpired(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired statuses: %w", err)
	}
	var paths []string
	for _, s := range expired {
		if s.MediaLocalPath != "" {
			paths = append(paths, s.MediaLocalPath)
		}
	}
	files := 0
	if j.blobs != nil && len(paths) > 0 {
		files = j.blobs.Remove(paths...)
	}
	if len(expired) > 0 {
		log.Printf("status cleanup: deleted=%d media_removed=%d", len(expired), files)
	}
	return len(expired), nil
}
