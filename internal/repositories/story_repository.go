package repositories

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrStatusNotFound = errors.New("status not found")

// StoryRepository stores ephemeral status stories.
type StoryRepository interface {
	CreateStory(ctx context.Context, story models.Story) (models.Story, error)
	GetStory(ctx context.Context, storyID int) (models.Story, error)
	ListVisibleTo(ctx context.Context, viewerID int, now time.Time) ([]models.Story, error)
	ListByPoster(ctx context.Context, posterID int, now time.Time) ([]models.Story, error)
	MarkViewed(ctx context.Context, storyID int, viewerID int) error
	DeleteStory(ctx context.Context, storyID int) error
	DeleteExpired(ctx context.Context, now time.Time) ([]models.Story, error)
}

// StoryRepo is a sqlx implementation of StoryRepository.
type StoryRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewStoryRepo constructs a StoryRepo.
func NewStoryRepo(db *sqlx.DB) *StoryRepo {
	return &StoryRepo{db: db, sb: builder(db)}
}

var storyColumns = []string{"s.id", "s.posted_by", "s.kind", "s.caption", "s.text", "s.background_color", "s.media_url", "s.media_local_path", "s.expires_at", "s.created_at"}

// timestamps are stored at second precision in UTC so text comparison in sqlite stays ordered
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// CreateStory inserts the story and its audience.
func (r *StoryRepo) CreateStory(ctx context.Context, story models.Story) (models.Story, error) {
	var id int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO stories (posted_by, kind, caption, text, background_color, media_url, media_local_path, expires_at, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			story.PostedBy, story.Kind, story.Caption, story.Text, story.BackgroundColor, story.MediaURL, story.MediaLocalPath,
			storedTime(story.ExpiresAt), storedTime(story.CreatedAt)).Scan(&id)
		if err != nil {
			return err
		}
		for _, userID := range story.VisibleTo {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO story_audience (story_id, user_id) VALUES (?, ?) ON CONFLICT (story_id, user_id) DO NOTHING`), id, userID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Story{}, err
	}
	return r.GetStory(ctx, id)
}

// GetStory fetches a story with its audience and viewers.
func (r *StoryRepo) GetStory(ctx context.Context, storyID int) (models.Story, error) {
	stories, err := r.selectHydrated(ctx, r.sb.Select(storyColumns...).From("stories s").Where(sq.Eq{"s.id": storyID}))
	if err != nil {
		return models.Story{}, err
	}
	if len(stories) == 0 {
		return models.Story{}, ErrStatusNotFound
	}
	return stories[0], nil
}

// ListVisibleTo returns unexpired stories whose audience includes viewerID, newest first.
func (r *StoryRepo) ListVisibleTo(ctx context.Context, viewerID int, now time.Time) ([]models.Story, error) {
	q := r.sb.Select(storyColumns...).From("stories s").
		Join("story_audience a ON a.story_id = s.id").
		Where(sq.Eq{"a.user_id": viewerID}).
		Where(sq.Gt{"s.expires_at": storedTime(now)}).
		OrderBy("s.created_at DESC", "s.id DESC")
	return r.selectHydrated(ctx, q)
}

// ListByPoster returns the poster's unexpired stories, newest first.
func (r *StoryRepo) ListByPoster(ctx context.Context, posterID int, now time.Time) ([]models.Story, error) {
	q := r.sb.Select(storyColumns...).From("stories s").
		Where(sq.Eq{"s.posted_by": posterID}).
		Where(sq.Gt{"s.expires_at": storedTime(now)}).
		OrderBy("s.created_at DESC", "s.id DESC")
	return r.selectHydrated(ctx, q)
}

func (r *StoryRepo) selectHydrated(ctx context.Context, q sq.SelectBuilder) ([]models.Story, error) {
	stories := []models.Story{}
	if err := selectBuilt(ctx, r.db, &stories, q); err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		return stories, nil
	}

	ids := make([]int, 0, len(stories))
	index := make(map[int]int, len(stories))
	for i := range stories {
		ids = append(ids, stories[i].ID)
		index[stories[i].ID] = i
		stories[i].VisibleTo = []int{}
		stories[i].ViewedBy = []int{}
	}

	type row struct {
		StoryID int `db:"story_id"`
		UserID  int `db:"user_id"`
	}
	var audience, views []row
	if err := selectBuilt(ctx, r.db, &audience, r.sb.Select("story_id", "user_id").From("story_audience").
		Where(sq.Eq{"story_id": ids}).OrderBy("user_id")); err != nil {
		return nil, err
	}
	if err := selectBuilt(ctx, r.db, &views, r.sb.Select("story_id", "user_id").From("story_views").
		Where(sq.Eq{"story_id": ids}).OrderBy("viewed_at", "user_id")); err != nil {
		return nil, err
	}
	for _, a := range audience {
		s := &stories[index[a.StoryID]]
		s.VisibleTo = append(s.VisibleTo, a.UserID)
	}
	for _, v := range views {
		s := &stories[index[v.StoryID]]
		s.ViewedBy = append(s.ViewedBy, v.UserID)
	}
	return stories, nil
}

// MarkViewed records a view; repeated views are ignored.
func (r *StoryRepo) MarkViewed(ctx context.Context, storyID int, viewerID int) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO story_views (story_id, user_id) VALUES (?, ?) ON CONFLICT (story_id, user_id) DO NOTHING`), storyID, viewerID)
	return err
}

// DeleteStory removes a story and its audience and views.
func (r *StoryRepo) DeleteStory(ctx context.Context, storyID int) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, table := range []string{"story_views", "story_audience"} {
			if _, err := execBuilt(ctx, tx, r.sb.Delete(table).Where(sq.Eq{"story_id": storyID})); err != nil {
				return err
			}
		}
		n, err := execBuilt(ctx, tx, r.sb.Delete("stories").Where(sq.Eq{"id": storyID}))
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStatusNotFound
		}
		return nil
	})
}

// DeleteExpired removes every story expired at now and returns the removed rows so their
// media can be cleaned up.
func (r *StoryRepo) DeleteExpired(ctx context.Context, now time.Time) ([]models.Story, error) {
	expired := []models.Story{}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		cutoff := sq.LtOrEq{"expires_at": storedTime(now)}
		q := r.sb.Select("id", "posted_by", "kind", "caption", "text", "background_color", "media_url", "media_local_path", "expires_at", "created_at").
			From("stories").Where(cutoff).OrderBy("id")
		if err := selectBuilt(ctx, tx, &expired, q); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]int, 0, len(expired))
		for _, s := range expired {
			ids = append(ids, s.ID)
		}
		for _, table := range []string{"story_views", "story_audience"} {
			if _, err := execBuilt(ctx, tx, r.sb.Delete(table).Where(sq.Eq{"story_id": ids})); err != nil {
				return err
			}
		}
		_, err := execBuilt(ctx, tx, r.sb.Delete("stories").Where(sq.Eq{"id": ids}))
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
