package repositories

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	ParticipantsOf(ctx context.Context, chatID int) ([]int, error)
	IsParticipant(ctx context.Context, chatID int, userID int) (bool, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error)
	FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error)
	CreateChat(ctx context.Context, name string, isGroup bool, adminID int, participants []int) (models.Chat, error)
	RenameChat(ctx context.Context, chatID int, name string) (models.Chat, error)
	AddParticipant(ctx context.Context, chatID int, userID int) error
	RemoveParticipant(ctx context.Context, chatID int, userID int) error
	SetLastMessage(ctx context.Context, chatID int, messageID int) error
	DeleteChat(ctx context.Context, chatID int) ([]models.Attachment, error)
	PartnersOf(ctx context.Context, userID int) ([]int, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db, sb: builder(db)}
}

const chatColumns = `id, name, is_group_chat, admin_id, last_message_id, created_at, updated_at`

// GetChat fetches a chat with its participants.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, r.db.Rebind(`SELECT `+chatColumns+` FROM chats WHERE id=?`), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants, err = r.ParticipantsOf(ctx, chatID)
	return chat, err
}

// ParticipantsOf returns participant ids in join order.
func (r *ChatRepo) ParticipantsOf(ctx context.Context, chatID int) ([]int, error) {
	ids := []int{}
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT user_id FROM chat_participants WHERE chat_id=? ORDER BY position`), chatID)
	return ids, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=? AND user_id=?)`), chatID, userID)
	return exists, err
}

// ListChatsForUser returns the user's chats, most recently updated first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	chats := []models.Chat{}
	query := `SELECT c.id, c.name, c.is_group_chat, c.admin_id, c.last_message_id, c.created_at, c.updated_at
        FROM chats c
        INNER JOIN chat_participants p ON p.chat_id = c.id
        WHERE p.user_id=?
        ORDER BY c.updated_at DESC, c.id DESC`
	if err := r.db.SelectContext(ctx, &chats, r.db.Rebind(query), userID); err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return chats, nil
	}

	ids := make([]int, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	var rows []struct {
		ChatID int `db:"chat_id"`
		UserID int `db:"user_id"`
	}
	q := r.sb.Select("chat_id", "user_id").From("chat_participants").Where(sq.Eq{"chat_id": ids}).OrderBy("chat_id", "position")
	if err := selectBuilt(ctx, r.db, &rows, q); err != nil {
		return nil, err
	}
	byChat := map[int][]int{}
	for _, row := range rows {
		byChat[row.ChatID] = append(byChat[row.ChatID], row.UserID)
	}
	for i := range chats {
		chats[i].Participants = byChat[chats[i].ID]
	}
	return chats, nil
}

// FindDirectChat returns the one-to-one chat between two users.
func (r *ChatRepo) FindDirectChat(ctx context.Context, userID int, otherID int) (models.Chat, error) {
	var chatID int
	query := `SELECT c.id FROM chats c
        WHERE c.is_group_chat = FALSE
        AND EXISTS(SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id=?)
        AND EXISTS(SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id=?)
        ORDER BY c.id LIMIT 1`
	err := r.db.GetContext(ctx, &chatID, r.db.Rebind(query), userID, otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.GetChat(ctx, chatID)
}

// CreateChat creates a chat and its participants atomically. Duplicate ids are dropped.
func (r *ChatRepo) CreateChat(ctx context.Context, name string, isGroup bool, adminID int, participants []int) (models.Chat, error) {
	var chat models.Chat
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO chats (name, is_group_chat, admin_id) VALUES (?, ?, ?) RETURNING `+chatColumns), name, isGroup, adminID).
			StructScan(&chat)
		if err != nil {
			return err
		}
		seen := map[int]struct{}{}
		for _, id := range participants {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if err := addParticipant(ctx, tx, chat.ID, id); err != nil {
				return err
			}
			chat.Participants = append(chat.Participants, id)
		}
		return nil
	})
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func addParticipant(ctx context.Context, tx *sqlx.Tx, chatID, userID int) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO chat_participants (chat_id, user_id, position)
        SELECT CAST(? AS INTEGER), CAST(? AS INTEGER), COALESCE(MAX(position), 0) + 1 FROM chat_participants WHERE chat_id=?
        ON CONFLICT (chat_id, user_id) DO NOTHING`), chatID, userID, chatID)
	return err
}

// RenameChat updates the chat name.
func (r *ChatRepo) RenameChat(ctx context.Context, chatID int, name string) (models.Chat, error) {
	n, err := execBuilt(ctx, r.db, r.sb.Update("chats").
		Set("name", name).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": chatID}))
	if err != nil {
		return models.Chat{}, err
	}
	if n == 0 {
		return models.Chat{}, ErrChatNotFound
	}
	return r.GetChat(ctx, chatID)
}

// AddParticipant appends a user to the chat; adding an existing member is a no-op.
func (r *ChatRepo) AddParticipant(ctx context.Context, chatID int, userID int) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return addParticipant(ctx, tx, chatID, userID)
	})
}

// RemoveParticipant removes a user from the chat.
func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID int, userID int) error {
	_, err := execBuilt(ctx, r.db, r.sb.Delete("chat_participants").Where(sq.Eq{"chat_id": chatID, "user_id": userID}))
	return err
}

// SetLastMessage points the chat at its newest message.
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID int, messageID int) error {
	_, err := execBuilt(ctx, r.db, r.sb.Update("chats").
		Set("last_message_id", messageID).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": chatID}))
	return err
}

// DeleteChat removes the chat, its participants and every message with receipts,
// reactions and attachment rows. The attachments are returned so callers can drop the blobs.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM chats WHERE id=?)`), chatID); err != nil {
			return err
		}
		if !exists {
			return ErrChatNotFound
		}

		inChat := sq.Expr("message_id IN (SELECT id FROM messages WHERE chat_id = ?)", chatID)
		if err := selectBuilt(ctx, tx, &attachments, r.sb.Select("url", "local_path").From("message_attachments").Where(inChat).OrderBy("id")); err != nil {
			return err
		}
		for _, table := range []string{"message_attachments", "message_receipts", "message_reactions"} {
			if _, err := execBuilt(ctx, tx, r.sb.Delete(table).Where(inChat)); err != nil {
				return err
			}
		}
		if _, err := execBuilt(ctx, tx, r.sb.Delete("messages").Where(sq.Eq{"chat_id": chatID})); err != nil {
			return err
		}
		if _, err := execBuilt(ctx, tx, r.sb.Delete("chat_participants").Where(sq.Eq{"chat_id": chatID})); err != nil {
			return err
		}
		_, err := execBuilt(ctx, tx, r.sb.Delete("chats").Where(sq.Eq{"id": chatID}))
		return err
	})
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// PartnersOf returns every user sharing at least one chat with userID.
func (r *ChatRepo) PartnersOf(ctx context.Context, userID int) ([]int, error) {
	ids := []int{}
	query := `SELECT DISTINCT other.user_id FROM chat_participants me
        INNER JOIN chat_participants other ON other.chat_id = me.chat_id
        WHERE me.user_id=? AND other.user_id<>?
        ORDER BY other.user_id`
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), userID, userID)
	return ids, err
}
