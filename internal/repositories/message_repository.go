package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage is the input of CreateMessage.
type NewMessage struct {
	ChatID      int
	SenderID    int
	Content     string
	ReplyToID   *int
	Attachments []models.Attachment
}

// MessageRepository defines interactions for chat messages and their receipts.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	GetMessages(ctx context.Context, ids []int) ([]models.Message, error)
	ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error)
	FindUnseenBy(ctx context.Context, chatID int, userID int) ([]models.MessageRef, error)
	FindUndeliveredTo(ctx context.Context, userID int) ([]models.MessageRef, error)
	MarkDelivered(ctx context.Context, messageIDs []int, userIDs ...int) error
	MarkSeen(ctx context.Context, messageIDs []int, userIDs ...int) error
	ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) ([]models.ReactionGroup, error)
	SoftDelete(ctx context.Context, messageID int, senderID int) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, sb: builder(db)}
}

var messageColumns = []string{"id", "chat_id", "sender_id", "content", "status", "reply_to_id", "is_deleted", "created_at", "updated_at"}

// CreateMessage stores a message with status sent and its attachments in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, in NewMessage) (models.Message, error) {
	var id int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO messages (chat_id, sender_id, content, status, reply_to_id) VALUES (?, ?, ?, ?, ?) RETURNING id`),
			in.ChatID, in.SenderID, in.Content, models.StatusSent, in.ReplyToID).Scan(&id)
		if err != nil {
			return err
		}
		for _, a := range in.Attachments {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO message_attachments (message_id, url, local_path) VALUES (?, ?, ?)`), id, a.URL, a.LocalPath); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single hydrated message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	msgs, err := r.GetMessages(ctx, []int{messageID})
	if err != nil {
		return models.Message{}, err
	}
	if len(msgs) == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return msgs[0], nil
}

// GetMessages retrieves hydrated messages by id, ordered by id.
func (r *MessageRepo) GetMessages(ctx context.Context, ids []int) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	return r.selectHydrated(ctx, sq.Eq{"id": ids})
}

// ListChatMessages returns the chat history in send order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	return r.selectHydrated(ctx, sq.Eq{"chat_id": chatID})
}

func (r *MessageRepo) selectHydrated(ctx context.Context, where sq.Sqlizer) ([]models.Message, error) {
	msgs := []models.Message{}
	if err := selectBuilt(ctx, r.db, &msgs, r.sb.Select(messageColumns...).From("messages").Where(where).OrderBy("id")); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	if err := r.hydrate(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) hydrate(ctx context.Context, msgs []models.Message) error {
	ids := make([]int, 0, len(msgs))
	senderIDs := make([]int, 0, len(msgs))
	index := make(map[int]int, len(msgs))
	for i := range msgs {
		ids = append(ids, msgs[i].ID)
		senderIDs = append(senderIDs, msgs[i].SenderID)
		index[msgs[i].ID] = i
		msgs[i].Attachments = []models.Attachment{}
		msgs[i].DeliveredTo = []int{}
		msgs[i].SeenBy = []int{}
		msgs[i].Reactions = []models.ReactionGroup{}
	}

	var receipts []struct {
		MessageID int          `db:"message_id"`
		UserID    int          `db:"user_id"`
		SeenAt    sql.NullTime `db:"seen_at"`
	}
	if err := selectBuilt(ctx, r.db, &receipts, r.sb.Select("message_id", "user_id", "seen_at").
		From("message_receipts").Where(sq.Eq{"message_id": ids}).OrderBy("user_id")); err != nil {
		return err
	}
	for _, rc := range receipts {
		m := &msgs[index[rc.MessageID]]
		m.DeliveredTo = append(m.DeliveredTo, rc.UserID)
		if rc.SeenAt.Valid {
			m.SeenBy = append(m.SeenBy, rc.UserID)
		}
	}

	var reactions []models.Reaction
	if err := selectBuilt(ctx, r.db, &reactions, r.sb.Select("message_id", "user_id", "emoji", "created_at").
		From("message_reactions").Where(sq.Eq{"message_id": ids}).OrderBy("created_at", "user_id")); err != nil {
		return err
	}
	byMessage := map[int][]models.Reaction{}
	for _, re := range reactions {
		byMessage[re.MessageID] = append(byMessage[re.MessageID], re)
	}
	for id, list := range byMessage {
		msgs[index[id]].Reactions = models.GroupReactions(list)
	}

	var attachments []struct {
		MessageID int `db:"message_id"`
		models.Attachment
	}
	if err := selectBuilt(ctx, r.db, &attachments, r.sb.Select("message_id", "url", "local_path").
		From("message_attachments").Where(sq.Eq{"message_id": ids}).OrderBy("id")); err != nil {
		return err
	}
	for _, a := range attachments {
		m := &msgs[index[a.MessageID]]
		m.Attachments = append(m.Attachments, a.Attachment)
	}

	var senders []models.User
	if err := selectBuilt(ctx, r.db, &senders, r.sb.Select("id", "username", "avatar", "created_at").
		From("users").Where(sq.Eq{"id": senderIDs})); err != nil {
		return err
	}
	users := make(map[int]models.User, len(senders))
	for _, u := range senders {
		users[u.ID] = u
	}
	for i := range msgs {
		if u, ok := users[msgs[i].SenderID]; ok {
			u := u
			msgs[i].Sender = &u
		}
	}
	return nil
}

// FindUnseenBy returns messages in the chat authored by others that userID has not seen.
// It is empty when userID is not a participant of the chat.
func (r *MessageRepo) FindUnseenBy(ctx context.Context, chatID int, userID int) ([]models.MessageRef, error) {
	refs := []models.MessageRef{}
	query := `SELECT m.id, m.chat_id, m.sender_id FROM messages m
        INNER JOIN chat_participants p ON p.chat_id = m.chat_id AND p.user_id=?
        WHERE m.chat_id=? AND m.sender_id<>?
        AND NOT EXISTS(SELECT 1 FROM message_receipts r WHERE r.message_id = m.id AND r.user_id=? AND r.seen_at IS NOT NULL)
        ORDER BY m.id`
	err := r.db.SelectContext(ctx, &refs, r.db.Rebind(query), userID, chatID, userID, userID)
	return refs, err
}

// FindUndeliveredTo returns messages with status sent, across every chat of userID,
// authored by others and not yet delivered to userID. Results are ordered by chat.
func (r *MessageRepo) FindUndeliveredTo(ctx context.Context, userID int) ([]models.MessageRef, error) {
	refs := []models.MessageRef{}
	query := `SELECT m.id, m.chat_id, m.sender_id FROM messages m
        INNER JOIN chat_participants p ON p.chat_id = m.chat_id AND p.user_id=?
        WHERE m.sender_id<>? AND m.status=?
        AND NOT EXISTS(SELECT 1 FROM message_receipts r WHERE r.message_id = m.id AND r.user_id=?)
        ORDER BY m.chat_id, m.id`
	err := r.db.SelectContext(ctx, &refs, r.db.Rebind(query), userID, userID, models.StatusSent, userID)
	return refs, err
}

// MarkDelivered unions userIDs into the delivered set of every message and advances sent
// messages to delivered.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageIDs []int, userIDs ...int) error {
	return r.markReceipts(ctx, messageIDs, userIDs, models.StatusDelivered)
}

// MarkSeen unions userIDs into both the seen and delivered sets of every message and moves
// them to seen.
func (r *MessageRepo) MarkSeen(ctx context.Context, messageIDs []int, userIDs ...int) error {
	return r.markReceipts(ctx, messageIDs, userIDs, models.StatusSeen)
}

// markReceipts runs every receipt insert and the status update in one transaction keyed by
// the id set, so no reader observes a half-applied batch.
func (r *MessageRepo) markReceipts(ctx context.Context, messageIDs []int, userIDs []int, status models.MessageStatus) error {
	if len(messageIDs) == 0 || len(userIDs) == 0 {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, userID := range userIDs {
			if _, err := execBuilt(ctx, tx, r.receiptInsert(messageIDs, userID, status)); err != nil {
				return err
			}
		}
		upd := r.sb.Update("messages").
			Set("status", status).
			Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
			Where(sq.Eq{"id": messageIDs})
		if status == models.StatusDelivered {
			upd = upd.Where(sq.Eq{"status": models.StatusSent})
		}
		_, err := execBuilt(ctx, tx, upd)
		return err
	})
}

func (r *MessageRepo) receiptInsert(messageIDs []int, userID int, status models.MessageStatus) sq.InsertBuilder {
	sel := sq.Select("id").
		Column(sq.Expr("CAST(? AS INTEGER)", userID)).
		Column("CURRENT_TIMESTAMP").
		From("messages").
		Where(sq.Eq{"id": messageIDs})
	if status == models.StatusSeen {
		return r.sb.Insert("message_receipts").
			Columns("message_id", "user_id", "delivered_at", "seen_at").
			Select(sel.Column("CURRENT_TIMESTAMP")).
			Suffix("ON CONFLICT (message_id, user_id) DO UPDATE SET seen_at = COALESCE(message_receipts.seen_at, excluded.seen_at)")
	}
	return r.sb.Insert("message_receipts").
		Columns("message_id", "user_id", "delivered_at").
		Select(sel).
		Suffix("ON CONFLICT (message_id, user_id) DO NOTHING")
}

// ToggleReaction applies the one-reaction-per-user rule: the same emoji again removes it,
// a different emoji replaces the previous one. It returns the message's reactions afterwards.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) ([]models.ReactionGroup, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM messages WHERE id=?)`), messageID); err != nil {
			return err
		}
		if !exists {
			return ErrMessageNotFound
		}

		var current string
		err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT emoji FROM message_reactions WHERE message_id=? AND user_id=?`), messageID, userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`),
				messageID, userID, emoji, time.Now().UTC())
			return err
		case err != nil:
			return err
		case current == emoji:
			_, err = execBuilt(ctx, tx, r.sb.Delete("message_reactions").Where(sq.Eq{"message_id": messageID, "user_id": userID}))
			return err
		default:
			_, err = execBuilt(ctx, tx, r.sb.Update("message_reactions").
				Set("emoji", emoji).
				Set("created_at", time.Now().UTC()).
				Where(sq.Eq{"message_id": messageID, "user_id": userID}))
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	var reactions []models.Reaction
	if err := selectBuilt(ctx, r.db, &reactions, r.sb.Select("message_id", "user_id", "emoji", "created_at").
		From("message_reactions").Where(sq.Eq{"message_id": messageID}).OrderBy("created_at", "user_id")); err != nil {
		return nil, err
	}
	return models.GroupReactions(reactions), nil
}

// SoftDelete flags a message as deleted. Only the sender may delete; otherwise ErrMessageNotFound.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int, senderID int) (models.Message, error) {
	n, err := execBuilt(ctx, r.db, r.sb.Update("messages").
		Set("is_deleted", true).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"id": messageID, "sender_id": senderID}))
	if err != nil {
		return models.Message{}, err
	}
	if n == 0 {
		return models.Message{}, ErrMessageNotFound
	}
	return r.GetMessage(ctx, messageID)
}
