package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrContactExists   = errors.New("already in contacts")
)

// ContactRepository stores per-user address books and blocks.
type ContactRepository interface {
	ListContacts(ctx context.Context, ownerID int, limit, offset int) ([]models.Contact, int, error)
	ListBlocked(ctx context.Context, ownerID int) ([]models.Contact, error)
	Suggestions(ctx context.Context, ownerID int, limit int) ([]models.User, error)
	AddContact(ctx context.Context, ownerID, contactID int, category models.ContactCategory) (models.Contact, error)
	ToggleBlock(ctx context.Context, ownerID, contactID int) (models.Contact, error)
	BlockedBy(ctx context.Context, contactID int, ownerIDs []int) (map[int]bool, error)
}

// ContactRepo is a sqlx implementation of ContactRepository.
type ContactRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewContactRepo(db *sqlx.DB) *ContactRepo {
	return &ContactRepo{db: db, sb: builder(db)}
}

func (r *ContactRepo) selectContacts() sq.SelectBuilder {
	return r.sb.Select("c.owner_id", "c.contact_id", "u.username", "u.avatar", "c.category", "c.is_blocked", "c.created_at").
		From("contacts c").
		Join("users u ON u.id = c.contact_id")
}

// ListContacts returns one page of unblocked contacts, newest first, and the unblocked total.
func (r *ContactRepo) ListContacts(ctx context.Context, ownerID int, limit, offset int) ([]models.Contact, int, error) {
	where := sq.Eq{"c.owner_id": ownerID, "c.is_blocked": false}

	var total int
	query, args, err := r.sb.Select("COUNT(*)").From("contacts c").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return nil, 0, err
	}

	contacts := []models.Contact{}
	q := r.selectContacts().Where(where).OrderBy("c.created_at DESC", "c.contact_id DESC").
		Limit(uint64(limit)).Offset(uint64(offset))
	if err := selectBuilt(ctx, r.db, &contacts, q); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// ListBlocked returns every contact ownerID has blocked.
func (r *ContactRepo) ListBlocked(ctx context.Context, ownerID int) ([]models.Contact, error) {
	contacts := []models.Contact{}
	q := r.selectContacts().Where(sq.Eq{"c.owner_id": ownerID, "c.is_blocked": true}).OrderBy("u.username")
	err := selectBuilt(ctx, r.db, &contacts, q)
	return contacts, err
}

// Suggestions returns users that are neither ownerID nor already in their contacts.
func (r *ContactRepo) Suggestions(ctx context.Context, ownerID int, limit int) ([]models.User, error) {
	users := []models.User{}
	q := r.sb.Select("id", "username", "avatar", "created_at").From("users").
		Where(sq.NotEq{"id": ownerID}).
		Where("id NOT IN (SELECT contact_id FROM contacts WHERE owner_id = ?)", ownerID).
		OrderBy("id").
		Limit(uint64(limit))
	err := selectBuilt(ctx, r.db, &users, q)
	return users, err
}

// AddContact saves contactID in ownerID's address book. The contact user must exist.
func (r *ContactRepo) AddContact(ctx context.Context, ownerID, contactID int, category models.ContactCategory) (models.Contact, error) {
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM contacts WHERE owner_id=? AND contact_id=?`), ownerID, contactID)
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrContactExists
		}
		_, err = execBuilt(ctx, tx, r.sb.Insert("contacts").
			Columns("owner_id", "contact_id", "category").
			Values(ownerID, contactID, string(category)))
		return err
	})
	if err != nil {
		return models.Contact{}, err
	}
	return r.getContact(ctx, ownerID, contactID)
}

// ToggleBlock flips the blocked flag of an existing contact and returns the new state.
func (r *ContactRepo) ToggleBlock(ctx context.Context, ownerID, contactID int) (models.Contact, error) {
	n, err := execBuilt(ctx, r.db, r.sb.Update("contacts").
		Set("is_blocked", sq.Expr("NOT is_blocked")).
		Where(sq.Eq{"owner_id": ownerID, "contact_id": contactID}))
	if err != nil {
		return models.Contact{}, err
	}
	if n == 0 {
		return models.Contact{}, ErrContactNotFound
	}
	return r.getContact(ctx, ownerID, contactID)
}

// BlockedBy reports which of ownerIDs have blocked contactID.
func (r *ContactRepo) BlockedBy(ctx context.Context, contactID int, ownerIDs []int) (map[int]bool, error) {
	out := make(map[int]bool, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	var owners []int
	q := r.sb.Select("owner_id").From("contacts").
		Where(sq.Eq{"contact_id": contactID, "owner_id": ownerIDs, "is_blocked": true})
	if err := selectBuilt(ctx, r.db, &owners, q); err != nil {
		return nil, err
	}
	for _, id := range owners {
		out[id] = true
	}
	return out, nil
}

func (r *ContactRepo) getContact(ctx context.Context, ownerID, contactID int) (models.Contact, error) {
	query, args, err := r.selectContacts().Where(sq.Eq{"c.owner_id": ownerID, "c.contact_id": contactID}).ToSql()
	if err != nil {
		return models.Contact{}, fmt.Errorf("build query: %w", err)
	}
	var contact models.Contact
	err = r.db.GetContext(ctx, &contact, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, ErrContactNotFound
	}
	return contact, err
}
