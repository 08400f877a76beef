package chat

import (
	"context"
	"database/sql"
	"errors"
)

// HypeIncrement is the fixed amount a single hype adds to a message.
const HypeIncrement = 250

// ErrNotFound is returned when an operation targets a message id with no row.
var ErrNotFound = errors.New("message not found")

// MessageStore is what the hub needs from persistence.
type MessageStore interface {
	InsertMessage(ctx context.Context, p SendPayload) (*Message, error)
	AddHypes(ctx context.Context, messageID int64, delta int) (int, error)
	DeleteMessage(ctx context.Context, messageID int64) (bool, error)
	RecentMessages(ctx context.Context, limit int) ([]Message, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertMessage(ctx context.Context, p SendPayload) (*Message, error) {
	query := `
		INSERT INTO chat_messages (content, user_id, user_name, user_image)
		VALUES ($1, $2, $3, $4)
		RETURNING id, content, user_id, user_name, user_image, hypes, created_at
	`
	msg := &Message{}
	err := r.db.QueryRowContext(ctx, query, p.Content, p.UserID, p.UserName, p.UserImage).
		Scan(&msg.ID, &msg.Content, &msg.UserID, &msg.UserName, &msg.UserImage, &msg.Hypes, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AddHypes bumps the counter and returns the new value. ErrNotFound when the
// id matches no row.
func (r *Repository) AddHypes(ctx context.Context, messageID int64, delta int) (int, error) {
	query := "UPDATE chat_messages SET hypes = hypes + $2 WHERE id = $1 RETURNING hypes"
	var hypes int
	err := r.db.QueryRowContext(ctx, query, messageID, delta).Scan(&hypes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return hypes, nil
}

// DeleteMessage removes the row and reports whether anything was deleted.
// No ownership check at this layer.
func (r *Repository) DeleteMessage(ctx context.Context, messageID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE id = $1", messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) RecentMessages(ctx context.Context, limit int) ([]Message, error) {
	query := `
		SELECT id, content, user_id, user_name, user_image, hypes, created_at
		FROM chat_messages
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Content, &msg.UserID, &msg.UserName, &msg.UserImage, &msg.Hypes, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
