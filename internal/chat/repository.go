package chat

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

// ConversationStore owns the conversation rows and their list-view
// projections.
type ConversationStore interface {
	// GetOrCreate returns the single conversation for the unordered pair
	// (a, b), creating it when absent. The second return reports whether
	// this call created the row.
	GetOrCreate(ctx context.Context, a, b int) (*Conversation, bool, error)
	GetByID(ctx context.Context, id int) (*Conversation, error)
	ListForUser(ctx context.Context, userID int) ([]ConversationSummary, error)
	UpdatePreview(ctx context.Context, convID int, preview string) error
	// ErasePreview swaps the preview for the deleted placeholder, but only
	// while msgID is still the newest message in convID. Deleting an older
	// message leaves the preview alone, and the conversation keeps its place
	// in the list either way.
	ErasePreview(ctx context.Context, convID, msgID int) error
	// RelevantContacts returns every user sharing a conversation with userID.
	RelevantContacts(ctx context.Context, userID int) ([]int, error)
}

// MessageStore owns the message rows. Status and delete mutations carry their
// authorization guards in SQL so a stale caller cannot regress a row.
type MessageStore interface {
	Insert(ctx context.Context, msg *Message) error
	// ListRecent returns up to limit messages newest-first, joined with the
	// sender's current username and avatar.
	ListRecent(ctx context.Context, convID, limit int) ([]*Message, error)
	// MarkDelivered promotes a single 'sent' message to 'delivered'. Only a
	// non-sender may promote; repeats and further-advanced rows do not match.
	MarkDelivered(ctx context.Context, msgID, actorID int) (int, bool, error)
	// MarkConversationRead promotes every counterpart message below 'read'.
	MarkConversationRead(ctx context.Context, convID, readerID int) (bool, error)
	// SoftDelete tombstones a message. Only its sender may; repeats and
	// foreign messages do not match.
	SoftDelete(ctx context.Context, msgID, requesterID int) (int, bool, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ---------------------------------------------
// 💬 Conversations
// ---------------------------------------------

const conversationColumns = "id, user_a, user_b, last_message, last_updated, created_at"

func (r *SQLStore) GetOrCreate(ctx context.Context, a, b int) (*Conversation, bool, error) {
	conv, err := r.getByPair(ctx, a, b)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errors.Wrap(err, "chatStore.GetOrCreate.Lookup")
	}

	conv = &Conversation{UserA: a, UserB: b, LastMessage: conversationStartPreview}
	query := `INSERT INTO conversations (user_a, user_b, last_message)
		VALUES ($1, $2, $3) RETURNING id, last_updated, created_at`
	err = r.db.QueryRowContext(ctx, query, a, b, conversationStartPreview).
		Scan(&conv.ID, &conv.LastUpdated, &conv.CreatedAt)
	if err == nil {
		return conv, true, nil
	}

	// The pair index rejected a concurrent first-contact insert; the other
	// writer's row is the conversation, so read it back.
	if isUniqueViolation(err) {
		conv, err = r.getByPair(ctx, a, b)
		if err != nil {
			return nil, false, errors.Wrap(err, "chatStore.GetOrCreate.Reread")
		}
		return conv, false, nil
	}

	return nil, false, errors.Wrap(err, "chatStore.GetOrCreate.Insert")
}

func (r *SQLStore) getByPair(ctx context.Context, a, b int) (*Conversation, error) {
	conv := &Conversation{}
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE LEAST(user_a, user_b) = LEAST($1, $2)
		  AND GREATEST(user_a, user_b) = GREATEST($1, $2)`
	err := r.db.QueryRowContext(ctx, query, a, b).Scan(
		&conv.ID, &conv.UserA, &conv.UserB,
		&conv.LastMessage, &conv.LastUpdated, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *SQLStore) GetByID(ctx context.Context, id int) (*Conversation, error) {
	conv := &Conversation{}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.UserA, &conv.UserB,
		&conv.LastMessage, &conv.LastUpdated, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "chatStore.GetByID.Scan")
	}
	return conv, nil
}

func (r *SQLStore) ListForUser(ctx context.Context, userID int) ([]ConversationSummary, error) {
	query := `
		SELECT c.id, u.id, u.username, u.avatar, u.online, c.last_message, c.last_updated,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id AND m.sender_id <> $1
			   AND m.status <> 'read' AND m.deleted = FALSE) AS unread
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user_a = $1 THEN c.user_b ELSE c.user_a END
		WHERE c.user_a = $1 OR c.user_b = $1
		ORDER BY c.last_updated DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "chatStore.ListForUser.Query")
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ID, &s.OtherUserID, &s.OtherUsername, &s.OtherAvatar,
			&s.OtherOnline, &s.LastMessage, &s.LastUpdated, &s.UnreadCount); err != nil {
			return nil, errors.Wrap(err, "chatStore.ListForUser.Scan")
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *SQLStore) UpdatePreview(ctx context.Context, convID int, preview string) error {
	query := "UPDATE conversations SET last_message = $1, last_updated = NOW() WHERE id = $2"
	_, err := r.db.ExecContext(ctx, query, preview, convID)
	return errors.Wrap(err, "chatStore.UpdatePreview.Exec")
}

func (r *SQLStore) ErasePreview(ctx context.Context, convID, msgID int) error {
	query := `UPDATE conversations SET last_message = $3
		WHERE id = $1
		  AND $2 = (SELECT id FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC LIMIT 1)`
	_, err := r.db.ExecContext(ctx, query, convID, msgID, DeletedPlaceholder)
	return errors.Wrap(err, "chatStore.ErasePreview.Exec")
}

func (r *SQLStore) RelevantContacts(ctx context.Context, userID int) ([]int, error) {
	query := `SELECT DISTINCT CASE WHEN user_a = $1 THEN user_b ELSE user_a END
		FROM conversations WHERE user_a = $1 OR user_b = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "chatStore.RelevantContacts.Query")
	}
	defer rows.Close()

	var contacts []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "chatStore.RelevantContacts.Scan")
		}
		contacts = append(contacts, id)
	}
	return contacts, rows.Err()
}

// ---------------------------------------------
// ✉️ Messages
// ---------------------------------------------

func (r *SQLStore) Insert(ctx context.Context, msg *Message) error {
	query := `INSERT INTO messages (conversation_id, sender_id, content, type, duration)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, status, created_at`
	err := r.db.QueryRowContext(ctx, query,
		msg.ConversationID, msg.SenderID, msg.Content, msg.Type, msg.Duration).
		Scan(&msg.ID, &msg.Status, &msg.CreatedAt)
	return errors.Wrap(err, "chatStore.Insert.Scan")
}

func (r *SQLStore) ListRecent(ctx context.Context, convID, limit int) ([]*Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, u.username, u.avatar,
			m.content, m.type, COALESCE(m.duration, 0), m.status, m.deleted, m.created_at
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, convID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "chatStore.ListRecent.Query")
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID,
			&msg.SenderName, &msg.SenderAvatar, &msg.Content, &msg.Type,
			&msg.Duration, &msg.Status, &msg.Deleted, &msg.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "chatStore.ListRecent.Scan")
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *SQLStore) MarkDelivered(ctx context.Context, msgID, actorID int) (int, bool, error) {
	// Membership, non-sender and current-state guards all live in the
	// statement: anything that fails them matches zero rows and the caller
	// treats it as a silent no-op.
	query := `UPDATE messages m SET status = 'delivered'
		FROM conversations c
		WHERE m.id = $1 AND m.conversation_id = c.id
		  AND m.status = 'sent' AND m.sender_id <> $2
		  AND (c.user_a = $2 OR c.user_b = $2)
		RETURNING m.conversation_id`
	var convID int
	err := r.db.QueryRowContext(ctx, query, msgID, actorID).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "chatStore.MarkDelivered.Scan")
	}
	return convID, true, nil
}

func (r *SQLStore) MarkConversationRead(ctx context.Context, convID, readerID int) (bool, error) {
	query := `UPDATE messages SET status = 'read'
		WHERE conversation_id = $1 AND sender_id <> $2 AND status <> 'read'
		  AND EXISTS (SELECT 1 FROM conversations
			WHERE id = $1 AND (user_a = $2 OR user_b = $2))`
	res, err := r.db.ExecContext(ctx, query, convID, readerID)
	if err != nil {
		return false, errors.Wrap(err, "chatStore.MarkConversationRead.Exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "chatStore.MarkConversationRead.RowsAffected")
	}
	return n > 0, nil
}

func (r *SQLStore) SoftDelete(ctx context.Context, msgID, requesterID int) (int, bool, error) {
	query := `UPDATE messages SET deleted = TRUE
		WHERE id = $1 AND sender_id = $2 AND deleted = FALSE
		RETURNING conversation_id`
	var convID int
	err := r.db.QueryRowContext(ctx, query, msgID, requesterID).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "chatStore.SoftDelete.Scan")
	}
	return convID, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
