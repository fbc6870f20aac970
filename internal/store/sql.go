package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) SQLStore {
	return SQLStore{db: db, now: time.Now}
}

func (s SQLStore) CreateConversation(ctx context.Context, userID, modelID, modelName string) (Conversation, error) {
	conversation := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ModelID:   modelID,
		ModelName: modelName,
		CreatedAt: s.timestamp(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin create conversation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, created_at) VALUES (?, ?)
ON CONFLICT(id) DO NOTHING;
`, userID, conversation.CreatedAt); err != nil {
		return Conversation{}, fmt.Errorf("ensure user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations (id, user_id, model_id, model_name, created_at)
VALUES (?, ?, ?, ?, ?);
`, conversation.ID, conversation.UserID, conversation.ModelID, conversation.ModelName, conversation.CreatedAt); err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("commit create conversation: %w", err)
	}
	return conversation, nil
}

func (s SQLStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var out Conversation
	err := s.db.QueryRowContext(ctx, `
SELECT id, user_id, model_id, model_name, created_at
FROM conversations
WHERE id = ?
LIMIT 1;
`, id).Scan(&out.ID, &out.UserID, &out.ModelID, &out.ModelName, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return out, nil
}

func (s SQLStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, model_id, model_name, created_at
FROM conversations
WHERE user_id = ?
ORDER BY seq DESC;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0, 16)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.ModelID, &c.ModelName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

func (s SQLStore) CreateMessage(ctx context.Context, conversationID, role, content string) (Message, error) {
	message := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.timestamp(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ? LIMIT 1;`, conversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("check conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES (?, ?, ?, ?, ?);
`, message.ID, message.ConversationID, message.Role, message.Content, message.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit create message: %w", err)
	}
	return message, nil
}

func (s SQLStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY seq ASC;
`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, 32)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s SQLStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
