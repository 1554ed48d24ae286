package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
//   - The unordered-pair uniqueness of conversations is enforced by a unique
//     index on (least(user1_id, user2_id), greatest(user1_id, user2_id)).
//     Racing creators fall on the constraint and re-read the surviving row;
//     no application-level lock is used.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "vroom").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("messaging: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("messaging: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "vroom",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("messaging: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const conversationColumns = `id, user1_id, user2_id, COALESCE(product_id, ''), COALESCE(last_message_id, ''), created_at, updated_at`

const messageColumns = `id, conversation_id, sender_id, receiver_id, COALESCE(order_id, ''), content, message_type, is_read, is_private, metadata, created_at`

// FindConversation resolves the conversation for an unordered user pair,
// checking both stored orderings.
func (s *PostgresStore) FindConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	userA, userB, err := normalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		   FROM `+conversations+`
		  WHERE (user1_id = $1 AND user2_id = $2)
		     OR (user1_id = $2 AND user2_id = $1)`,
		userA, userB,
	)
	return scanConversation(row)
}

// CreateConversation inserts the conversation row for the pair. A concurrent
// duplicate creation hits the pair-unique index and falls back to re-reading
// the existing row rather than erroring to the caller.
func (s *PostgresStore) CreateConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	userA, userB, err := normalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+conversations+` (id, user1_id, user2_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT ((least(user1_id, user2_id)), (greatest(user1_id, user2_id))) DO NOTHING`,
		id, userA, userB, now,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race: the constraint is the authority, re-read the winner.
		return s.FindConversation(ctx, userA, userB)
	}

	return Conversation{
		ID:        id,
		User1ID:   userA,
		User2ID:   userB,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetConversation returns the conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM `+conversations+` WHERE id = $1`, id,
	)
	return scanConversation(row)
}

// LinkToProduct attaches product context to a conversation.
func (s *PostgresStore) LinkToProduct(ctx context.Context, conversationID, productID string) error {
	conversations := pgIdent(s.schema, "conversations")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+conversations+`
		    SET product_id = NULLIF($2, ''),
		        updated_at = now()
		  WHERE id = $1`,
		conversationID, productID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// FindByProduct locates the caller's most recently active conversation tied
// to productID.
func (s *PostgresStore) FindByProduct(ctx context.Context, userID, productID string) (Conversation, error) {
	conversations := pgIdent(s.schema, "conversations")

	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		   FROM `+conversations+`
		  WHERE product_id = $2
		    AND (user1_id = $1 OR user2_id = $1)
		  ORDER BY updated_at DESC
		  LIMIT 1`,
		userID, productID,
	)
	return scanConversation(row)
}

// ListConversations returns the user's conversations newest-activity first,
// hydrated with the other participant, last message and unread count.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	conversations := pgIdent(s.schema, "conversations")
	users := pgIdent(s.schema, "users")
	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.user1_id, c.user2_id, COALESCE(c.product_id, ''), COALESCE(c.last_message_id, ''), c.created_at, c.updated_at,
		        u.id, u.username, COALESCE(u.display_name, ''), COALESCE(u.avatar_url, ''), u.created_at,
		        m.id, m.conversation_id, m.sender_id, m.receiver_id, COALESCE(m.order_id, ''), m.content, m.message_type, m.is_read, m.is_private, m.metadata, m.created_at,
		        (SELECT COUNT(*) FROM `+messages+` um
		          WHERE um.conversation_id = c.id AND um.receiver_id = $1 AND NOT um.is_read)
		   FROM `+conversations+` c
		   JOIN `+users+` u
		     ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		   LEFT JOIN `+messages+` m ON m.id = c.last_message_id
		  WHERE c.user1_id = $1 OR c.user2_id = $1
		  ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ConversationSummary, 0, 16)
	for rows.Next() {
		var (
			sum ConversationSummary
			m   Message

			msgID, msgConvID, msgSender, msgReceiver, msgOrder, msgContent *string
			msgType                                                       *string
			msgRead, msgPrivate                                           *bool
			msgMeta                                                       map[string]any
			msgCreated                                                    *time.Time
		)
		if err := rows.Scan(
			&sum.Conversation.ID,
			&sum.Conversation.User1ID,
			&sum.Conversation.User2ID,
			&sum.Conversation.ProductID,
			&sum.Conversation.LastMessageID,
			&sum.Conversation.CreatedAt,
			&sum.Conversation.UpdatedAt,
			&sum.OtherUser.ID,
			&sum.OtherUser.Username,
			&sum.OtherUser.DisplayName,
			&sum.OtherUser.AvatarURL,
			&sum.OtherUser.CreatedAt,
			&msgID, &msgConvID, &msgSender, &msgReceiver, &msgOrder, &msgContent, &msgType, &msgRead, &msgPrivate, &msgMeta, &msgCreated,
			&sum.UnreadCount,
		); err != nil {
			return nil, err
		}

		if msgID != nil {
			m = Message{
				ID:             *msgID,
				ConversationID: *msgConvID,
				SenderID:       *msgSender,
				ReceiverID:     *msgReceiver,
				OrderID:        *msgOrder,
				Content:        *msgContent,
				Type:           Kind(*msgType),
				IsRead:         *msgRead,
				IsPrivate:      *msgPrivate,
				Metadata:       msgMeta,
				CreatedAt:      *msgCreated,
			}
			sum.LastMessage = &m
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser returns the stored user row for id.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, COALESCE(display_name, ''), COALESCE(avatar_url, ''), created_at
		   FROM `+users+` WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// AppendMessage persists the message and bumps the conversation's
// last-message reference in one transaction, assigning id and timestamp.
func (s *PostgresStore) AppendMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return ErrMessageNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ID == "" {
		id, err := NewID(m.CreatedAt)
		if err != nil {
			return err
		}
		m.ID = id
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	messages := pgIdent(s.schema, "messages")
	conversations := pgIdent(s.schema, "conversations")

	var meta any
	if len(m.Metadata) > 0 {
		meta = m.Metadata
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, conversation_id, sender_id, receiver_id, order_id, content, message_type, is_read, is_private, metadata, created_at
		 ) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.OrderID, m.Content, string(m.Type), m.IsRead, m.IsPrivate, meta, m.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE `+conversations+`
		    SET last_message_id = $2,
		        updated_at = $3
		  WHERE id = $1`,
		m.ConversationID, m.ID, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}

	return tx.Commit(ctx)
}

// ListByConversation returns messages oldest-first with offset pagination.
// The ULID id is the tiebreaker for messages created in the same tick.
func (s *PostgresStore) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]Message, error) {
	limit = clampHistoryLimit(limit)
	if offset < 0 {
		offset = 0
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at ASC, id ASC
		  LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkConversationRead flips is_read for all messages addressed to userID in
// the conversation. Idempotent: already-read rows are untouched.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, userID, conversationID string) error {
	messages := pgIdent(s.schema, "messages")

	_, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET is_read = TRUE
		  WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`,
		conversationID, userID,
	)
	return err
}

// UnreadCount counts unread messages addressed to userID in one conversation.
func (s *PostgresStore) UnreadCount(ctx context.Context, userID, conversationID string) (int, error) {
	messages := pgIdent(s.schema, "messages")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+messages+`
		  WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`,
		conversationID, userID,
	).Scan(&n)
	return n, err
}

// TotalUnreadCount counts unread messages addressed to userID across all
// conversations.
func (s *PostgresStore) TotalUnreadCount(ctx context.Context, userID string) (int, error) {
	messages := pgIdent(s.schema, "messages")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+messages+` WHERE receiver_id = $1 AND NOT is_read`,
		userID,
	).Scan(&n)
	return n, err
}

// LastMessage returns the newest message in the conversation.
func (s *PostgresStore) LastMessage(ctx context.Context, conversationID string) (Message, error) {
	messages := pgIdent(s.schema, "messages")

	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+`
		   FROM `+messages+`
		  WHERE conversation_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT 1`,
		conversationID,
	)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	return m, err
}

// ---- scanning ----

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.ProductID, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m    Message
		kind string
	)
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.OrderID, &m.Content, &kind, &m.IsRead, &m.IsPrivate, &m.Metadata, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	m.Type = Kind(kind)
	return m, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
