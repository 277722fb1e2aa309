// Package pg PostgreSQL 版 Store
package pg

import (
	"context"
	"errors"
	"time"

	"EchoChat/data/database"
	"EchoChat/logger"
	"EchoChat/module/chat/model"
	"EchoChat/tools/errs"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ database.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

// Open 建连接池并 ping 一次
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errs.WrapMsg(err, "parse postgres url")
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "ping postgres")
	}
	logger.Infof("[PG] connected host=%s db=%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return &Store{pool: pool}, nil
}

// Migrate 建表，可重复执行
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errs.WrapMsg(err, "migrate postgres")
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// pg 只存到微秒，返回值和库里保持一致
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, image, email FROM users ORDER BY name`)
	if err != nil {
		return nil, errs.WrapMsg(err, "list users")
	}
	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.User, error) {
		var u model.User
		err := r.Scan(&u.ID, &u.Name, &u.Image, &u.Email)
		return u, err
	})
	return users, errs.WrapMsg(err, "scan users")
}

func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		return errs.ErrArgs.WrapMsg("user id is empty")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, image, email) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, image = EXCLUDED.image, email = EXCLUDED.email`,
		u.ID, u.Name, u.Image, u.Email)
	return errs.WrapMsg(err, "upsert user", "id", u.ID)
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.image, c.updated_at
		FROM conversation c
		JOIN users_to_conversation m ON m.conversation_id = c.id
		WHERE m.member_id = $1
		ORDER BY c.updated_at DESC, c.id`, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "list conversations", "userId", userID)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.ConversationSummary, error) {
		sum := model.ConversationSummary{Messages: []model.Message{}, Members: []model.Member{}}
		err := r.Scan(&sum.ID, &sum.Name, &sum.Image, &sum.UpdatedAt)
		return sum, err
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "scan conversations")
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	index := make(map[string]int, len(out))
	for i := range out {
		ids[i] = out[i].ID
		index[out[i].ID] = i
	}

	latest, err := s.latestMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range latest {
		out[index[m.ConversationID]].Messages = []model.Message{m}
	}

	members, err := s.members(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		i := index[m.ConversationID]
		out[i].Members = append(out[i].Members, m)
	}
	return out, nil
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.message, m.created_at, f.id, f.name, f.type, f.size`

func scanMessage(r pgx.CollectableRow) (model.Message, error) {
	var (
		m       model.Message
		fileID  *string
		name    *string
		typ     *string
		size    *int64
	)
	if err := r.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.CreatedAt, &fileID, &name, &typ, &size); err != nil {
		return m, err
	}
	if fileID != nil {
		m.Attachment = &model.Attachment{ID: *fileID, Name: *name, Type: *typ, Size: *size}
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *Store) latestMessages(ctx context.Context, convIDs []string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (m.conversation_id) `+messageColumns+`
		FROM message m LEFT JOIN file f ON f.id = m.attachment
		WHERE m.conversation_id = ANY($1)
		ORDER BY m.conversation_id, m.created_at DESC, m.id DESC`, convIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "latest messages")
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	return msgs, errs.WrapMsg(err, "scan latest messages")
}

func (s *Store) members(ctx context.Context, convIDs []string) ([]model.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT um.conversation_id, um.member_id, um.joined_at,
		       COALESCE(u.name, ''), COALESCE(u.image, ''), COALESCE(u.email, '')
		FROM users_to_conversation um LEFT JOIN users u ON u.id = um.member_id
		WHERE um.conversation_id = ANY($1)
		ORDER BY um.joined_at, um.member_id`, convIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "list members")
	}
	members, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Member, error) {
		var m model.Member
		err := r.Scan(&m.ConversationID, &m.MemberID, &m.JoinedAt, &m.User.Name, &m.User.Image, &m.User.Email)
		m.User.ID = m.MemberID
		return m, err
	})
	return members, errs.WrapMsg(err, "scan members")
}

func (s *Store) CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	ts := now()
	id := uuid.NewString()
	memberIDs := n.Members()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation (id, name, image, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			id, n.Name, n.Image, ts); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, m := range memberIDs {
			batch.Queue(`INSERT INTO users_to_conversation (member_id, conversation_id, joined_at) VALUES ($1, $2, $3)`, m, id, ts)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create conversation")
	}

	members, err := s.members(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return &model.ConversationSummary{
		ID:        id,
		Name:      n.Name,
		Image:     n.Image,
		UpdatedAt: ts,
		Messages:  []model.Message{},
		Members:   members,
	}, nil
}

func (s *Store) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists, member bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM conversation WHERE id = $1),
		       EXISTS (SELECT 1 FROM users_to_conversation WHERE conversation_id = $1 AND member_id = $2)`,
		conversationID, userID).Scan(&exists, &member)
	if err != nil {
		return false, errs.WrapMsg(err, "check membership")
	}
	if !exists {
		return false, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	return member, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversation WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return nil, errs.WrapMsg(err, "check conversation")
	}
	if !exists {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM message m LEFT JOIN file f ON f.id = m.attachment
		WHERE m.conversation_id = $1
		ORDER BY m.created_at, m.id`, conversationID)
	if err != nil {
		return nil, errs.WrapMsg(err, "list messages")
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	return msgs, errs.WrapMsg(err, "scan messages")
}

func (s *Store) CreateMessage(ctx context.Context, n model.NewMessage) (*model.Message, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	member, err := s.IsMember(ctx, n.ConversationID, n.SenderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errs.ErrNoPermission.WrapMsg("sender is not a member", "conversationId", n.ConversationID, "senderId", n.SenderID)
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		Text:           n.Text,
		CreatedAt:      now(),
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var fileID *string
		if n.Attachment != nil {
			att := *n.Attachment
			att.ID = uuid.NewString()
			if err := insertFile(ctx, tx, att); err != nil {
				return err
			}
			fileID = &att.ID
			msg.Attachment = &att
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO message (id, conversation_id, sender_id, message, attachment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Text, fileID, msg.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE conversation SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`,
			msg.ConversationID, msg.CreatedAt)
		return err
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create message", "conversationId", n.ConversationID)
	}
	return msg, nil
}

func insertFile(ctx context.Context, tx pgx.Tx, a model.Attachment) error {
	_, err := tx.Exec(ctx, `INSERT INTO file (id, name, type, size) VALUES ($1, $2, $3, $4)`, a.ID, a.Name, a.Type, a.Size)
	return err
}

func (s *Store) SetAttachment(ctx context.Context, messageID string, a model.Attachment) (*model.Message, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	var msg model.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current *string
		err := tx.QueryRow(ctx, `
			SELECT id, conversation_id, sender_id, message, created_at, attachment
			FROM message WHERE id = $1 FOR UPDATE`, messageID).
			Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.CreatedAt, &current)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrRecordNotFound.WrapMsg("message not found", "messageId", messageID)
		}
		if err != nil {
			return err
		}
		if current != nil {
			return errs.ErrArgs.WrapMsg("message already has an attachment", "messageId", messageID)
		}
		if err := insertFile(ctx, tx, a); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE message SET attachment = $2 WHERE id = $1`, messageID, a.ID)
		return err
	})
	if err != nil {
		if _, ok := errs.AsCode(err); ok {
			return nil, err
		}
		return nil, errs.WrapMsg(err, "set attachment", "messageId", messageID)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.Attachment = &a
	return &msg, nil
}
