package mgo

import (
	"context"
	"errors"
	"time"

	"EchoChat/data/database"
	"EchoChat/logger"
	"EchoChat/module/chat/model"
	"EchoChat/tools/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ database.Store = (*Store)(nil)

type Store struct {
	cli *mongo.Client
	db  *mongo.Database
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	cli, err := connect(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Mongo] connected db=%s", cfg.Database)
	return &Store{cli: cli, db: cli.Database(cfg.Database)}, nil
}

func (s *Store) coll(t database.Table) *mongo.Collection {
	return s.db.Collection(t.GetTableName())
}

func (s *Store) users() *mongo.Collection         { return s.coll(&model.User{}) }
func (s *Store) conversations() *mongo.Collection { return s.coll(&model.Conversation{}) }
func (s *Store) members() *mongo.Collection       { return s.coll(&model.Member{}) }
func (s *Store) messages() *mongo.Collection      { return s.coll(&model.Message{}) }

// EnsureIndexes 可重复执行
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.members().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "member_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "member_id", Value: 1}}},
	}); err != nil {
		return errs.WrapMsg(err, "ensure member indexes")
	}
	if _, err := s.messages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return errs.WrapMsg(err, "ensure message indexes")
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.cli.Disconnect(ctx)
}

// mongo 只存到毫秒
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "list users")
	}
	out := make([]model.User, 0)
	return out, errs.WrapMsg(cur.All(ctx, &out), "decode users")
}

func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		return errs.ErrArgs.WrapMsg("user id is empty")
	}
	_, err := s.users().ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	return errs.WrapMsg(err, "upsert user", "id", u.ID)
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	var mine []model.Member
	cur, err := s.members().Find(ctx, bson.M{"member_id": userID})
	if err != nil {
		return nil, errs.WrapMsg(err, "find memberships", "userId", userID)
	}
	if err := cur.All(ctx, &mine); err != nil {
		return nil, errs.WrapMsg(err, "decode memberships")
	}
	out := make([]model.ConversationSummary, 0, len(mine))
	if len(mine) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(mine))
	for _, m := range mine {
		ids = append(ids, m.ConversationID)
	}

	var convs []model.Conversation
	cur, err = s.conversations().Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find conversations")
	}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, errs.WrapMsg(err, "decode conversations")
	}

	members, err := s.membersWithUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		sum := model.ConversationSummary{
			ID:        c.ID,
			Name:      c.Name,
			Image:     c.Image,
			UpdatedAt: c.UpdatedAt.UTC(),
			Messages:  []model.Message{},
			Members:   members[c.ID],
		}
		if sum.Members == nil {
			sum.Members = []model.Member{}
		}
		latest, err := s.latest(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			sum.Messages = append(sum.Messages, *latest)
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Store) latest(ctx context.Context, convID string) (*model.Message, error) {
	var m model.Message
	err := s.messages().FindOne(ctx, bson.M{"conversation_id": convID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "latest message", "conversationId", convID)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) membersWithUsers(ctx context.Context, convIDs []string) (map[string][]model.Member, error) {
	var all []model.Member
	cur, err := s.members().Find(ctx, bson.M{"conversation_id": bson.M{"$in": convIDs}},
		options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "member_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find members")
	}
	if err := cur.All(ctx, &all); err != nil {
		return nil, errs.WrapMsg(err, "decode members")
	}

	userIDs := make([]string, 0, len(all))
	for _, m := range all {
		userIDs = append(userIDs, m.MemberID)
	}
	var users []model.User
	cur, err = s.users().Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, errs.WrapMsg(err, "find member users")
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, errs.WrapMsg(err, "decode member users")
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make(map[string][]model.Member, len(convIDs))
	for _, m := range all {
		m.User = byID[m.MemberID]
		m.User.ID = m.MemberID
		m.JoinedAt = m.JoinedAt.UTC()
		out[m.ConversationID] = append(out[m.ConversationID], m)
	}
	return out, nil
}

func (s *Store) CreateConversation(ctx context.Context, n model.NewConversation) (*model.ConversationSummary, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	ts := now()
	c := model.Conversation{ID: uuid.NewString(), Name: n.Name, Image: n.Image, CreatedAt: ts, UpdatedAt: ts}
	if _, err := s.conversations().InsertOne(ctx, c); err != nil {
		return nil, errs.WrapMsg(err, "insert conversation")
	}

	docs := make([]any, 0, len(n.Members()))
	for _, id := range n.Members() {
		docs = append(docs, model.Member{ConversationID: c.ID, MemberID: id, JoinedAt: ts})
	}
	if _, err := s.members().InsertMany(ctx, docs); err != nil {
		return nil, errs.WrapMsg(err, "insert members", "conversationId", c.ID)
	}

	members, err := s.membersWithUsers(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	return &model.ConversationSummary{
		ID:        c.ID,
		Name:      c.Name,
		Image:     c.Image,
		UpdatedAt: ts,
		Messages:  []model.Message{},
		Members:   members[c.ID],
	}, nil
}

func (s *Store) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := s.conversations().CountDocuments(ctx, bson.M{"_id": conversationID}, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "check conversation")
	}
	if n == 0 {
		return false, errs.ErrRecordNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	n, err = s.members().CountDocuments(ctx, bson.M{"conversation_id": conversationID, "member_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "check membership")
	}
	return n > 0, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.IsMember(ctx, conversationID, ""); err != nil {
		return nil, err
	}
	cur, err := s.messages().Find(ctx, bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "list messages")
	}
	out := make([]model.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
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

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: n.ConversationID,
		SenderID:       n.SenderID,
		Text:           n.Text,
		CreatedAt:      now(),
	}
	if n.Attachment != nil {
		att := *n.Attachment
		att.ID = uuid.NewString()
		msg.Attachment = &att
	}
	if _, err := s.messages().InsertOne(ctx, msg); err != nil {
		return nil, errs.WrapMsg(err, "insert message")
	}
	if _, err := s.conversations().UpdateOne(ctx, bson.M{"_id": msg.ConversationID},
		bson.M{"$max": bson.M{"updated_at": msg.CreatedAt}}); err != nil {
		return nil, errs.WrapMsg(err, "bump conversation", "conversationId", msg.ConversationID)
	}
	return &msg, nil
}

func (s *Store) SetAttachment(ctx context.Context, messageID string, a model.Attachment) (*model.Message, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var msg model.Message
	err := s.messages().FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "file": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"file": a}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := s.messages().CountDocuments(ctx, bson.M{"_id": messageID}, options.Count().SetLimit(1))
		if cerr == nil && n > 0 {
			return nil, errs.ErrArgs.WrapMsg("message already has an attachment", "messageId", messageID)
		}
		return nil, errs.ErrRecordNotFound.WrapMsg("message not found", "messageId", messageID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "set attachment", "messageId", messageID)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
