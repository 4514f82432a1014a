package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/EthanQC/warpong/internal/domain/entity"
	"github.com/EthanQC/warpong/internal/ports/out"
	apperrors "github.com/EthanQC/warpong/pkg/errors"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// Store 文档库实现，users 与 messages 两个集合
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

var _ out.Storage = (*Store)(nil)

// Connect 建立连接并确保索引
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperrors.Storage("mongo.connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, apperrors.Storage("mongo.ping", err)
	}
	s, err := NewStore(ctx, client, database)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewStore 基于已有客户端
func NewStore(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}

	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, apperrors.Storage("mongo.index_users", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "from", Value: 1}, {Key: "to", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return nil, apperrors.Storage("mongo.index_messages", err)
	}
	return s, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*entity.User, error) {
	var u entity.User
	err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Storage("mongo.find_user", err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *entity.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicateUsername
		}
		return apperrors.Storage("mongo.create_user", err)
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user *entity.User) error {
	_, err := s.users.ReplaceOne(ctx,
		bson.M{"username": user.Username},
		user,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return apperrors.Storage("mongo.upsert_user", err)
	}
	return nil
}

func (s *Store) SetStatus(ctx context.Context, username string, status entity.UserStatus, lastSeen time.Time) error {
	return s.setFields(ctx, "mongo.set_status", username, bson.M{
		"status":   status,
		"lastSeen": lastSeen,
	})
}

func (s *Store) SetLocation(ctx context.Context, username string, loc entity.Location) error {
	return s.setFields(ctx, "mongo.set_location", username, bson.M{
		"location": loc,
	})
}

func (s *Store) setFields(ctx context.Context, op, username string, fields bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"username": username}, bson.M{"$set": fields})
	if err != nil {
		return apperrors.Storage(op, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*entity.User, error) {
	cur, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, apperrors.Storage("mongo.list_users", err)
	}
	var users []*entity.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, apperrors.Storage("mongo.list_users", err)
	}
	return users, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *entity.Message) error {
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return apperrors.Storage("mongo.append_message", err)
	}
	return nil
}

func (s *Store) ListConversation(ctx context.Context, a, b string, limit int) ([]*entity.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"from": a, "to": b},
		bson.M{"from": b, "to": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.Storage("mongo.list_conversation", err)
	}
	var newestFirst []*entity.Message
	if err := cur.All(ctx, &newestFirst); err != nil {
		return nil, apperrors.Storage("mongo.list_conversation", err)
	}

	msgs := make([]*entity.Message, len(newestFirst))
	for i, m := range newestFirst {
		msgs[len(newestFirst)-1-i] = m
	}
	return msgs, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
