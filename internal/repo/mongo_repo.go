package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chatsCollection    = "chats"
	countersCollection = "counters"
)

// MongoChatRepo stores the message log in MongoDB. Numeric ids come from a
// counters document so they stay comparable with the SQL backend.
type MongoChatRepo struct {
	chats    *mongo.Collection
	counters *mongo.Collection
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongoChatRepo stores chats in db.chats and ids in db.counters.
func NewMongoChatRepo(db *mongo.Database) *MongoChatRepo {
	return &MongoChatRepo{
		chats:    db.Collection(chatsCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the (room_id, _id desc) index used by ListChats.
func (r *MongoChatRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create chat index: %w", err)
	}
	return nil
}

func (r *MongoChatRepo) nextID(ctx context.Context) (uint, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": chatsCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next chat id: %w", err)
	}
	return uint(counter.Seq), nil
}

func (r *MongoChatRepo) AppendChat(ctx context.Context, msg *models.ChatMessage) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if _, err := r.chats.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

func (r *MongoChatRepo) ListChats(ctx context.Context, roomID uint, limit int) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.chats.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	msgs := []models.ChatMessage{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return msgs, nil
}
