package reviewdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collectionName はレビューを格納するコレクション名。
const collectionName = "reviews"

// mongoConnectTimeout は接続確立とインデックス作成のタイムアウト。
const mongoConnectTimeout = 10 * time.Second

// reviewDocument はreviewsコレクションのドキュメント。
type reviewDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	BookID     string             `bson:"bookId"`
	UserID     string             `bson:"userId"`
	Rating     int                `bson:"rating"`
	ReviewText string             `bson:"reviewText"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
	IsVerified bool               `bson:"isVerified"`
}

func (d reviewDocument) toReview() Review {
	return Review{
		ID:         d.ID.Hex(),
		BookID:     d.BookID,
		UserID:     d.UserID,
		Rating:     d.Rating,
		ReviewText: d.ReviewText,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
		IsVerified: d.IsVerified,
	}
}

// MongoStore はMongoDBを使ったStoreの実装。
type MongoStore struct {
	// client はMongoDBクライアント。Closeで切断する。
	client *mongo.Client
	// coll はreviewsコレクション。
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// OpenMongo はMongoDBに接続し、必要なインデックスを作成したStoreを返す。
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("MongoDBへの接続に失敗: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDBへの疎通確認に失敗: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// ensureIndexes は検索用インデックスと (bookId, userId) の一意インデックスを作成する。
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_book_user"),
		},
		{
			Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_book_created"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("インデックスの作成に失敗: %w", err)
	}
	return nil
}

// FindAll はすべてのレビューを新しい順に返す。
func (s *MongoStore) FindAll(ctx context.Context) ([]Review, error) {
	return s.find(ctx, bson.D{})
}

// FindByBookID は書籍のレビューを新しい順に返す。
func (s *MongoStore) FindByBookID(ctx context.Context, bookID string) ([]Review, error) {
	return s.find(ctx, bson.D{{Key: "bookId", Value: bookID}})
}

// FindByUserID はユーザーのレビューを新しい順に返す。
func (s *MongoStore) FindByUserID(ctx context.Context, userID string) ([]Review, error) {
	return s.find(ctx, bson.D{{Key: "userId", Value: userID}})
}

// FindByBookAndUser は書籍とユーザーの組み合わせでレビューを返す。
func (s *MongoStore) FindByBookAndUser(ctx context.Context, bookID, userID string) (Review, error) {
	return s.findOne(ctx, bson.D{{Key: "bookId", Value: bookID}, {Key: "userId", Value: userID}})
}

// FindByID はIDでレビューを返す。IDがObjectIDとして不正な場合もErrNotFoundを返す。
func (s *MongoStore) FindByID(ctx context.Context, id string) (Review, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Review{}, ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// Save はレビューを挿入または更新する。
func (s *MongoStore) Save(ctx context.Context, r Review) (Review, error) {
	if r.ID == "" {
		return s.insert(ctx, r)
	}
	return s.update(ctx, r)
}

func (s *MongoStore) insert(ctx context.Context, r Review) (Review, error) {
	doc := reviewDocument{
		ID:         primitive.NewObjectID(),
		BookID:     r.BookID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
		IsVerified: r.IsVerified,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Review{}, ErrDuplicate
		}
		return Review{}, fmt.Errorf("レビューの挿入に失敗: %w", err)
	}
	r.ID = doc.ID.Hex()
	return r, nil
}

func (s *MongoStore) update(ctx context.Context, r Review) (Review, error) {
	oid, err := primitive.ObjectIDFromHex(r.ID)
	if err != nil {
		return Review{}, ErrNotFound
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: r.Rating},
			{Key: "reviewText", Value: r.ReviewText},
			{Key: "updatedAt", Value: r.UpdatedAt.UTC()},
		}}},
	)
	if err != nil {
		return Review{}, fmt.Errorf("レビューの更新に失敗: %w", err)
	}
	if res.MatchedCount == 0 {
		return Review{}, ErrNotFound
	}
	return s.FindByID(ctx, r.ID)
}

// Delete はレビューを削除する。
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByBookID は書籍のレビューをすべて削除する。
func (s *MongoStore) DeleteByBookID(ctx context.Context, bookID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.D{{Key: "bookId", Value: bookID}})
	if err != nil {
		return 0, fmt.Errorf("書籍のレビュー削除に失敗: %w", err)
	}
	return res.DeletedCount, nil
}

// CountByUserID はユーザーのレビュー件数を返す。
func (s *MongoStore) CountByUserID(ctx context.Context, userID string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "userId", Value: userID}})
	if err != nil {
		return 0, fmt.Errorf("レビュー件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Close はMongoDBとの接続を切断する。
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) find(ctx context.Context, filter bson.D) ([]Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗: %w", err)
	}
	var docs []reviewDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("レビュー一覧の読み込みに失敗: %w", err)
	}
	reviews := make([]Review, 0, len(docs))
	for _, d := range docs {
		reviews = append(reviews, d.toReview())
	}
	return reviews, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (Review, error) {
	var doc reviewDocument
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Review{}, ErrNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("レビューの取得に失敗: %w", err)
	}
	return doc.toReview(), nil
}
