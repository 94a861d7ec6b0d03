package bytemark

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNoOAuthToken is returned when a user has no Bytemark OAuth token.
var ErrNoOAuthToken = errors.New("no bytemark oauth token")

// Store is the persistence boundary for the ticket cache. OAuth tokens live
// in postgres, cache documents and logs in mongo.
type Store interface {
	OAuthToken(ctx context.Context, userID int64) (string, error)
	UsersWithOAuthToken(ctx context.Context) ([]int64, error)

	GetCache(ctx context.Context, userID int64) (*TicketsCache, error)
	UpsertCache(ctx context.Context, cache *TicketsCache) error
	CountCaches(ctx context.Context) (int64, error)
	InsertRefreshLog(ctx context.Context, log *RefreshLog) error
	InsertTicketLogs(ctx context.Context, logs []TicketLog) error
}

const (
	cacheCollection      = "bytemark_tickets_cache"
	ticketLogCollection  = "bytemark_tickets_log"
	refreshLogCollection = "bytemark_ticket_refresh_log"
)

// Repository implements Store over postgres and mongo.
type Repository struct {
	db    *pgxpool.Pool
	mongo *mongo.Database
}

// NewRepository creates a new bytemark repository
func NewRepository(db *pgxpool.Pool, mongoDB *mongo.Database) *Repository {
	return &Repository{db: db, mongo: mongoDB}
}

func (r *Repository) OAuthToken(ctx context.Context, userID int64) (string, error) {
	query := `SELECT token FROM bytemark_oauth_token WHERE user_id = $1`

	var token string
	err := r.db.QueryRow(ctx, query, userID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoOAuthToken
	}
	return token, err
}

func (r *Repository) UsersWithOAuthToken(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT user_id FROM bytemark_oauth_token WHERE token IS NOT NULL AND token <> ''`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *Repository) GetCache(ctx context.Context, userID int64) (*TicketsCache, error) {
	var cache TicketsCache
	err := r.mongo.Collection(cacheCollection).
		FindOne(ctx, bson.M{"user_id": userID}).
		Decode(&cache)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cache, nil
}

func (r *Repository) UpsertCache(ctx context.Context, cache *TicketsCache) error {
	_, err := r.mongo.Collection(cacheCollection).ReplaceOne(ctx,
		bson.M{"user_id": cache.UserID},
		cache,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *Repository) CountCaches(ctx context.Context) (int64, error) {
	return r.mongo.Collection(cacheCollection).CountDocuments(ctx, bson.M{})
}

func (r *Repository) InsertRefreshLog(ctx context.Context, log *RefreshLog) error {
	_, err := r.mongo.Collection(refreshLogCollection).InsertOne(ctx, log)
	return err
}

func (r *Repository) InsertTicketLogs(ctx context.Context, logs []TicketLog) error {
	if len(logs) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(logs))
	for _, l := range logs {
		docs = append(docs, l)
	}
	_, err := r.mongo.Collection(ticketLogCollection).InsertMany(ctx, docs)
	return err
}
