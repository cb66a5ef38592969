package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/segyhp/loan-tracker/internal/config"
)

const connectTimeout = 10 * time.Second

// OpenPostgres connects to postgres and applies the pool settings
func OpenPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func OpenRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// OpenMongo connects and pings. Callers own Disconnect on the returned client.
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Pingers returns the readiness checks for every store the process uses
func Pingers(db *sqlx.DB, rdb *redis.Client, mc *mongo.Client) map[string]Pinger {
	checks := make(map[string]Pinger)
	if db != nil {
		checks["database"] = PingFunc(db.PingContext)
	}
	if rdb != nil {
		checks["redis"] = PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if mc != nil {
		checks["mongo"] = PingFunc(func(ctx context.Context) error {
			return mc.Ping(ctx, nil)
		})
	}
	return checks
}
