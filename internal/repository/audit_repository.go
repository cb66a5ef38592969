package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/segyhp/loan-tracker/internal/domain"
)

const auditCollection = "audit_logs"

type auditRepository struct {
	collection *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) AuditRepository {
	return &auditRepository{collection: db.Collection(auditCollection)}
}

// EnsureAuditIndexes creates the indexes used by audit listings
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "target_type", Value: 1}, {Key: "target_id", Value: 1}}},
	}
	_, err := db.Collection(auditCollection).Indexes().CreateMany(ctx, models)
	return err
}

func (r *auditRepository) Insert(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	return translateError(err)
}

func (r *auditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, int64, error) {
	page := filter.Page.Normalize()
	query := auditFilterDoc(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	entries := []*domain.AuditLog{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// auditFilterDoc builds the mongo query for an audit filter; empty fields match anything
func auditFilterDoc(filter domain.AuditFilter) bson.M {
	query := bson.M{}
	if filter.ActorID != "" {
		query["actor_id"] = filter.ActorID
	}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.TargetType != "" {
		query["target_type"] = filter.TargetType
	}
	if filter.TargetID != "" {
		query["target_id"] = filter.TargetID
	}
	return query
}
