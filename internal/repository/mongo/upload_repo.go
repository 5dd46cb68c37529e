package mongo

import (
	"alcyxob/fight-gateway/internal/domain"
	"alcyxob/fight-gateway/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const uploadCollectionName = "uploads"

// mongoUploadRepository implements repository.UploadRepository
type mongoUploadRepository struct {
	collection *mongo.Collection
}

// NewMongoUploadRepository creates a new Upload repository backed by MongoDB.
func NewMongoUploadRepository(db *mongo.Database) repository.UploadRepository {
	return &mongoUploadRepository{
		collection: db.Collection(uploadCollectionName),
	}
}

// Create inserts a new upload record.
func (r *mongoUploadRepository) Create(ctx context.Context, record *domain.UploadRecord) (primitive.ObjectID, error) {
	if record.UploadID == "" || record.SessionID == "" || record.Location == "" {
		return primitive.NilObjectID, errors.New("upload record requires uploadId, sessionId and location")
	}

	record.ID = primitive.NewObjectID()
	if record.Status == "" {
		record.Status = domain.UploadStatusStaged
	}
	if record.StagedAt.IsZero() {
		record.StagedAt = time.Now().UTC()
	}

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return primitive.NilObjectID, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted ID")
	}
	return insertedID, nil
}

// GetByUploadID retrieves the record of a staged upload.
func (r *mongoUploadRepository) GetByUploadID(ctx context.Context, uploadID string) (*domain.UploadRecord, error) {
	var record domain.UploadRecord
	err := r.collection.FindOne(ctx, bson.M{"uploadId": uploadID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// MarkReleased flips a staged record to released. Records already submitted keep their status.
func (r *mongoUploadRepository) MarkReleased(ctx context.Context, uploadID string, at time.Time) error {
	filter := bson.M{"uploadId": uploadID, "status": domain.UploadStatusStaged}
	update := bson.M{"$set": bson.M{"status": domain.UploadStatusReleased, "releasedAt": at.UTC()}}
	return r.updateOne(ctx, filter, update)
}

// MarkSubmitted records a successful hand-off to the analysis backend.
func (r *mongoUploadRepository) MarkSubmitted(ctx context.Context, uploadID, analysisID string, at time.Time) error {
	filter := bson.M{"uploadId": uploadID, "status": domain.UploadStatusStaged}
	update := bson.M{"$set": bson.M{
		"status":      domain.UploadStatusSubmitted,
		"analysisId":  analysisID,
		"submittedAt": at.UTC(),
	}}
	return r.updateOne(ctx, filter, update)
}

func (r *mongoUploadRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return repository.ErrUpdateFailed
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListBySession returns the most recent records of a session, newest first.
func (r *mongoUploadRepository) ListBySession(ctx context.Context, sessionID string, limit int64) ([]domain.UploadRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "stagedAt", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []domain.UploadRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// EnsureUploadIndexes creates necessary indexes for the uploads collection.
func EnsureUploadIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uploadId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// History listing per session, newest first
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "stagedAt", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
