package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCollection holds one document per activity.
const MongoCollection = "activities"

// maxMongoAttempts bounds retries when a conditional update matched nothing
// yet the follow-up read shows no violated rule.
const maxMongoAttempts = 3

type mongoActivity struct {
	Name            string   `bson:"name"`
	Description     string   `bson:"description"`
	Schedule        string   `bson:"schedule"`
	MaxParticipants *int     `bson:"max_participants"`
	Participants    []string `bson:"participants"`
}

func (d mongoActivity) toModel() models.Activity {
	return models.Activity{
		Description:     d.Description,
		Schedule:        d.Schedule,
		MaxParticipants: d.MaxParticipants,
		Participants:    d.Participants,
	}.Clone()
}

// MongoStore keeps activities as documents keyed by a unique name. Every
// roster rule is part of the update filter, so the single-document update
// either applies with every check passing or matches nothing.
type MongoStore struct {
	coll *mongo.Collection
	log  logger.Logger
}

func NewMongoStore(coll *mongo.Collection, log logger.Logger) *MongoStore {
	return &MongoStore{
		coll: coll,
		log:  log.WithFields(map[string]interface{}{"backend": BackendMongo}),
	}
}

// EnsureIndexes creates the unique index on name.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("create index: %w", err))
	}
	return nil
}

func (s *MongoStore) Backend() string { return BackendMongo }

func (s *MongoStore) Close() error {
	return s.coll.Database().Client().Disconnect(context.Background())
}

func (s *MongoStore) ListActivities(ctx context.Context) (out map[string]models.Activity, err error) {
	defer func() { observe(BackendMongo, "list", err) }()

	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendMongo, err)
	}

	var docs []mongoActivity
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("decode activities: %w", err))
	}

	out = make(map[string]models.Activity, len(docs))
	for _, d := range docs {
		out[d.Name] = d.toModel()
	}
	return out, nil
}

func signupFilter(activityName, email string) bson.D {
	return bson.D{
		{Key: "name", Value: activityName},
		{Key: "participants", Value: bson.D{{Key: "$ne", Value: email}}},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "max_participants", Value: nil}},
			bson.D{{Key: "$expr", Value: bson.D{{Key: "$lt", Value: bson.A{
				bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$participants", bson.A{}}}}}},
				"$max_participants",
			}}}}},
		}},
	}
}

func (s *MongoStore) Signup(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendMongo, "signup", err) }()

	push := bson.D{{Key: "$push", Value: bson.D{{Key: "participants", Value: email}}}}
	for attempt := 0; attempt < maxMongoAttempts; attempt++ {
		applied, err := s.apply(ctx, activityName, signupFilter(activityName, email), push)
		if err != nil || applied {
			return err
		}

		activity, err := s.find(ctx, activityName)
		if err != nil {
			return err
		}
		if activity.HasParticipant(email) {
			return apperrors.NewAlreadyRegisteredError(activityName, email)
		}
		if activity.IsFull() {
			return apperrors.NewCapacityExceededError(activityName, *activity.MaxParticipants)
		}
	}
	return apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("signup for %s kept conflicting", activityName))
}

func (s *MongoStore) Unregister(ctx context.Context, activityName, email string) (err error) {
	defer func() { observe(BackendMongo, "unregister", err) }()

	filter := bson.D{{Key: "name", Value: activityName}, {Key: "participants", Value: email}}
	pull := bson.D{{Key: "$pull", Value: bson.D{{Key: "participants", Value: email}}}}
	for attempt := 0; attempt < maxMongoAttempts; attempt++ {
		applied, err := s.apply(ctx, activityName, filter, pull)
		if err != nil || applied {
			return err
		}

		activity, err := s.find(ctx, activityName)
		if err != nil {
			return err
		}
		if !activity.HasParticipant(email) {
			return apperrors.NewNotRegisteredError(activityName, email)
		}
	}
	return apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("unregister from %s kept conflicting", activityName))
}

// apply runs a conditional update and reports whether the filter matched.
func (s *MongoStore) apply(ctx context.Context, activityName string, filter, update bson.D) (bool, error) {
	var doc mongoActivity
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("update %s: %w", activityName, err))
	}
	metrics.RosterSize.WithLabelValues(activityName).Set(float64(len(doc.Participants)))
	return true, nil
}

// find reads one activity after a conditional update matched nothing.
func (s *MongoStore) find(ctx context.Context, activityName string) (models.Activity, error) {
	var doc mongoActivity
	err := s.coll.FindOne(ctx, bson.D{{Key: "name", Value: activityName}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Activity{}, apperrors.NewActivityNotFoundError(activityName)
	}
	if err != nil {
		return models.Activity{}, apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("read %s: %w", activityName, err))
	}
	return doc.toModel(), nil
}

// SeedIfEmpty inserts the catalog when the collection holds no documents. A
// concurrent seeder is detected through the unique name index.
func (s *MongoStore) SeedIfEmpty(ctx context.Context, catalog map[string]models.Activity) (seeded bool, err error) {
	defer func() { observe(BackendMongo, "seed", err) }()

	count, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return false, apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("count activities: %w", err))
	}
	if count > 0 {
		s.log.Info("activities already present, skipping seed", map[string]interface{}{"count": count})
		return false, nil
	}
	if len(catalog) == 0 {
		return false, nil
	}

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	docs := make([]interface{}, 0, len(names))
	for _, name := range names {
		a := catalog[name].Clone()
		docs = append(docs, mongoActivity{
			Name:            name,
			Description:     a.Description,
			Schedule:        a.Schedule,
			MaxParticipants: a.MaxParticipants,
			Participants:    a.Participants,
		})
	}

	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.log.Info("concurrent seed detected, skipping", nil)
			return false, nil
		}
		return false, apperrors.NewStoreUnavailableError(BackendMongo, fmt.Errorf("insert activities: %w", err))
	}

	s.log.Info("seeded activities", map[string]interface{}{"count": len(names)})
	return true, nil
}
