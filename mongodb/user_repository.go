package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vibestream/vibestream-server/domain"
)

// UserRepositoryMongo implements domain.UserRepository on MongoDB.
type UserRepositoryMongo struct {
	collection *mongo.Collection
}

// NewUserRepositoryMongo creates the repository and ensures its indexes.
func NewUserRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.UserRepository, error) {
	repo := &UserRepositoryMongo{collection: db.Collection(UsersCollection)}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// One linked service per service name within a user document is
			// enforced by the guarded $push in AddLinkedService; this index
			// only serves lookups by provider-side profile.
			Keys:    bson.D{{Key: "linked_services.profile_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return nil, fmt.Errorf("failed to create %s indexes: %w", UsersCollection, err)
	}
	log.Info().Msgf("Indexes for %s collection ensured.", UsersCollection)

	return repo, nil
}

func (r *UserRepositoryMongo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return r.classifyDuplicate(ctx, user)
		}
		log.Error().Err(err).Str("email", user.Email).Msg("Error creating user")
		return err
	}
	return nil
}

// classifyDuplicate turns a duplicate-key insert failure into the more
// specific email/username domain error.
func (r *UserRepositoryMongo) classifyDuplicate(ctx context.Context, user *domain.User) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"email": user.Email})
	if err == nil && count > 0 {
		return domain.ErrEmailTaken
	}
	return domain.ErrUsernameTaken
}

func (r *UserRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepositoryMongo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepositoryMongo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		log.Error().Err(err).Interface("filter", filter).Msg("Error finding user")
		return nil, err
	}
	return &user, nil
}

// AddLinkedService appends the link with a filter that excludes documents
// already carrying one for the same service, so at-most-one-link-per-service
// holds even under concurrent link attempts.
func (r *UserRepositoryMongo) AddLinkedService(ctx context.Context, userID string, svc domain.LinkedService) error {
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	filter := bson.M{
		"_id":                          userID,
		"linked_services.service_name": bson.M{"$ne": svc.ServiceName},
	}
	update := bson.M{
		"$push": bson.M{"linked_services": svc},
		"$set":  bson.M{"updated_at": now},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("service", svc.ServiceName.String()).Msg("Error adding linked service")
		return err
	}
	if res.MatchedCount == 0 {
		// Either the user does not exist or the link does. Disambiguate.
		count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": userID})
		if countErr == nil && count == 0 {
			return domain.ErrUserNotFound
		}
		return domain.ErrAlreadyLinked
	}
	return nil
}

// UpdateLinkedService replaces the whole embedded sub-document via the
// positional operator. Concurrent refreshes for the same user are not
// serialized; the last write wins and every issued token stays valid until
// its own expiry.
func (r *UserRepositoryMongo) UpdateLinkedService(ctx context.Context, userID string, svc domain.LinkedService) error {
	svc.UpdatedAt = time.Now().UTC()

	filter := bson.M{
		"_id":                          userID,
		"linked_services.service_name": svc.ServiceName,
	}
	update := bson.M{
		"$set": bson.M{
			"linked_services.$": svc,
			"updated_at":        svc.UpdatedAt,
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("service", svc.ServiceName.String()).Msg("Error updating linked service")
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrServiceNotLinked
	}
	return nil
}

func (r *UserRepositoryMongo) RemoveLinkedService(ctx context.Context, userID string, name domain.StreamingService) error {
	filter := bson.M{"_id": userID}
	update := bson.M{
		"$pull": bson.M{"linked_services": bson.M{"service_name": name}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("service", name.String()).Msg("Error removing linked service")
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	if res.ModifiedCount == 0 {
		return domain.ErrServiceNotLinked
	}
	return nil
}

// UpsertAuthMethod overwrites the user's auth method for the given provider,
// appending it when the provider has not been used before.
func (r *UserRepositoryMongo) UpsertAuthMethod(ctx context.Context, userID string, method domain.AuthMethod) error {
	now := time.Now().UTC()
	method.UpdatedAt = now

	filter := bson.M{
		"_id":                        userID,
		"auth_methods.auth_provider": method.AuthProvider,
	}
	update := bson.M{
		"$set": bson.M{
			"auth_methods.$.provider_id":     method.ProviderID,
			"auth_methods.$.access_token":    method.AccessToken,
			"auth_methods.$.refresh_token":   method.RefreshToken,
			"auth_methods.$.expiration_date": method.ExpirationDate,
			"auth_methods.$.updated_at":      method.UpdatedAt,
			"updated_at":                     now,
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("provider", method.AuthProvider.String()).Msg("Error updating auth method")
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// No existing method for this provider; append one.
	method.CreatedAt = now
	pushRes, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"auth_methods": method},
		"$set":  bson.M{"updated_at": now},
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("provider", method.AuthProvider.String()).Msg("Error adding auth method")
		return err
	}
	if pushRes.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ domain.UserRepository = (*UserRepositoryMongo)(nil)
