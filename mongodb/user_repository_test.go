package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/vibestream/vibestream-server/domain"
)

// setupTestDB connects to the MongoDB named by TEST_MONGO_URI and hands back
// an isolated throwaway database. Tests that need it skip when the variable
// is not set.
func setupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	mongoURI := os.Getenv("TEST_MONGO_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test: TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI).SetConnectTimeout(10 * time.Second))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("test_vibestream_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		cleanupCtx := context.Background()
		if err := db.Drop(cleanupCtx); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(cleanupCtx); err != nil {
			t.Logf("Warning: failed to disconnect test client: %v", err)
		}
	})
	return db
}

func testLink(accessToken string) domain.LinkedService {
	return domain.LinkedService{
		ServiceName:    domain.ServiceSpotify,
		ProfileID:      "spotify-user-1",
		AccessToken:    accessToken,
		RefreshToken:   "R1",
		ExpirationDate: time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
	}
}

func TestUserRepositoryMongo_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewUserRepositoryMongo(ctx, db)
	require.NoError(t, err)

	user := &domain.User{Username: "listener", Email: "listener@example.com"}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	t.Run("duplicate email", func(t *testing.T) {
		dup := &domain.User{Username: "other", Email: "listener@example.com"}
		assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrEmailTaken)
	})

	t.Run("duplicate username", func(t *testing.T) {
		dup := &domain.User{Username: "listener", Email: "other@example.com"}
		assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrUsernameTaken)
	})

	t.Run("get by id and email", func(t *testing.T) {
		byID, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "listener@example.com", byID.Email)

		byEmail, err := repo.GetByEmail(ctx, "listener@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		_, err = repo.GetByID(ctx, "no-such-id")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("add linked service", func(t *testing.T) {
		require.NoError(t, repo.AddLinkedService(ctx, user.ID, testLink("A1")))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, stored.LinkedServices, 1)
		assert.Equal(t, "A1", stored.LinkedServices[0].AccessToken)
	})

	t.Run("second link for the same service is refused", func(t *testing.T) {
		err := repo.AddLinkedService(ctx, user.ID, testLink("A-other"))
		assert.ErrorIs(t, err, domain.ErrAlreadyLinked)

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, stored.LinkedServices, 1)
		assert.Equal(t, "A1", stored.LinkedServices[0].AccessToken)
	})

	t.Run("add for unknown user", func(t *testing.T) {
		err := repo.AddLinkedService(ctx, "no-such-id", testLink("A1"))
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("update linked service", func(t *testing.T) {
		refreshed := testLink("A2")
		require.NoError(t, repo.UpdateLinkedService(ctx, user.ID, refreshed))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, stored.LinkedServices, 1)
		assert.Equal(t, "A2", stored.LinkedServices[0].AccessToken)
		assert.Equal(t, "R1", stored.LinkedServices[0].RefreshToken)
	})

	t.Run("upsert auth method", func(t *testing.T) {
		method := domain.AuthMethod{
			AuthProvider:   domain.ProviderGoogle,
			ProviderID:     "google-sub-1",
			AccessToken:    "g1",
			ExpirationDate: time.Now().Add(time.Hour),
		}
		require.NoError(t, repo.UpsertAuthMethod(ctx, user.ID, method))

		method.AccessToken = "g2"
		require.NoError(t, repo.UpsertAuthMethod(ctx, user.ID, method))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, stored.AuthMethods, 1)
		assert.Equal(t, "g2", stored.AuthMethods[0].AccessToken)
	})

	t.Run("remove linked service", func(t *testing.T) {
		require.NoError(t, repo.RemoveLinkedService(ctx, user.ID, domain.ServiceSpotify))

		stored, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.LinkedServices)

		err = repo.RemoveLinkedService(ctx, user.ID, domain.ServiceSpotify)
		assert.ErrorIs(t, err, domain.ErrServiceNotLinked)
	})

	t.Run("update after remove", func(t *testing.T) {
		err := repo.UpdateLinkedService(ctx, user.ID, testLink("A3"))
		assert.ErrorIs(t, err, domain.ErrServiceNotLinked)
	})
}

func TestSessionRepositoryMongo_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewSessionRepositoryMongo(ctx, db)
	require.NoError(t, err)

	session := &domain.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Store(ctx, session))

	stored, err := repo.GetByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.False(t, stored.IsRevoked)

	require.NoError(t, repo.Touch(ctx, "sess-1"))

	require.NoError(t, repo.Revoke(ctx, "sess-1"))
	stored, err = repo.GetByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked)

	_, err = repo.GetByID(ctx, "no-such-session")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
