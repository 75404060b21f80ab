package users

import (
	"context"
	"testing"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/kv"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(kv.NewFromClient(client), nil, bcrypt.MinCost)
}

func TestCreateUserIndexesEveryIdentity(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, CreateUserInput{
		Email: "a@example.com", Username: "alice", Phone: "+1555", Province: "Idlib", City: "Idlib City",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUnregistered, user.Status)

	byEmail, err := store.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	byUsername, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, byUsername)
	assert.Equal(t, user.ID, byUsername.ID)

	byPhone, err := store.GetByPhone(ctx, "+1555")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, user.ID, byPhone.ID)
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, CreateUserInput{Email: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, apierrors.Conflict, apierrors.KindOf(err))
}

func TestUpdateStatusAdvancesMonotonically(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, CreateUserInput{Username: "bob"})
	require.NoError(t, err)

	updated, err := store.UpdateStatus(ctx, user.ID, StatusRegistered)
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, updated.Status)

	members, err := store.kv.SMembers(ctx, nonRegisteredSetKey)
	require.NoError(t, err)
	assert.NotContains(t, members, user.ID)
}

func TestUpdateStatusRejectsDowngrade(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, CreateUserInput{Username: "carol"})
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, user.ID, StatusVerified)
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, user.ID, StatusRegistered)
	require.Error(t, err)
	assert.Equal(t, apierrors.Conflict, apierrors.KindOf(err))

	reloaded, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, reloaded.Status)
}

func TestAuthenticateChecksPasswordHash(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, CreateUserInput{Email: "e@example.com", Password: "correct horse"})
	require.NoError(t, err)

	authed, err := store.Authenticate(ctx, "e@example.com", "correct horse")
	require.NoError(t, err)
	require.NotNil(t, authed)

	_, err = store.Authenticate(ctx, "e@example.com", "wrong password")
	require.Error(t, err)
	assert.Equal(t, apierrors.Unauthorized, apierrors.KindOf(err))

	none, err := store.Authenticate(ctx, "nobody@example.com", "whatever")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSoftDeleteRetainsPhoneAndDevicePointers(t *testing.T) {
	store := newTestUserStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, CreateUserInput{
		Email: "d@example.com", Phone: "+1999", DeviceID: "dev-1",
	})
	require.NoError(t, err)

	require.NoError(t, store.SoftDelete(ctx, user.ID))

	byEmail, err := store.GetByEmail(ctx, "d@example.com")
	require.NoError(t, err)
	assert.Nil(t, byEmail)

	byPhone, err := store.GetByPhone(ctx, "+1999")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.True(t, byPhone.Deleted)

	byDevice, err := store.GetByDevice(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, byDevice)
}
