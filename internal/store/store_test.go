package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestAddSubscriber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub, err := db.AddSubscriber(ctx, "  Ada@Example.com ", "Ada")
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "ada@example.com", sub.Email)
	assert.True(t, sub.Active)

	_, err = db.AddSubscriber(ctx, "ada@example.com", "")
	assert.ErrorIs(t, err, ErrAlreadySubscribed)

	_, err = db.AddSubscriber(ctx, "not-an-email", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestUnsubscribeAndReactivate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub, err := db.AddSubscriber(ctx, "bob@example.com", "Bob")
	require.NoError(t, err)

	require.NoError(t, db.Unsubscribe(ctx, "BOB@example.com"))
	active, err := db.ActiveSubscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := db.ListSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)

	again, err := db.AddSubscriber(ctx, "bob@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, "Bob", again.Name)
	assert.True(t, again.Active)

	assert.ErrorIs(t, db.Unsubscribe(ctx, "nobody@example.com"), ErrNotFound)
}

func TestSetSubscriberActive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, err := db.AddSubscriber(ctx, "a@example.com", "A")
	require.NoError(t, err)
	_, err = db.AddSubscriber(ctx, "b@example.com", "B")
	require.NoError(t, err)

	require.NoError(t, db.SetSubscriberActive(ctx, a.ID, false))
	got, err := db.GetSubscriber(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := db.ActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b@example.com", active[0].Email)

	assert.ErrorIs(t, db.SetSubscriberActive(ctx, "missing", true), ErrNotFound)
	_, err = db.GetSubscriber(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetupAdmin(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.SetupAdmin(ctx, "root@example.com", "short", "Root")
	assert.ErrorIs(t, err, ErrWeakPassword)

	admin, err := db.SetupAdmin(ctx, "root@example.com", "correct horse", "Root")
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", admin.Email)

	_, err = db.SetupAdmin(ctx, "other@example.com", "correct horse", "Other")
	assert.ErrorIs(t, err, ErrSetupComplete)

	_, err = db.CreateAdmin(ctx, "root@example.com", "another pass", "Dup")
	assert.ErrorIs(t, err, ErrAdminExists)

	_, err = db.CreateAdmin(ctx, "second@example.com", "another pass", "Second")
	require.NoError(t, err)

	n, err = db.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAuthenticate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created, err := db.CreateAdmin(ctx, "ops@example.com", "hunter2hunter2", "Ops")
	require.NoError(t, err)

	admin, err := db.Authenticate(ctx, "OPS@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, admin.ID)

	_, err = db.Authenticate(ctx, "ops@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = db.Authenticate(ctx, "ghost@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := db.GetAdmin(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ops", got.Name)
}
