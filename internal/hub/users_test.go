package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := OpenUserStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUserAddAndVerify(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.AddUser("alice", "hunter2"))
	assert.NoError(t, store.Verify("alice", "hunter2"))
	assert.ErrorIs(t, store.Verify("alice", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, store.Verify("bob", "hunter2"), ErrInvalidCredentials)
}

func TestDuplicateUsernameRejected(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.AddUser("alice", "hunter2"))
	assert.ErrorIs(t, store.AddUser("alice", "other"), ErrDuplicateUser)

	// the original credentials still work
	assert.NoError(t, store.Verify("alice", "hunter2"))
}
