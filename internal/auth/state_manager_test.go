package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/modboard/internal/testutil"
)

func TestGenerateState(t *testing.T) {
	manager := &StateManager{}

	state, err := manager.GenerateState()

	require.NoError(t, err)
	decoded, err := base64.URLEncoding.DecodeString(state)
	require.NoError(t, err, "state should be URL-safe base64")
	assert.Len(t, decoded, 32)
}

func TestGenerateState_Uniqueness(t *testing.T) {
	manager := &StateManager{}

	// Generate 100 states and verify all are unique
	states := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := manager.GenerateState()
		require.NoError(t, err)

		assert.False(t, states[state], "State should be unique")
		states[state] = true
	}

	assert.Equal(t, 100, len(states))
}

func TestStoreState(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	manager := NewStateManager(db, testutil.TestSessionKey, 10*time.Minute, false)

	state, err := manager.GenerateState()
	require.NoError(t, err)
	require.NoError(t, manager.StoreState(ctx, state))

	// Verify expiry is set (should be ~10 minutes in future)
	var expiresAt time.Time
	err = db.QueryRowContext(ctx, "SELECT expires_at FROM oauth_states WHERE state = $1", state).Scan(&expiresAt)
	require.NoError(t, err)
	testutil.AssertTimeAlmostEqual(t, time.Now().UTC().Add(10*time.Minute), expiresAt, 5*time.Second)
}

func TestValidateState_SingleUse(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	manager := NewStateManager(db, testutil.TestSessionKey, 10*time.Minute, false)

	state, err := manager.GenerateState()
	require.NoError(t, err)
	require.NoError(t, manager.StoreState(ctx, state))

	require.NoError(t, manager.ValidateState(ctx, state))

	// Second use should fail
	err = manager.ValidateState(ctx, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state validation failed")
}

func TestValidateState_ExpiredState(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	// Negative expiry stores a state that is already expired
	manager := NewStateManager(db, testutil.TestSessionKey, -time.Minute, false)

	state, err := manager.GenerateState()
	require.NoError(t, err)
	require.NoError(t, manager.StoreState(ctx, state))

	err = manager.ValidateState(ctx, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateState_ConcurrentValidation(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	manager := NewStateManager(db, testutil.TestSessionKey, 10*time.Minute, false)
	state, err := manager.GenerateState()
	require.NoError(t, err)
	require.NoError(t, manager.StoreState(ctx, state))

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if manager.ValidateState(ctx, state) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	manager := NewStateManager(db, testutil.TestSessionKey, 10*time.Minute, false)

	issued := httptest.NewRecorder()
	state, err := manager.Issue(ctx, issued)
	require.NoError(t, err)

	t.Run("mismatched state is rejected", func(t *testing.T) {
		err := manager.Verify(ctx, httptest.NewRecorder(), replay(issued), "some-other-state")
		assert.ErrorIs(t, err, ErrStateMismatch)
	})

	t.Run("missing cookie is rejected", func(t *testing.T) {
		err := manager.Verify(ctx, httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), state)
		assert.ErrorIs(t, err, ErrStateMismatch)
	})

	t.Run("matching state is consumed once", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, manager.Verify(ctx, rec, replay(issued), state))

		cleared := rec.Result().Cookies()
		require.Len(t, cleared, 1)
		assert.Equal(t, StateCookieName, cleared[0].Name)
		assert.Less(t, cleared[0].MaxAge, 0)

		assert.Error(t, manager.Verify(ctx, httptest.NewRecorder(), replay(issued), state))
	})
}
