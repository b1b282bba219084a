package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// AssertProfileEqual compares the identity fields and guild IDs of two profiles.
func AssertProfileEqual(t *testing.T, expected, actual models.Profile) {
	t.Helper()

	assert.Equal(t, expected.ID, actual.ID, "ID should match")
	assert.Equal(t, expected.Username, actual.Username, "Username should match")
	assert.Equal(t, expected.Discriminator, actual.Discriminator, "Discriminator should match")
	assert.Equal(t, expected.Avatar, actual.Avatar, "Avatar should match")

	require.Len(t, actual.Guilds, len(expected.Guilds), "guild count should match")
	for i := range expected.Guilds {
		assert.Equal(t, expected.Guilds[i].ID, actual.Guilds[i].ID, "guild ID should match")
		assert.Equal(t, expected.Guilds[i].Name, actual.Guilds[i].Name, "guild name should match")
	}
}

// AssertStateEqual performs a deep comparison of two OAuthState objects.
func AssertStateEqual(t *testing.T, expected, actual *models.OAuthState) {
	t.Helper()

	assert.Equal(t, expected.State, actual.State, "State should match")

	// Check expiry with tolerance
	AssertTimeAlmostEqual(t, expected.ExpiresAt, actual.ExpiresAt, 2*time.Second)
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
// Useful for timestamp comparisons where exact equality isn't expected.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.True(t,
		diff <= delta,
		"Times should be within %v of each other. Expected: %v, Actual: %v, Diff: %v",
		delta, expected, actual, diff,
	)
}

// AssertJSONError checks the status code and {"error": message} body of a response.
func AssertJSONError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()

	assert.Equal(t, status, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": message}, body)
}

// DecodeJSON decodes the recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}
