package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/testutil"
)

func TestAuthenticate_Success(t *testing.T) {
	client, mockServer := newMockedClient(t)
	authenticator := NewAuthenticator(client, zap.NewNop())

	profile, err := authenticator.Authenticate(context.Background(), testutil.MockValidCode)

	require.NoError(t, err)
	assert.Equal(t, testutil.MockDiscordUserID, profile.ID)
	assert.Equal(t, testutil.MockDiscordUsername, profile.Username)
	assert.Equal(t, "avatar_hash_123", profile.Avatar)
	require.Len(t, profile.Guilds, 2)
	assert.Equal(t, testutil.TestGuildID, profile.Guilds[0].ID)
	assert.Equal(t, "8", profile.Guilds[0].Permissions)
	assert.NotNil(t, profile.Guilds[0].Features)
	assert.Equal(t, testutil.OtherGuildID, profile.Guilds[1].ID)

	assert.Equal(t, 1, mockServer.TokenCalls())
	assert.Equal(t, 1, mockServer.UserInfoCalls())
	assert.Equal(t, 1, mockServer.GuildCalls())
}

func TestAuthenticate_InvalidCode(t *testing.T) {
	client, mockServer := newMockedClient(t)
	authenticator := NewAuthenticator(client, zap.NewNop())

	profile, err := authenticator.Authenticate(context.Background(), "error_code")

	require.Error(t, err)
	assert.Nil(t, profile)
	assert.Contains(t, err.Error(), "authentication failed")
	// No Discord API calls after a failed exchange
	assert.Equal(t, 0, mockServer.UserInfoCalls())
	assert.Equal(t, 0, mockServer.GuildCalls())
}

func TestAuthenticate_GuildFetchFailure(t *testing.T) {
	client, mockServer := newMockedClient(t)
	authenticator := NewAuthenticator(client, zap.NewNop())

	profile, err := authenticator.Authenticate(context.Background(), testutil.MockGuildsFailCode)

	require.Error(t, err)
	assert.Nil(t, profile)
	assert.Contains(t, err.Error(), "failed to fetch user guilds")
	assert.Equal(t, 1, mockServer.UserInfoCalls())
	assert.Equal(t, 1, mockServer.GuildCalls())
}
