package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/models"
)

// Authenticator turns an authorization code into a session profile
type Authenticator struct {
	discordClient *DiscordClient
	logger        *zap.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(discordClient *DiscordClient, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		discordClient: discordClient,
		logger:        logger,
	}
}

// Authenticate exchanges code for a token and fetches the user and guild list
func (a *Authenticator) Authenticate(ctx context.Context, code string) (*models.Profile, error) {
	// 1. Exchange code for token
	token, err := a.discordClient.ExchangeCode(ctx, code)
	if err != nil {
		a.logger.Error("failed to exchange code", zap.Error(err))
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	// 2. Fetch user info from Discord
	user, err := a.discordClient.GetUserInfo(ctx, token.AccessToken)
	if err != nil {
		a.logger.Error("failed to fetch user info", zap.Error(err))
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	// 3. Fetch guild memberships
	guilds, err := a.discordClient.GetUserGuilds(ctx, token.AccessToken)
	if err != nil {
		a.logger.Error("failed to fetch user guilds",
			zap.String("discord_id", user.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	profile := &models.Profile{
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		Avatar:        user.Avatar,
		Guilds:        make([]models.ProfileGuild, 0, len(guilds)),
	}
	for _, g := range guilds {
		features := g.Features
		if features == nil {
			features = []string{}
		}
		profile.Guilds = append(profile.Guilds, models.ProfileGuild{
			ID:          g.ID,
			Name:        g.Name,
			Icon:        g.Icon,
			Owner:       g.Owner,
			Permissions: g.Permissions,
			Features:    features,
		})
	}

	a.logger.Info("authentication completed successfully",
		zap.String("discord_id", profile.ID),
		zap.String("username", profile.Username),
		zap.Int("guild_count", len(profile.Guilds)),
	)

	return profile, nil
}
