// Package discord talks to the Discord REST API: per-request identity
// re-verification for the session guard and the OAuth code flow for
// login.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Verifier re-validates user access tokens against Discord. Every
// privileged request pays one outbound call here; the limiter keeps a
// burst of traffic from tripping Discord's global rate limits. When a
// bot token is configured it also answers guild-membership questions
// the user token alone cannot.
type Verifier struct {
	limiter *rate.Limiter
	bot     *discordgo.Session
	log     zerolog.Logger
}

func NewVerifier(botToken string, logger zerolog.Logger) *Verifier {
	v := &Verifier{
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		log:     logger.With().Str("component", "discord-verifier").Logger(),
	}
	if botToken != "" {
		// REST-only session; no gateway connection is opened.
		if s, err := discordgo.New("Bot " + botToken); err == nil {
			v.bot = s
		} else {
			v.log.Error().Err(err).Msg("bot session unavailable, membership checks disabled")
		}
	}
	return v
}

// WhoAmI resolves the account a user OAuth token belongs to. An error
// means the token is invalid, revoked, or Discord is unreachable.
func (v *Verifier) WhoAmI(ctx context.Context, accessToken string) (*discordgo.User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("empty access token")
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}
	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		v.log.Debug().Err(err).Msg("token verification failed")
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	return u, nil
}

// GuildIDs lists the guilds the token's account belongs to.
func (v *Verifier) GuildIDs(ctx context.Context, accessToken string) ([]string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}
	guilds, err := s.UserGuilds(100, "", "", false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild listing failed: %w", err)
	}
	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// MemberOf reports whether userID belongs to guildID, checked with the
// bot's own credentials rather than the user's token. Open when the
// check cannot apply: no bot token configured or no guild required.
func (v *Verifier) MemberOf(ctx context.Context, guildID, userID string) (bool, error) {
	if v.bot == nil || guildID == "" {
		return true, nil
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return false, err
	}
	m, err := v.bot.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil &&
			restErr.Response.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("membership lookup failed: %w", err)
	}
	return m != nil, nil
}

// AvatarURL builds the CDN avatar URL for a user, empty when unset.
func AvatarURL(u *discordgo.User) string {
	if u == nil || u.Avatar == "" {
		return ""
	}
	return discordgo.EndpointUserAvatar(u.ID, u.Avatar)
}
