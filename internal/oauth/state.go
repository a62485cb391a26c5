package oauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/channels"
)

// StateTTL bounds how long a connect attempt stays redeemable.
const StateTTL = 10 * time.Minute

// stateClaims is what the signed state parameter carries through the provider
// redirect. The nonce makes every attempt unique; the stored copy on the
// channel row is the authoritative pending state.
type stateClaims struct {
	ChannelID string
	Kind      channels.Kind
	UserID    string
}

func newState(secret, channelID string, kind channels.Kind, userID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(StateTTL)
	claims := jwt.MapClaims{
		"channel_id": channelID,
		"kind":       kind.String(),
		"user_id":    userID,
		"nonce":      uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func parseState(secret, state string) (stateClaims, error) {
	token, err := jwt.Parse(state, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return stateClaims{}, fmt.Errorf("invalid state token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return stateClaims{}, fmt.Errorf("invalid state claims")
	}
	kind, err := channels.ParseKind(claimString(claims, "kind"))
	if err != nil {
		return stateClaims{}, err
	}
	parsed := stateClaims{
		ChannelID: claimString(claims, "channel_id"),
		Kind:      kind,
		UserID:    claimString(claims, "user_id"),
	}
	if parsed.ChannelID == "" || parsed.UserID == "" {
		return stateClaims{}, fmt.Errorf("state token missing identifiers")
	}
	return parsed, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
