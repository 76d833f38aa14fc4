package oauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const stateAudience = "youtube-connect"

// State is what the callback needs to know about who started the flow.
type State struct {
	UserID    uuid.UUID
	ChannelID string
	Reconnect bool
}

type stateClaims struct {
	ChannelID string `json:"cid,omitempty"`
	Reconnect bool   `json:"rc,omitempty"`
	jwt.RegisteredClaims
}

// StateSigner issues and verifies the OAuth state parameter as a short-lived
// HS256 token, so the callback never trusts a raw user id from the query.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewStateSigner creates a new StateSigner.
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl}
}

// Sign encodes st.
func (s *StateSigner) Sign(st State) (string, error) {
	now := time.Now()
	claims := stateClaims{
		ChannelID: st.ChannelID,
		Reconnect: st.Reconnect,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   st.UserID.String(),
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// Verify decodes a state produced by Sign. Every failure wraps ErrInvalidState.
func (s *StateSigner) Verify(token string) (*State, error) {
	claims := &stateClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if !claims.VerifyAudience(stateAudience, true) {
		return nil, fmt.Errorf("%w: wrong audience", ErrInvalidState)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrInvalidState, err)
	}

	return &State{UserID: userID, ChannelID: claims.ChannelID, Reconnect: claims.Reconnect}, nil
}
