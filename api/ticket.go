package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linesmerrill/police-blotter-api/models"
)

const (
	// TicketAudience is the audience of websocket tickets
	TicketAudience = "notifications"
	// DefaultTicketTTL is how long a ticket can be redeemed after issue
	DefaultTicketTTL = 60 * time.Second
)

// Tickets issues and verifies the short-lived HS256 tokens that authenticate a
// websocket handshake, since browsers cannot set headers on the upgrade request
type Tickets struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

type ticketClaims struct {
	Role models.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// NewTickets returns Tickets signing with secret
func NewTickets(secret string) *Tickets {
	return &Tickets{Secret: []byte(secret), TTL: DefaultTicketTTL}
}

// Issue signs a ticket for actor
func (t *Tickets) Issue(actor models.Actor) (string, time.Time, error) {
	if actor.ID == "" {
		return "", time.Time{}, fmt.Errorf("%w: ticket subject", models.ErrMissingRequiredField)
	}
	now := t.now()
	expires := now.Add(t.ttl())
	claims := ticketClaims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Audience:  jwt.ClaimStrings{TicketAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a ticket and returns the actor it was issued to
func (t *Tickets) Parse(ticket string) (models.Actor, error) {
	if ticket == "" {
		return models.Actor{}, fmt.Errorf("%w: ticket", models.ErrMissingRequiredField)
	}
	claims := &ticketClaims{}
	_, err := jwt.ParseWithClaims(ticket, claims, func(token *jwt.Token) (interface{}, error) {
		return t.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(TicketAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, fmt.Errorf("%w: ticket expired", models.ErrPermissionDenied)
		}
		return models.Actor{}, fmt.Errorf("%w: invalid ticket: %v", models.ErrPermissionDenied, err)
	}
	if claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("%w: ticket has no subject", models.ErrPermissionDenied)
	}
	role := claims.Role
	if role == "" {
		role = models.RoleCitizen
	}
	return models.Actor{ID: claims.Subject, Role: role}, nil
}

func (t *Tickets) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Tickets) ttl() time.Duration {
	if t.TTL > 0 {
		return t.TTL
	}
	return DefaultTicketTTL
}
