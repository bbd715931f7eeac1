package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/police-blotter-api/models"
)

func TestTickets_IssueAndParse(t *testing.T) {
	tickets := NewTickets("secret")
	actor := models.Actor{ID: "B", Role: models.RoleOfficer}

	ticket, expires, err := tickets.Issue(actor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTicketTTL), expires, 2*time.Second)

	got, err := tickets.Parse(ticket)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestTickets_Expired(t *testing.T) {
	issuedAt := time.Date(2024, time.May, 14, 9, 30, 0, 0, time.UTC)
	tickets := NewTickets("secret")
	tickets.Now = func() time.Time { return issuedAt }

	ticket, _, err := tickets.Issue(models.Actor{ID: "B", Role: models.RoleOfficer})
	require.NoError(t, err)

	tickets.Now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = tickets.Parse(ticket)
	assert.True(t, errors.Is(err, models.ErrPermissionDenied))
}

func TestTickets_WrongSecret(t *testing.T) {
	ticket, _, err := NewTickets("secret").Issue(models.Actor{ID: "B"})
	require.NoError(t, err)

	_, err = NewTickets("other").Parse(ticket)
	assert.True(t, errors.Is(err, models.ErrPermissionDenied))
}

func TestTickets_RejectsOtherAudience(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "B",
		"aud": "billing",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTickets("secret").Parse(signed)
	assert.True(t, errors.Is(err, models.ErrPermissionDenied))
}

func TestTickets_EmptyInputs(t *testing.T) {
	_, _, err := NewTickets("secret").Issue(models.Actor{})
	assert.True(t, errors.Is(err, models.ErrMissingRequiredField))

	_, err = NewTickets("secret").Parse("")
	assert.True(t, errors.Is(err, models.ErrMissingRequiredField))
}

func TestTickets_MissingRoleIsCitizen(t *testing.T) {
	tickets := NewTickets("secret")
	ticket, _, err := tickets.Issue(models.Actor{ID: "citizen-1"})
	require.NoError(t, err)

	got, err := tickets.Parse(ticket)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCitizen, got.Role)
}
