package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verifier/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

const actorID = "moderator-42"

func Test_GeneratePrincipalToken(t *testing.T) {
	token, err := jwtService.GeneratePrincipalToken(actorID, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actorID, claims.ActorID)
	assert.Equal(t, actorID, claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GeneratePrincipalToken(actorID, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GeneratePrincipalToken(actorID, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
}

func Test_MiddlewareValidator(t *testing.T) {
	token, err := jwtService.GeneratePrincipalToken(actorID, time.Hour)
	require.NoError(t, err)

	claims, err := NewMiddlewareValidator(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actorID, claims.ActorID)
	assert.NotEmpty(t, claims.JTI)
}
