package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"ecowatch.org/internal/access"
	"ecowatch.org/internal/domain"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", domain.RoleGovernment, time.Minute)
	require.NoError(t, err)

	claims, err := ParseAndValidate(token)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.Equal(t, domain.RoleGovernment, claims.Role)
	require.Equal(t, issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	withSecret(t, "test-secret")

	_, err := GenerateToken(" ", domain.RoleAdmin, time.Minute)
	require.Error(t, err)
	_, err = GenerateToken("u1", domain.Role("root"), time.Minute)
	require.Error(t, err)
	_, err = GenerateToken("u1", domain.RoleAdmin, 0)
	require.Error(t, err)
}

func TestMissingSecret(t *testing.T) {
	withSecret(t, "")
	_, err := GenerateToken("u1", domain.RoleAdmin, time.Minute)
	require.ErrorIs(t, err, errMissingSecret)
}

func TestParseRejectsTamperedAndExpired(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("u1", domain.RolePublic, time.Minute)
	require.NoError(t, err)
	_, err = ParseAndValidate(token + "x")
	require.ErrorIs(t, err, ErrInvalidToken)

	past := time.Now().Add(-time.Hour)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ParseAndValidate(signed)
	require.ErrorIs(t, err, ErrInvalidToken)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err = forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = ParseAndValidate(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, ok := ActorFromContext(ctx)
	require.False(t, ok)

	ctx = ContextWithActor(ctx, access.Actor{UserID: " user-7 ", Role: domain.RoleFactory})
	actor, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "user-7", actor.UserID)
	require.Equal(t, domain.RoleFactory, actor.Role)

	id, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "user-7", id)

	bad := ContextWithActor(context.Background(), access.Actor{UserID: "x", Role: "root"})
	_, ok = ActorFromContext(bad)
	require.False(t, ok)

	ctx = ContextWithToken(ctx, "tok")
	tok, ok := TokenFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "tok", tok)
}
