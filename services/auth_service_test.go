package services

import (
	"context"
	"testing"
	"time"

	"github.com/cr4all/supportservices/config"
	"github.com/cr4all/supportservices/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(testutil.NewDB(t), &config.AuthConfig{
		Enabled:     true,
		JWTSecret:   "test-secret",
		TokenExpiry: 1,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	operator, err := auth.RegisterOperator(ctx, " alice ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", operator.Username)
	assert.NotEqual(t, "hunter2", operator.Password)

	_, err = auth.RegisterOperator(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrOperatorExists)

	resp, err := auth.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int(time.Hour.Seconds()), resp.ExpiresIn)
	assert.Equal(t, operator.ID, resp.Operator.ID)

	got, err := auth.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()
	_, err := auth.RegisterOperator(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, "bob", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRequiresCredentials(t *testing.T) {
	auth := newTestAuth(t)
	_, err := auth.RegisterOperator(context.Background(), " ", "pw")
	assert.Error(t, err)
	_, err = auth.RegisterOperator(context.Background(), "alice", "")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	auth := newTestAuth(t)
	claims := &Claims{
		OperatorID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = auth.ValidateToken(forged)
	assert.Error(t, err)

	expired := &Claims{
		OperatorID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(stale)
	assert.Error(t, err)
}
