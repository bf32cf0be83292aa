package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func TestJWT_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "roomly", time.Minute)

	token, err := m.GenerateAccessToken("u1", "an@example.com")
	require.NoError(t, err)

	id, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "an@example.com", id.Email)
}

func TestJWT_Rejects(t *testing.T) {
	m := NewJWTManager("secret", "roomly", time.Minute)

	expired, err := NewJWTManager("secret", "roomly", -time.Minute).GenerateAccessToken("u1", "")
	require.NoError(t, err)
	_, err = m.Verify(context.Background(), expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, err := NewJWTManager("other", "roomly", time.Minute).GenerateAccessToken("u1", "")
	require.NoError(t, err)
	_, err = m.Verify(context.Background(), foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTManager("secret", "someone-else", time.Minute).GenerateAccessToken("u1", "")
	require.NoError(t, err)
	_, err = m.Verify(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_FallsBackToSubject(t *testing.T) {
	m := NewJWTManager("secret", "roomly", time.Minute)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u2",
		Issuer:    "roomly",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
}

func TestJWT_RejectsUnsignedToken(t *testing.T) {
	m := NewJWTManager("secret", "roomly", time.Minute)
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type fakeFirebase struct {
	token *fbauth.Token
	err   error
}

func (f fakeFirebase) VerifyIDToken(context.Context, string) (*fbauth.Token, error) {
	return f.token, f.err
}

func TestFirebaseVerifier(t *testing.T) {
	v := &FirebaseVerifier{client: fakeFirebase{token: &fbauth.Token{
		UID:    "fb-1",
		Claims: map[string]interface{}{"email": "binh@example.com", "name": "Binh Tran"},
	}}}
	id, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "fb-1", Email: "binh@example.com", Name: "Binh Tran"}, id)

	v = &FirebaseVerifier{client: fakeFirebase{err: errors.New("bad signature")}}
	_, err = v.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGoogleVerifier_TriesEveryClientID(t *testing.T) {
	v := NewGoogleVerifier([]string{"web", "android"})
	var tried []string
	v.validate = func(_ context.Context, _ string, aud string) (*idtoken.Payload, error) {
		tried = append(tried, aud)
		if aud != "android" {
			return nil, errors.New("audience mismatch")
		}
		return &idtoken.Payload{Claims: map[string]interface{}{
			"sub":     "g-1",
			"email":   "chi@example.com",
			"picture": "https://example.com/chi.png",
		}}, nil
	}

	id, err := v.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "android"}, tried)
	assert.Equal(t, "g-1", id.UserID)
	assert.Equal(t, "https://example.com/chi.png", id.Picture)
	assert.True(t, v.IsConfigured())
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	v := NewGoogleVerifier([]string{"web"})
	v.validate = func(context.Context, string, string) (*idtoken.Payload, error) {
		return nil, errors.New("expired")
	}
	_, err := v.Verify(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.False(t, NewGoogleVerifier(nil).IsConfigured())
}
