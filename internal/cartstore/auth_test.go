package cartstore

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/storefront-cart/internal/credential"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue("m-1", "Ann")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "m-1", claims.Subject)
	assert.Equal(t, "Ann", claims.Name)
	assert.False(t, credential.Expired(token, time.Now()))
}

func TestTokenIssuer_RejectsForeignAndExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	other := NewTokenIssuer("other", time.Hour)
	token, err := other.Issue("m-1", "")
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	assert.Error(t, err)

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := issuer.Issue("m-1", "")
	require.NoError(t, err)
	_, err = issuer.Verify(expired)
	assert.Error(t, err)
	assert.True(t, credential.Expired(expired, time.Now()))
}

func TestAuthMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	h := issuer.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(claimsFromContext(r.Context()).Subject))
	}))
	token, err := issuer.Issue("m-1", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "m-1", rec.Body.String())
			}
		})
	}
}
