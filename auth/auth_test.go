package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			_, _ = w.Write([]byte(`{"access_token":"token1","token_type":"bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"token2","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenIsCached(t *testing.T) {
	var hits atomic.Int32
	server := tokenServer(t, &hits)
	c := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL})

	token, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "token1" {
		t.Fatalf("unexpected token %s", token)
	}
	token, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token1", token)
	assert.Equal(t, int32(1), hits.Load())
}

func TestForceRefresh(t *testing.T) {
	var hits atomic.Int32
	server := tokenServer(t, &hits)
	c := NewClientCred(Conf{ClientID: "id", TokenURL: server.URL})

	_, err := c.Token(context.Background())
	require.NoError(t, err)
	token, err := c.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token2", token)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCredentialsProvider(t *testing.T) {
	var hits atomic.Int32
	server := tokenServer(t, &hits)
	provide := NewClientCred(Conf{ClientID: "id", TokenURL: server.URL}).Credentials("svc", nil)
	user, pass := provide()
	assert.Equal(t, "svc", user)
	assert.Equal(t, "token1", pass)
}

func TestCredentialsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer server.Close()
	provide := NewClientCred(Conf{ClientID: "id", TokenURL: server.URL}).Credentials("svc", nil)
	user, pass := provide()
	assert.Equal(t, "svc", user)
	assert.Empty(t, pass)
}

func TestConfValidate(t *testing.T) {
	require.Error(t, Conf{}.Validate())
	require.NoError(t, Conf{ClientID: "id", TokenURL: "http://idp/token"}.Validate())
}
