package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresToken(t *testing.T) {
	t.Setenv("ATRIUM_API_KEY", "")
	_, err := newClient("http://localhost:8080", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ATRIUM_API_KEY")
}

func TestNewClientFallsBackToEnv(t *testing.T) {
	t.Setenv("ATRIUM_API_KEY", "atr_env_key")
	c, err := newClient("http://localhost:8080", "")
	require.NoError(t, err)
	assert.Equal(t, "atr_env_key", c.token)
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, "atr_test_key")
	require.NoError(t, err)

	var out map[string]string
	require.NoError(t, c.do(http.MethodGet, "/api/internal/v1/me", nil, &out))
	assert.Equal(t, "Bearer atr_test_key", gotAuth)
	assert.Equal(t, "ok", out["message"])
}

func TestClientDecodesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "missing capability: manage:webhooks"})
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, "atr_test_key")
	require.NoError(t, err)

	err = c.do(http.MethodDelete, "/api/internal/v1/webhooks/1", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing capability: manage:webhooks")
	assert.Contains(t, err.Error(), "403")
}

func TestClientHandlesNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, "atr_test_key")
	require.NoError(t, err)

	err = c.do(http.MethodGet, "/api/internal/v1/me", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestClientListUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]interface{}{{"id": 1}, {"id": 2}},
			"count": 2,
		})
	}))
	defer srv.Close()

	c, err := newClient(srv.URL, "atr_test_key")
	require.NoError(t, err)

	var items []struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, c.list("/api/v1/api-keys", &items))
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(2), items[1].ID)
}
