package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@b.c"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "a@b.c", dest.Email)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"email":`))
	err := ParseJSON(r, &dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestParsePathInt64(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest("GET", "/webhooks/42", nil), map[string]string{"id": "42"})
	id, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	r = mux.SetURLVars(httptest.NewRequest("GET", "/webhooks/x", nil), map[string]string{"id": "x"})
	_, err = ParsePathInt64(r, "id")
	assert.Error(t, err)

	_, err = ParsePathInt64(httptest.NewRequest("GET", "/webhooks", nil), "id")
	assert.Error(t, err)
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/deliveries?limit=25", nil)
	limit, err := ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	r = httptest.NewRequest("GET", "/deliveries", nil)
	limit, err = ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)

	r = httptest.NewRequest("GET", "/deliveries?limit=soon", nil)
	_, err = ParseQueryInt(r, "limit", 100)
	assert.Error(t, err)
}

func TestParseQueryBool(t *testing.T) {
	r := httptest.NewRequest("GET", "/cancel?immediately=true", nil)
	v, err := ParseQueryBool(r, "immediately", false)
	require.NoError(t, err)
	assert.True(t, v)

	r = httptest.NewRequest("GET", "/cancel", nil)
	v, err = ParseQueryBool(r, "immediately", false)
	require.NoError(t, err)
	assert.False(t, v)
}
