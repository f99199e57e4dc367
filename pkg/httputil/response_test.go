package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteSuccess(rec, map[string]string{"slug": "acme"}))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"slug": "acme"}`, rec.Body.String())
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteCreated(rec, map[string]int{"id": 7}))

	assert.Equal(t, 201, rec.Code)
	assert.JSONEq(t, `{"id": 7}`, rec.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, 204, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorBodyShape(t *testing.T) {
	cases := []struct {
		name  string
		write func(rec *httptest.ResponseRecorder)
		code  int
	}{
		{"bad request", func(r *httptest.ResponseRecorder) { WriteBadRequest(r, "boom") }, 400},
		{"unauthorized", func(r *httptest.ResponseRecorder) { WriteUnauthorized(r, "boom") }, 401},
		{"forbidden", func(r *httptest.ResponseRecorder) { WriteForbidden(r, "boom") }, 403},
		{"not found", func(r *httptest.ResponseRecorder) { WriteNotFoundError(r, "boom") }, 404},
		{"too many requests", func(r *httptest.ResponseRecorder) { WriteTooManyRequests(r, "boom") }, 429},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.write(rec)
			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, `{"error": "boom"}`, rec.Body.String())
		})
	}
}
