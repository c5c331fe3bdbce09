package user

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erozihovefi85-debug/openclaw-room/backend/pkg/cerr"
)

func TestRequire(t *testing.T) {
	_, err := Require(t.Context())
	require.Error(t, err)
	assert.Equal(t, cerr.Unauthenticated, cerr.CodeOf(err))

	id, err := Require(WithID(t.Context(), "u-1"))
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)
}

func TestMiddleware(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = IDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "  alice ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "alice", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, got)
}
