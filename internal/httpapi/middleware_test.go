package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDMiddleware_GeneratesWhenAbsent(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := RequestID(r.Context())
		assert.NotEmpty(t, id)
		w.Header().Set("X-Test-Request-ID", id)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	requestIDMiddleware(next).ServeHTTP(w, req)

	resp := w.Result()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, resp.Header.Get("X-Request-ID"), resp.Header.Get("X-Test-Request-ID"))
}

func TestRequestIDMiddleware_PreservesExisting(t *testing.T) {
	const existingID = "existing-id"
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, existingID, RequestID(r.Context()))
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", existingID)
	w := httptest.NewRecorder()
	requestIDMiddleware(next).ServeHTTP(w, req)

	assert.Equal(t, existingID, w.Result().Header.Get("X-Request-ID"))
}

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("oops")
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		recoveryMiddleware(next).ServeHTTP(w, req)
	})
	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
}

func TestSecurityHeadersMiddleware_SetsHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	securityHeadersMiddleware(next).ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
