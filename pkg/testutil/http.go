// Package testutil provides helpers for handler and router tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRequest creates a request without a body.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// NewBearerRequest creates a request carrying token as a bearer credential.
func NewBearerRequest(t *testing.T, method, path, token string) *http.Request {
	t.Helper()
	req := NewRequest(t, method, path)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// DoRequest executes a request against a handler and returns the recorder.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON decodes a JSON response body into T.
func DecodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), "failed to decode response")
	return &out
}

// AssertStatus asserts the response status code matches expected.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code")
}

// AssertStatusOK asserts the response status is 200 OK.
func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// AssertError asserts an error response with the given status and code.
// Server errors must not describe the failure.
func AssertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	AssertStatus(t, rr, status)
	body := DecodeJSON[map[string]string](t, rr)
	assert.Equal(t, code, (*body)["error"], "unexpected error code")
	if status >= http.StatusInternalServerError {
		assert.NotContains(t, *body, "error_description")
	}
}

// AssertOutcome asserts a 200 response reporting the given outcome for the
// member at chatID/userID.
func AssertOutcome(t *testing.T, rr *httptest.ResponseRecorder, chatID, userID int64, outcome string) {
	t.Helper()
	AssertStatusOK(t, rr)
	body := DecodeJSON[struct {
		ChatID  int64  `json:"chat_id"`
		UserID  int64  `json:"user_id"`
		Outcome string `json:"outcome"`
	}](t, rr)
	assert.Equal(t, chatID, body.ChatID)
	assert.Equal(t, userID, body.UserID)
	assert.Equal(t, outcome, body.Outcome)
}
