package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Amoura/internal/chat"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func recordChatError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeChatError(c, err)
	return w
}

func TestWriteChatErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", chat.ErrValidation("empty message"), http.StatusBadRequest},
		{"blocked", chat.ErrBlocked(), http.StatusForbidden},
		{"insufficient", chat.ErrInsufficientBalance(100, 30), http.StatusPaymentRequired},
		{"not found", chat.ErrNotFound("conversation"), http.StatusNotFound},
		{"untyped", errors.New("mongo exploded"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := recordChatError(tc.err)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestWriteChatErrorCarriesShortfall(t *testing.T) {
	w := recordChatError(chat.ErrInsufficientBalance(500, 120))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.JSONEq(t, `{"error":{
		"code":"INSUFFICIENT_BALANCE",
		"message":"not enough diamonds",
		"required":500,
		"shortfall":380
	}}`, w.Body.String())
}

func TestWriteChatErrorHidesInternalDetail(t *testing.T) {
	w := recordChatError(errors.New("dial tcp: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// internals never leak to the client
	assert.NotContains(t, w.Body.String(), "dial tcp")
	assert.JSONEq(t, `{"error":{"code":"TRANSPORT","message":"internal error"}}`, w.Body.String())
}
