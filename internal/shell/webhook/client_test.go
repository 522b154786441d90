package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_RequestHelp(t *testing.T) {
	var received HelpRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HelpResponse{Status: "queued", Message: "a colleague will respond shortly"})
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{URL: srv.URL, Timeout: 5 * time.Second}, nil)

	ack, err := client.RequestHelp(context.Background(), HelpRequest{
		Question:  "Do we stock the 42mm variant?",
		Reason:    "not in inventory context",
		RequestID: "req-123",
	})
	require.NoError(t, err)

	assert.Equal(t, "queued", ack.Status)
	assert.Equal(t, "a colleague will respond shortly", ack.Message)
	assert.Equal(t, "Do we stock the 42mm variant?", received.Question)
	assert.Equal(t, "req-123", received.RequestID)
}

func TestHTTPClient_RequestHelp_EmptyBodyIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{URL: srv.URL}, nil)

	ack, err := client.RequestHelp(context.Background(), HelpRequest{Question: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", ack.Status)
}

func TestHTTPClient_RequestHelp_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{URL: srv.URL}, nil)

	_, err := client.RequestHelp(context.Background(), HelpRequest{Question: "hi"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestHTTPClient_RequestHelp_Unreachable(t *testing.T) {
	client := NewHTTPClient(Config{URL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond}, nil)

	_, err := client.RequestHelp(context.Background(), HelpRequest{Question: "hi"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestNoopClient_RequestHelp(t *testing.T) {
	client := NewNoopClient(nil)

	ack, err := client.RequestHelp(context.Background(), HelpRequest{Question: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "unavailable", ack.Status)
	assert.NotEmpty(t, ack.Message)
}
