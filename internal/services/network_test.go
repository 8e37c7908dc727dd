package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/api/quiz/Cardiology/submit", r.URL.Path)
		assert.Equal(t, "x=1", r.URL.RawQuery)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer server.Close()

	client := NewUpstreamClient(server.URL+"/", 5*time.Second)
	resp, err := client.Fetch(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    "/api/quiz/Cardiology/submit?x=1",
		Header: http.Header{
			"Content-Type":        []string{"application/json"},
			"Proxy-Authorization": []string{"secret"},
		},
		Body: []byte(`{"quizName":"Cardiology"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"quizName":"Cardiology"}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Connection"))
}

func TestUpstreamClient_Offline(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewUpstreamClient(url, time.Second)
	_, err := client.Fetch(context.Background(), get("/api/quizzes"))
	assert.ErrorIs(t, err, ErrOffline)

	assert.ErrorIs(t, client.Ping(context.Background()), ErrOffline)
}

func TestUpstreamClient_PingHTTPErrorIsOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewUpstreamClient(server.URL, time.Second)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestIsNavigation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header map[string]string
		want   bool
	}{
		{name: "fetch mode navigate", method: http.MethodGet, header: map[string]string{"Sec-Fetch-Mode": "navigate"}, want: true},
		{name: "fetch mode cors", method: http.MethodGet, header: map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, want: false},
		{name: "accept html", method: http.MethodGet, header: map[string]string{"Accept": "text/html,application/xhtml+xml"}, want: true},
		{name: "json", method: http.MethodGet, header: map[string]string{"Accept": "application/json"}, want: false},
		{name: "post", method: http.MethodPost, header: map[string]string{"Accept": "text/html"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, IsNavigation(req))
		})
	}
}

func TestRequest_KeyAndPath(t *testing.T) {
	req := get("/api/quiz/Cardiology?page=2")
	assert.Equal(t, "GET /api/quiz/Cardiology?page=2", req.Key())
	assert.Equal(t, "/api/quiz/Cardiology", req.Path())
}
