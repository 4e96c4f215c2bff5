package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/errors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	client := New(&Config{Transport: mt})
	t.Cleanup(client.Close)
	return client, mt
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	client := New(nil)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)

	custom := New(&Config{DefaultTimeout: 5 * time.Second, UserAgent: "test/1.0"})
	assert.Equal(t, 5*time.Second, custom.defaultTimeout)
	assert.Equal(t, "test/1.0", custom.userAgent)
}

func TestDoSetsUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	})
	client := New(&Config{UserAgent: "birdhomie-test"})
	t.Cleanup(client.Close)

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "birdhomie-test", got)
}

func TestDoDefaultTimeout(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client := New(&Config{DefaultTimeout: 20 * time.Millisecond})
	t.Cleanup(client.Close)

	_, err := client.Get(t.Context(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoContextDeadlineWins(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("late but fine"))
	})
	client := New(&Config{DefaultTimeout: 5 * time.Millisecond})
	t.Cleanup(client.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "late but fine", string(body))
}

func TestDoCancelled(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})
	client := New(nil)
	t.Cleanup(client.Close)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := client.Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestObserver(t *testing.T) {
	t.Parallel()

	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, "http://models.local/health", httpmock.NewStringResponder(503, "warming up"))

	var (
		mu     sync.Mutex
		status int
		host   string
	)
	client.SetObserver(func(method, h string, s int, _ time.Duration, _ error) {
		mu.Lock()
		defer mu.Unlock()
		status, host = s, h
	})

	resp, err := client.Get(t.Context(), "http://models.local/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 503, status)
	assert.Equal(t, "models.local", host)
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodGet, "https://api.example.org/v1/taxa",
		httpmock.NewStringResponder(200, `{"total_results":1,"results":[{"id":13094,"name":"Parus major"}]}`))
	mt.RegisterResponder(http.MethodGet, "https://api.example.org/v1/missing",
		httpmock.NewStringResponder(404, `{"error":"not found"}`))
	mt.RegisterResponder(http.MethodGet, "https://api.example.org/v1/broken",
		httpmock.NewStringResponder(200, `<html>`))

	obj, err := client.GetJSON(t.Context(), "https://api.example.org/v1/taxa")
	require.NoError(t, err)
	results, err := obj.GetObjectArray("results")
	require.NoError(t, err)
	require.Len(t, results, 1)
	id, err := results[0].GetInt64("id")
	require.NoError(t, err)
	assert.Equal(t, int64(13094), id)

	_, err = client.GetJSON(t.Context(), "https://api.example.org/v1/missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 404, se.StatusCode)
	assert.False(t, se.Temporary())
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	_, err = client.GetJSON(t.Context(), "https://api.example.org/v1/broken")
	assert.Error(t, err)
}

func TestPostMultipart(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "0.800", r.FormValue("conf_threshold"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "frame.jpg", hdr.Filename)
		assert.Equal(t, []byte{0xff, 0xd8}, data)
		w.WriteHeader(http.StatusOK)
	})
	client := New(nil)
	t.Cleanup(client.Close)

	resp, err := client.PostMultipart(t.Context(), server.URL,
		FilePart{Field: "file", Filename: "frame.jpg", Data: []byte{0xff, 0xd8}},
		map[string]string{"conf_threshold": "0.800"})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NoError(t, CheckStatus(resp))
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	client, mt := newMockClient(t)
	mt.RegisterResponder(http.MethodPost, "http://models.local/embed/text",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			body, _ := io.ReadAll(req.Body)
			assert.JSONEq(t, `{"texts":["Parus major"]}`, string(body))
			return httpmock.NewStringResponse(500, "model crashed"), nil
		})

	resp, err := client.PostJSON(t.Context(), "http://models.local/embed/text", map[string][]string{"texts": {"Parus major"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	err = CheckStatus(resp)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
	assert.Contains(t, se.Error(), "model crashed")
}
