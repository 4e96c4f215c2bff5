package taxonomy

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/httpclient"
	"github.com/tphakala/birdhomie/internal/resilience"
)

const testBase = "http://inat.test/v1"

const parusMajorEN = `{"total_results":1,"results":[{
	"id":13094,"name":"Parus major","rank":"species",
	"preferred_common_name":"Great Tit",
	"wikipedia_url":"http://en.wikipedia.org/wiki/Great_tit",
	"default_photo":{"medium_url":"https://static.inaturalist.org/photos/1/medium.jpg","attribution":"(c) someone, CC BY"}
}]}`

const parusMajorDE = `{"total_results":1,"results":[{"id":13094,"name":"Parus major","preferred_common_name":"Kohlmeise"}]}`

func fastConfig() Config {
	return Config{
		BaseURL:   testBase,
		Locale:    "de",
		RateLimit: time.Millisecond,
		Timeout:   time.Second,
		Retry:     resilience.RetryConfig{Attempts: 3, Delay: time.Millisecond, Backoff: 1},
		Breaker:   resilience.BreakerConfig{MaxFailures: 5, Timeout: time.Minute, HalfOpenMaxRequests: 1},
	}
}

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	return NewClient(httpclient.New(&httpclient.Config{Transport: mock}), fastConfig()), mock
}

func TestSearchSpecies(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponderWithQuery(http.MethodGet, testBase+"/taxa",
		"q=Parus+major&rank=species&per_page=1",
		httpmock.NewStringResponder(http.StatusOK, parusMajorEN))
	mock.RegisterResponderWithQuery(http.MethodGet, testBase+"/taxa",
		"q=Parus+major&rank=species&per_page=1&locale=de",
		httpmock.NewStringResponder(http.StatusOK, parusMajorDE))

	info, err := c.SearchSpecies(t.Context(), "Parus major")
	require.NoError(t, err)
	assert.Equal(t, 13094, info.TaxonID)
	assert.Equal(t, "Parus major", info.ScientificName)
	require.NotNil(t, info.CommonNameEN)
	assert.Equal(t, "Great Tit", *info.CommonNameEN)
	require.NotNil(t, info.CommonNameLocal)
	assert.Equal(t, "Kohlmeise", *info.CommonNameLocal)
	require.NotNil(t, info.PhotoURL)
	assert.Contains(t, *info.PhotoAttribution, "CC BY")
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestSearchSpeciesNoResults(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/taxa",
		httpmock.NewStringResponder(http.StatusOK, `{"total_results":0,"results":[]}`))

	_, err := c.SearchSpecies(t.Context(), "Nonexistus bird")
	require.ErrorIs(t, err, ErrNoMatch)
	assert.Equal(t, 1, mock.GetTotalCallCount(), "no locale call without a match")
}

func TestLocalizedNameIsOptional(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/taxa/13094",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("locale") == "de" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "unsupported"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, parusMajorEN), nil
		})

	info, err := c.FetchTaxon(t.Context(), 13094)
	require.NoError(t, err)
	assert.Equal(t, "Parus major", info.ScientificName)
	assert.Nil(t, info.CommonNameLocal)
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	calls := 0
	mock.RegisterResponder(http.MethodGet, testBase+"/taxa/13094",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Has("locale") {
				return httpmock.NewStringResponse(http.StatusOK, parusMajorDE), nil
			}
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusBadGateway, "upstream"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, parusMajorEN), nil
		})

	info, err := c.FetchTaxon(t.Context(), 13094)
	require.NoError(t, err)
	assert.Equal(t, 13094, info.TaxonID)
	assert.Equal(t, 3, calls)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	c, mock := newTestClient(t)
	mock.RegisterResponder(http.MethodGet, testBase+"/taxa/1",
		httpmock.NewStringResponder(http.StatusNotFound, `{"error":"not found"}`))

	_, err := c.FetchTaxon(t.Context(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEnrichment))
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestClientBreakerOpens(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Retry = resilience.RetryConfig{Attempts: 1}
	cfg.Breaker = resilience.BreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxRequests: 1}
	mock := httpmock.NewMockTransport()
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))
	c := NewClient(httpclient.New(&httpclient.Config{Transport: mock}), cfg)

	for range 2 {
		_, err := c.FetchTaxon(t.Context(), 5)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.Breaker().State())

	_, err := c.FetchTaxon(t.Context(), 5)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}
