package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.PlacesConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		BiasLat: 28.6139,
		BiasLng: 77.2090,
		RadiusM: 50000,
		Region:  "country:in",
	}, zap.NewNop())
}

func TestSearchSendsBiasAndParsesPredictions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/place/autocomplete/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Koramangala", q.Get("input"))
		assert.Equal(t, "28.6139,77.209", q.Get("location"))
		assert.Equal(t, "50000", q.Get("radius"))
		assert.Equal(t, "country:in", q.Get("components"))
		assert.Equal(t, "test-key", q.Get("key"))
		_, _ = w.Write([]byte(`{"status":"OK","predictions":[
			{"place_id":"p1","description":"Koramangala, Bengaluru","structured_formatting":{"main_text":"Koramangala","secondary_text":"Bengaluru, Karnataka"}},
			{"place_id":"p2","description":"Koramangala 5th Block"}]}`))
	})

	got, err := c.Search(context.Background(), "  Koramangala ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "Koramangala", got[0].PrimaryText)
	assert.Equal(t, "Bengaluru, Karnataka", got[0].SecondaryText)
	assert.Equal(t, "Koramangala 5th Block", got[1].PrimaryText)
}

func TestSearchShortQueryMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	for _, q := range []string{"", "a", "ab", "  ab  "} {
		got, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Zero(t, calls.Load())
}

func TestSearchStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"zero results", 200, `{"status":"ZERO_RESULTS","predictions":[]}`, ErrNoResults},
		{"ok but empty", 200, `{"status":"OK","predictions":[]}`, ErrNoResults},
		{"denied", 200, `{"status":"REQUEST_DENIED","error_message":"bad key"}`, ErrNoResults},
		{"http 500", 500, `oops`, ErrFailure},
		{"garbage", 200, `{not json`, ErrFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Search(context.Background(), "MG Road")
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolve(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/place/details/json", r.URL.Path)
		assert.Equal(t, "geometry,formatted_address", r.URL.Query().Get("fields"))
		switch r.URL.Query().Get("place_id") {
		case "p1":
			_, _ = w.Write([]byte(`{"status":"OK","result":{"formatted_address":"Koramangala, Bengaluru, Karnataka, India","geometry":{"location":{"lat":12.9352,"lng":77.6245}}}}`))
		case "gone":
			_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"INVALID_REQUEST"}`))
		}
	})

	loc, err := c.Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 12.9352, loc.Latitude)
	assert.Equal(t, 77.6245, loc.Longitude)
	assert.Equal(t, "Koramangala, Bengaluru, Karnataka, India", loc.Address)

	_, err = c.Resolve(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrNoResults)

	_, err = c.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrFailure)

	_, err = c.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrFailure)
}

func TestReverseGeocodeName(t *testing.T) {
	body := `{"status":"OK","results":[{"formatted_address":"12th Main Rd, Indiranagar, Bengaluru",
		"address_components":[{"long_name":"12th Main Rd","types":["route"]},{"long_name":"Indiranagar","types":["sublocality","political"]}]}]}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/json", r.URL.Path)
		assert.Equal(t, "12.9784,77.6408", r.URL.Query().Get("latlng"))
		_, _ = w.Write([]byte(body))
	})
	loc, err := c.ReverseGeocode(context.Background(), 12.9784, 77.6408)
	require.NoError(t, err)
	assert.Equal(t, "Indiranagar", loc.Name)
	assert.Equal(t, "12th Main Rd, Indiranagar, Bengaluru", loc.Address)
	assert.Equal(t, 12.9784, loc.Latitude)
}

func TestReverseGeocodeFallsBackToFirstSegment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"456 Park Ave, New Delhi"}]}`))
	})
	loc, err := c.ReverseGeocode(context.Background(), 28.6, 77.2)
	require.NoError(t, err)
	assert.Equal(t, "456 Park Ave", loc.Name)
}

func TestReverseGeocodeNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})
	_, err := c.ReverseGeocode(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelledContextIsNotAFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Search(ctx, "Whitefield")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrFailure)
}
