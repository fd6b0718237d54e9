package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPOINearbyParsesElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/interpreter", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("data"), "supermarket")

		w.Write([]byte(`{"elements":[
			{"type":"node","id":101,"lat":42.36,"lon":-71.06,"tags":{"name":"Corner Market","shop":"supermarket"}},
			{"type":"way","id":202,"center":{"lat":42.37,"lon":-71.07},"tags":{"shop":"grocery"}},
			{"type":"node","id":0,"lat":42.38,"lon":-71.08},
			{"type":"node","id":303}
		]}`))
	}))
	defer server.Close()

	p := NewPOISearch(testHTTPClient(), testBreaker(), server.URL)

	places, err := p.Nearby(context.Background(), Coordinate{Lat: 42.36, Lon: -71.06}, 5000)
	require.NoError(t, err)
	require.Len(t, places, 2, "elements without an id or coordinates are skipped")

	assert.Equal(t, "node/101", places[0].ExternalID)
	assert.Equal(t, "Corner Market", places[0].Name)
	assert.InDelta(t, 42.36, places[0].Lat, 0.001)

	assert.Equal(t, "way/202", places[1].ExternalID)
	assert.Equal(t, "Unnamed store", places[1].Name)
	assert.InDelta(t, 42.37, places[1].Lat, 0.001, "ways fall back to their center point")
}

func TestPOINearbyRetriesDespitePost(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer server.Close()

	client := newFastRetryClient()
	p := NewPOISearch(client, testBreaker(), server.URL)

	places, err := p.Nearby(context.Background(), Coordinate{Lat: 42.36, Lon: -71.06}, 5000)
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestPOINearbyGarbageBodyIsSchemaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>rate limited</html>`))
	}))
	defer server.Close()

	p := NewPOISearch(testHTTPClient(), testBreaker(), server.URL)

	_, err := p.Nearby(context.Background(), Coordinate{Lat: 42.36, Lon: -71.06}, 5000)
	assert.ErrorIs(t, err, ErrSchema)
}
