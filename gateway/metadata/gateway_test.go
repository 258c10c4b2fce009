package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvmarket-view-onchain/model"
)

func newGateway(retries int, ttl time.Duration) *HttpMetadataGateway {
	return NewHttpMetadataGateway(Options{
		Timeout:     2 * time.Second,
		Retries:     retries,
		CacheTTL:    ttl,
		IpfsGateway: "https://gateway.example/ipfs/",
	})
}

func TestFetchMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Cat","description":"a cat","image":"https://img.example/cat.png","extra":1}`))
	}))
	defer srv.Close()

	md, err := newGateway(0, 0).FetchMetadata(context.Background(), srv.URL+"/1.json")
	require.NoError(t, err)
	assert.Equal(t, "Cat", md.Name)
	assert.Equal(t, "a cat", md.Description)
	assert.Equal(t, "https://img.example/cat.png", md.Image)
}

func TestFetchMetadataHttpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newGateway(0, 0).FetchMetadata(context.Background(), srv.URL)
	assert.ErrorIs(t, err, model.ErrMetadataUnavailable)
}

func TestFetchMetadataServerErrorWithoutRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newGateway(0, 0).FetchMetadata(context.Background(), srv.URL)
	assert.ErrorIs(t, err, model.ErrMetadataUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchMetadataRetriesWhenConfigured(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"name":"Dog"}`))
	}))
	defer srv.Close()

	md, err := newGateway(1, 0).FetchMetadata(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Dog", md.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchMetadataMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":`))
	}))
	defer srv.Close()

	_, err := newGateway(0, 0).FetchMetadata(context.Background(), srv.URL)
	assert.ErrorIs(t, err, model.ErrMetadataUnavailable)
}

func TestFetchMetadataRejectsNonURL(t *testing.T) {
	_, err := newGateway(0, 0).FetchMetadata(context.Background(), "not a uri")
	assert.ErrorIs(t, err, model.ErrMetadataUnavailable)
}

func TestFetchMetadataUsesCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`{"name":"Cached"}`))
	}))
	defer srv.Close()

	g := newGateway(0, time.Minute)
	for i := 0; i < 3; i++ {
		md, err := g.FetchMetadata(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Cached", md.Name)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestResolveURI(t *testing.T) {
	const cid = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	gw := "https://gateway.example/ipfs"

	tests := []struct {
		in   string
		want string
	}{
		{"https://meta.example/1.json", "https://meta.example/1.json"},
		{"ipfs://" + cid + "/1.json", gw + "/" + cid + "/1.json"},
		{"ipfs://ipfs/" + cid, gw + "/" + cid},
		{cid, gw + "/" + cid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURI(tt.in, gw))
		})
	}
}
