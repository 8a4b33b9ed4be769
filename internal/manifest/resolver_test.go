package manifest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fulmenhq/offlinegen/pkg/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(mock *fetch.MockHTTPFetcher) *Resolver {
	return NewResolver(fetch.NewCache(mock, nil), nil, fixedClock)
}

func TestResolvePageEntry(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/p.html", 200, lastModified(day(8)))
	mock.AddHead(host+"/plain.html", 200, nil)
	r := newResolver(mock)

	e, err := r.ResolvePageEntry(context.Background(), host, "/p", false)
	require.NoError(t, err)
	assert.Equal(t, "/p.html", e.Path)
	require.NotNil(t, e.Timestamp)
	assert.Equal(t, day(8).UnixMilli(), *e.Timestamp)

	e, err = r.ResolvePageEntry(context.Background(), host, "/plain", false)
	require.NoError(t, err)
	assert.Nil(t, e.Timestamp)

	_, err = r.ResolvePageEntry(context.Background(), host, "/missing", false)
	var fe *fetch.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestResolveResourceEntry(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/content/media_abc123.jpg", 200, lastModified(day(1)))
	mock.AddHead(host+"/is/image/org/hero", 200, nil)
	mock.AddHead(host+"/scripts/x.js", 200, lastModified(day(2)))
	mock.AddError(host+"/down.js", errors.New("dial tcp: refused"))
	r := newResolver(mock)
	ctx := context.Background()

	media, err := r.ResolveResourceEntry(ctx, host, "/content/media_abc123.jpg", false)
	require.NoError(t, err)
	assert.Equal(t, "abc123", media.Hash)
	assert.Nil(t, media.Timestamp)

	scene7, err := r.ResolveResourceEntry(ctx, host, "/is/image/org/hero", false)
	require.NoError(t, err)
	assert.Equal(t, "scene7-hero", scene7.Hash)

	script, err := r.ResolveResourceEntry(ctx, host, " /scripts/x.js ", false)
	require.NoError(t, err)
	assert.Equal(t, "/scripts/x.js", script.Path)
	require.NotNil(t, script.Timestamp)
	assert.Equal(t, day(2).UnixMilli(), *script.Timestamp)
	assert.Empty(t, script.Hash)

	for _, p := range []string{"/nope.js", "/down.js"} {
		e, err := r.ResolveResourceEntry(ctx, host, p, false)
		assert.Nil(t, e)
		var ru *ResourceUnavailable
		require.ErrorAs(t, err, &ru, p)
		assert.Equal(t, p, ru.Path)
	}
}

func TestResolveResourceEntry_RenditionsOnlyForImages(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/media_v1.mp4", 200, map[string]string{"Content-Type": "video/mp4"})
	mock.AddHead(host+"/media_i1.png", 200, map[string]string{"Content-Type": "image/png"})
	mock.AddHead(host+"/media_i1_renditions/media_i1-landscape.jpeg", 200, nil)
	mock.AddHead(host+"/media_i1_renditions/media_i1-portrait.jpeg", 200, nil)
	r := newResolver(mock)

	video, err := r.ResolveResourceEntry(context.Background(), host, "/media_v1.mp4", true)
	require.NoError(t, err)
	assert.Empty(t, video.Renditions)

	img, err := r.ResolveResourceEntry(context.Background(), host, "/media_i1.png", true)
	require.NoError(t, err)
	require.Len(t, img.Renditions, 2)
	assert.Equal(t, "portrait", img.Renditions[1].Name)
	assert.Equal(t, 1024, img.Renditions[1].Width)
	assert.Equal(t, 1408, img.Renditions[1].Height)

	noProbe, err := r.ResolveResourceEntry(context.Background(), host, "/media_i1.png", false)
	require.NoError(t, err)
	assert.Empty(t, noProbe.Renditions)
}
