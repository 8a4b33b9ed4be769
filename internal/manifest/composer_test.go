package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/fulmenhq/offlinegen/pkg/fetch"
	"github.com/fulmenhq/offlinegen/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const host = "https://main--site--org.hlx.live"

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func lastModified(t time.Time) map[string]string {
	return map[string]string{"Last-Modified": t.UTC().Format(http.TimeFormat)}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func newComposer(mock *fetch.MockHTTPFetcher, idx Index, adaptive bool) *Composer {
	cache := fetch.NewCache(mock, nil)
	return NewComposer(cache, idx, ComposerOptions{AdaptiveRenditions: adaptive, Clock: fixedClock})
}

func paths(m *PageManifest) []string {
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Path)
	}
	return out
}

func entry(t *testing.T, m *PageManifest, path string) Entry {
	t.Helper()
	for _, e := range m.Entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no entry %q in %v", path, paths(m))
	return Entry{}
}

func TestCompose_DedupSortAndTimestamp(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/content/screens/lobby.html", 200, lastModified(day(2)))
	mock.AddHead(host+"/scripts/app.js", 200, lastModified(day(5)))
	mock.AddHead(host+"/styles/app.css", 200, lastModified(day(3)))
	mock.AddHead(host+"/content/screens/media_1234abcd.png", 200, lastModified(day(20)))

	page := &PageData{
		Path:         "/content/screens/lobby",
		Scripts:      []string{"/scripts/app.js", "/scripts/app.js"},
		Styles:       []string{"/styles/app.css"},
		Assets:       []string{"./media_1234abcd.png?width=100"},
		InlineImages: []string{"./media_1234abcd.png?width=750"},
		Dependencies: []string{"/scripts/missing.js"},
	}

	m, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)

	assert.Equal(t, Version, m.Version)
	assert.Equal(t, []string{
		"/content/screens/lobby.html",
		"/content/screens/media_1234abcd.png",
		"/scripts/app.js",
		"/styles/app.css",
	}, paths(m))

	media := entry(t, m, "/content/screens/media_1234abcd.png")
	assert.Equal(t, "1234abcd", media.Hash)
	assert.Nil(t, media.Timestamp, "media entries never carry timestamps")

	assert.Equal(t, day(5).UnixMilli(), m.Timestamp)
	for _, e := range m.Entries {
		if e.Timestamp != nil {
			assert.GreaterOrEqual(t, m.Timestamp, *e.Timestamp)
		}
	}
	assert.Equal(t, DefaultContentDelivery(), m.ContentDelivery)
	assert.Equal(t, 1, mock.Calls(http.MethodHead, host+"/scripts/app.js"))
}

func TestCompose_UnavailableResourceNamesPage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.Initialize(logger.Config{Level: logger.DebugLevel, JSON: true}))
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/content/screens/lobby.html", 200, lastModified(day(2)))
	page := &PageData{Path: "/content/screens/lobby", Dependencies: []string{"/scripts/missing.js"}}

	m, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/content/screens/lobby.html"}, paths(m))

	logs := buf.String()
	assert.Contains(t, logs, "resource /scripts/missing.js of /content/screens/lobby not available")
	assert.Contains(t, logs, `"timestamp":`+strconv.FormatInt(day(2).UnixMilli(), 10))
}

func TestCompose_FragmentMediaIsRebased(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/content/screens/p.html", 200, lastModified(day(1)))
	mock.AddHead(host+"/frag.html", 200, lastModified(day(9)))
	mock.AddHead(host+"/frag.plain.html", 200, lastModified(day(4)))
	mock.AddHead(host+"/media_aaaa.jpg", 200, nil)

	idx := Index{
		"/frag": {Path: "/frag", Assets: []string{"media_aaaa.jpg"}},
	}
	page := &PageData{Path: "/content/screens/p", Fragments: []string{"/frag"}}

	m, err := newComposer(mock, idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/content/screens/media_aaaa.jpg",
		"/content/screens/p.html",
		"/frag.html",
		"/frag.plain.html",
	}, paths(m))

	media := entry(t, m, "/content/screens/media_aaaa.jpg")
	assert.Equal(t, "aaaa", media.Hash)
	assert.Nil(t, media.Timestamp)

	// fragment timestamps propagate to the including page
	assert.Equal(t, day(9).UnixMilli(), m.Timestamp)
}

func TestCompose_NestedFragmentsAndLastFragmentWins(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	for _, p := range []string{"/a/top.html", "/f1.html", "/f1.plain.html", "/f2.html", "/f2.plain.html", "/deep/f3.html", "/deep/f3.plain.html"} {
		mock.AddHead(host+p, 200, lastModified(day(1)))
	}
	mock.AddHead(host+"/deep/f3.plain.html", 200, lastModified(day(15)))
	mock.AddHead(host+"/shared.js", 200, lastModified(day(2)))
	mock.AddHead(host+"/deep/media_bb.png", 200, nil)

	idx := Index{
		"/f1":      {Path: "/f1", Scripts: []string{"/shared.js"}},
		"/f2":      {Path: "/f2", Scripts: []string{"/shared.js"}, Fragments: []string{"/deep/f3"}},
		"/deep/f3": {Path: "/deep/f3", Assets: []string{"./media_bb.png"}},
	}
	page := &PageData{Path: "/a/top", Fragments: []string{"/f1", "/f2"}}

	m, err := newComposer(mock, idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)

	assert.Contains(t, paths(m), "/a/media_bb.png")
	assert.Contains(t, paths(m), "/deep/f3.plain.html")
	assert.Equal(t, day(15).UnixMilli(), m.Timestamp)

	seen := map[string]int{}
	for _, p := range paths(m) {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "duplicate entry %s", p)
	}
}

func TestCompose_FragmentCycle(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	for _, p := range []string{"/p.html", "/a.html", "/a.plain.html", "/b.html", "/b.plain.html"} {
		mock.AddHead(host+p, 200, nil)
	}
	idx := Index{
		"/a": {Path: "/a", Fragments: []string{"/b"}},
		"/b": {Path: "/b", Fragments: []string{"/a"}},
	}
	page := &PageData{Path: "/p", Fragments: []string{"/a"}}

	_, err := newComposer(mock, idx, false).Compose(context.Background(), host, page, false, nil)
	require.Error(t, err)
	var cyc *CyclicFragmentError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"/p", "/a", "/b", "/a"}, cyc.Chain)
}

func TestCompose_SameFragmentTwiceIsNotACycle(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	for _, p := range []string{"/p.html", "/a.html", "/a.plain.html", "/b.html", "/b.plain.html", "/c.html", "/c.plain.html"} {
		mock.AddHead(host+p, 200, nil)
	}
	idx := Index{
		"/a": {Path: "/a", Fragments: []string{"/c"}},
		"/b": {Path: "/b", Fragments: []string{"/c"}},
		"/c": {Path: "/c"},
	}
	page := &PageData{Path: "/p", Fragments: []string{"/a", "/b"}}

	m, err := newComposer(mock, idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)
	assert.Contains(t, paths(m), "/c.plain.html")
}

func TestCompose_MissingFragmentIsSkipped(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/p.html", 200, lastModified(day(3)))
	mock.AddHead(host+"/gone.html", 404, nil)
	idx := Index{"/gone": {Path: "/gone"}}
	page := &PageData{Path: "/p", Fragments: []string{"/unknown", "/gone"}}

	m, err := newComposer(mock, idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p.html"}, paths(m))
	assert.Equal(t, day(3).UnixMilli(), m.Timestamp)
}

func TestCompose_PageUnreachableFails(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	page := &PageData{Path: "/p", Scripts: []string{"/a.js"}}

	_, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, page, false, nil)
	require.Error(t, err)
	assert.True(t, fetch.IsNotFound(err))
}

func TestCompose_FreshlyGeneratedUsesSynthesisTime(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/p.html", 200, lastModified(day(1)))

	m, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, &PageData{Path: "/p"}, true, nil)
	require.NoError(t, err)

	e := entry(t, m, "/p.html")
	require.NotNil(t, e.Timestamp)
	assert.Equal(t, fixedNow.UnixMilli(), *e.Timestamp)
	assert.Equal(t, fixedNow.UnixMilli(), m.Timestamp)
	assert.Equal(t, 0, mock.Calls(http.MethodHead, host+"/p.html"))
}

func TestCompose_NoTimestampsFallsBackToNow(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/p.html", 200, nil)
	mock.AddHead(host+"/data.json", 200, nil)

	m, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, &PageData{Path: "/p", Dependencies: []string{"/data.json"}}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli(), m.Timestamp)

	dep := entry(t, m, "/data.json")
	assert.Nil(t, dep.Timestamp)
	assert.Empty(t, dep.Hash)
}

func TestCompose_ExtraResources(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/p.html", 200, nil)
	mock.AddHead(host+"/p.plain.html", 200, lastModified(day(7)))

	m, err := newComposer(mock, Index{}, false).Compose(context.Background(), host, &PageData{Path: "/p"}, false, []string{"/p.plain.html"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/p.html", "/p.plain.html"}, paths(m))
	assert.Equal(t, day(7).UnixMilli(), m.Timestamp)
}

func TestCompose_Idempotent(t *testing.T) {
	setup := func() *fetch.MockHTTPFetcher {
		mock := fetch.NewMockHTTPFetcher()
		mock.AddHead(host+"/content/p.html", 200, lastModified(day(2)))
		mock.AddHead(host+"/f.html", 200, lastModified(day(3)))
		mock.AddHead(host+"/f.plain.html", 200, nil)
		mock.AddHead(host+"/a.js", 200, lastModified(day(4)))
		mock.AddHead(host+"/content/media_01.png", 200, nil)
		mock.AddHead(host+"/media_02.png", 200, nil)
		return mock
	}
	idx := Index{"/f": {Path: "/f", Assets: []string{"./media_02.png"}, Scripts: []string{"/a.js"}}}
	page := &PageData{Path: "/content/p", Assets: []string{"./media_01.png"}, Fragments: []string{"/f"}}

	first, err := newComposer(setup(), idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)
	second, err := newComposer(setup(), idx, false).Compose(context.Background(), host, page, false, nil)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
}

func TestCompose_AdaptiveRenditions(t *testing.T) {
	mock := fetch.NewMockHTTPFetcher()
	mock.AddHead(host+"/content/p.html", 200, nil)
	mock.AddHead(host+"/content/media_77.png", 200, map[string]string{"Content-Type": "image/png"})
	mock.AddHead(host+"/content/media_77_renditions/media_77-landscape.jpeg", 200, nil)

	m, err := newComposer(mock, Index{}, true).Compose(context.Background(), host, &PageData{Path: "/content/p", Assets: []string{"./media_77.png"}}, false, nil)
	require.NoError(t, err)

	media := entry(t, m, "/content/media_77.png")
	require.Len(t, media.Renditions, 1)
	assert.Equal(t, Rendition{
		Name:   "landscape",
		Path:   "/content/media_77_renditions/media_77-landscape.jpeg",
		Width:  1408,
		Height: 1024,
	}, media.Renditions[0])
}
