package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/offlinegen/internal/catalog"
	"github.com/fulmenhq/offlinegen/internal/manifest"
	"github.com/fulmenhq/offlinegen/pkg/exitcode"
	"github.com/fulmenhq/offlinegen/pkg/fetch"
)

const testHost = "https://main--signage--acme.hlx.live"

var synthesisTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const pageIndex = `{"total":3,"offset":0,"limit":3,"data":[
  {"path":"/content/screens/lobby","template":"","scripts":"[\"/scripts/app.js\"]","styles":"[]",
   "assets":"[\"/content/dam/media_abc123.png\"]","inlineImages":"[]","dependencies":"[]",
   "fragments":"[\"/fragments/footer\"]"},
  {"path":"/fragments/footer","scripts":"[]","styles":"[]","assets":"[]","inlineImages":"[]",
   "dependencies":"[]","fragments":"[]"},
  {"path":"/content/screens/broken","scripts":"[]","styles":"[]","assets":"[]","inlineImages":"[]",
   "dependencies":"[]","fragments":"[]"}
]}`

const channelIndex = `{"total":1,"data":[
  {"path":"/content/screens/lobby","externalId":"lobby","title":"Lobby","liveUrl":"https://screens.example/lobby","editUrl":"","online":"no"}
]}`

func lastModified(d int) map[string]string {
	return map[string]string{"Last-Modified": time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)}
}

func siteMock() *fetch.MockHTTPFetcher {
	m := fetch.NewMockHTTPFetcher()
	m.AddResponse(testHost+"/manifest.json", 200, pageIndex)
	m.AddResponse(testHost+"/channels.json", 200, channelIndex)
	m.AddResponse(testHost+"/content/screens/lobby", 200, "<html><head><title>Lobby</title></head><body></body></html>")
	m.AddHead(testHost+"/content/screens/lobby.html", 200, lastModified(2))
	m.AddHead(testHost+"/scripts/app.js", 200, lastModified(1))
	m.AddHead(testHost+"/content/screens/media_abc123.png", 200, map[string]string{"Content-Type": "image/png"})
	m.AddHead(testHost+"/fragments/footer.html", 200, lastModified(5))
	return m
}

// recordingFetcher captures the allowlist header of every request.
type recordingFetcher struct {
	fetch.HTTPFetcher
	mu   sync.Mutex
	keys []string
}

func (r *recordingFetcher) Do(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	r.keys = append(r.keys, req.Header.Get(allowlistHeader))
	r.mu.Unlock()
	return r.HTTPFetcher.Do(req)
}

// useFetcher isolates a test from the host environment and routes all HTTP
// through f.
func useFetcher(t *testing.T, f fetch.HTTPFetcher) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	oldFetcher, oldNow := newHTTPFetcher, now
	newHTTPFetcher = func(time.Duration) fetch.HTTPFetcher { return f }
	now = func() time.Time { return synthesisTime }
	t.Cleanup(func() {
		newHTTPFetcher, now = oldFetcher, oldNow
	})
}

func execCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	registerSubcommands(cmd)

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestResources(t *testing.T) {
	mock := siteMock()
	useFetcher(t, mock)
	out := t.TempDir()

	stdout, err := execCommand(t, "resources", "--host", testHost, "--output-dir", out)
	require.NoError(t, err, stdout)

	data, err := os.ReadFile(filepath.Join(out, "content", "screens", "lobby.manifest.json"))
	require.NoError(t, err)
	var m manifest.PageManifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, manifest.Version, m.Version)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).UnixMilli(), m.Timestamp)

	paths := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{
		"/content/screens/lobby.html",
		"/content/screens/media_abc123.png",
		"/fragments/footer.html",
		"/scripts/app.js",
	}, paths)
	assert.Equal(t, "abc123", m.Entries[1].Hash)
	assert.Nil(t, m.Entries[1].Timestamp)

	html, err := os.ReadFile(filepath.Join(out, "content", "screens", "lobby.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Lobby</title>")

	_, err = os.Stat(filepath.Join(out, "fragments", "footer.manifest.json"))
	assert.True(t, os.IsNotExist(err), "fragments are not channels")

	data, err = os.ReadFile(filepath.Join(out, "screens", "channels.json"))
	require.NoError(t, err)
	var cat catalog.Catalog
	require.NoError(t, json.Unmarshal(data, &cat))
	require.Len(t, cat.Channels, 1)
	ch := cat.Channels[0]
	assert.Equal(t, "lobby", ch.ExternalID)
	assert.Equal(t, "Lobby", ch.Title)
	require.NotNil(t, ch.ManifestPath)
	assert.Equal(t, "/content/screens/lobby.manifest.json", *ch.ManifestPath)
	assert.Contains(t, string(data), `"lastModified": "2024-01-05T00:00:00.000Z"`)

	assert.Contains(t, stdout, "EXTERNAL ID")
	assert.Contains(t, stdout, "lobby")
	assert.Contains(t, stdout, "Pages failed: 1")
	assert.Contains(t, stdout, "/content/screens/broken")
	assert.Equal(t, 1, mock.Calls(http.MethodGet, testHost+"/manifest.json"))
}

func TestManifests_SkipsGeneratorsAndCatalog(t *testing.T) {
	mock := siteMock()
	useFetcher(t, mock)
	out := t.TempDir()

	stdout, err := execCommand(t, "manifests", "--host", testHost, "--output-dir", out)
	require.NoError(t, err, stdout)

	_, err = os.Stat(filepath.Join(out, "content", "screens", "lobby.manifest.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "content", "screens", "lobby.html"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, "screens", "channels.json"))
	assert.True(t, os.IsNotExist(err))

	assert.Zero(t, mock.Calls(http.MethodGet, testHost+"/channels.json"))
	assert.Zero(t, mock.Calls(http.MethodGet, testHost+"/content/screens/lobby"))
	assert.Contains(t, stdout, "Manifests written: 1")
}

func TestResources_PageFilters(t *testing.T) {
	useFetcher(t, siteMock())
	out := t.TempDir()

	stdout, err := execCommand(t, "resources", "--host", testHost, "--output-dir", out,
		"--exclude", "/content/screens/broken", "--generate=false")
	require.NoError(t, err, stdout)
	assert.NotContains(t, stdout, "Pages failed")
	assert.Contains(t, stdout, "Pages filtered: 1")

	_, err = os.Stat(filepath.Join(out, "content", "screens", "lobby.html"))
	assert.True(t, os.IsNotExist(err), "generation disabled")
}

func TestResources_AllowlistHeader(t *testing.T) {
	rec := &recordingFetcher{HTTPFetcher: siteMock()}
	useFetcher(t, rec)
	t.Setenv("franklinAllowlistKey", "k-123")

	_, err := execCommand(t, "manifests", "--host", testHost, "--output-dir", t.TempDir())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.keys)
	for _, k := range rec.keys {
		assert.Equal(t, "k-123", k)
	}
}

func TestRunSynthesis_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		mock func() *fetch.MockHTTPFetcher
		args []string
		code int
	}{
		{
			name: "page index unreachable",
			mock: fetch.NewMockHTTPFetcher,
			args: []string{"manifests", "--host", testHost},
			code: exitcode.NetworkError,
		},
		{
			name: "page index has unknown sheet type",
			mock: func() *fetch.MockHTTPFetcher {
				m := fetch.NewMockHTTPFetcher()
				m.AddResponse(testHost+"/manifest.json", 200, `{":type":"table","data":[]}`)
				return m
			},
			args: []string{"manifests", "--host", testHost},
			code: exitcode.ValidationError,
		},
		{
			name: "channel metadata unreachable",
			mock: func() *fetch.MockHTTPFetcher {
				m := fetch.NewMockHTTPFetcher()
				m.AddResponse(testHost+"/manifest.json", 200, `{"total":0,"data":[]}`)
				return m
			},
			args: []string{"resources", "--host", testHost},
			code: exitcode.NetworkError,
		},
		{
			name: "invalid config",
			mock: fetch.NewMockHTTPFetcher,
			args: []string{"manifests", "--host", testHost, "--pages-index", "manifest"},
			code: exitcode.ConfigError,
		},
		{
			name: "no host outside git",
			mock: fetch.NewMockHTTPFetcher,
			args: []string{"manifests"},
			code: exitcode.GitError,
		},
		{
			name: "bad include pattern",
			mock: siteMock,
			args: []string{"manifests", "--host", testHost, "--include", "/content/[x"},
			code: exitcode.ConfigError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useFetcher(t, tt.mock())
			args := append(tt.args, "--output-dir", t.TempDir())
			_, err := execCommand(t, args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitcode.Of(err))
		})
	}
}
