package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
)

func newTestPlugin(t *testing.T, opts plugin.Options, args []string) *Plugin {
	t.Helper()
	t.Setenv(AuthVar, "")

	p, err := New(context.Background(), opts, args)
	require.NoError(t, err)
	return p.(*Plugin)
}

func TestNew(t *testing.T) {
	t.Setenv(AuthVar, "")

	t.Run("project_id_required", func(t *testing.T) {
		_, err := New(context.Background(), plugin.Options{URI: "gitlab.com"}, nil)
		var cerr *plugin.ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Reason, "--project-id")
	})

	t.Run("api_defaults_to_v4", func(t *testing.T) {
		p := newTestPlugin(t, plugin.Options{URI: "gitlab.com"}, []string{"--project-id=42"})
		assert.Equal(t, "v4", p.api)
	})
}

func TestHeader(t *testing.T) {
	p := newTestPlugin(t, plugin.Options{URI: "gitlab.com", Commit: "a1b2c3", Exe: "srcsrv.exe"},
		[]string{"--project-id=42", "--sudo=deploy"})

	doc := stream.New()
	require.NoError(t, p.Header(doc))

	wantVars := map[string]string{
		"GL_PLUGIN":  "--plugin=gitlab",
		"GL_URI":     "--uri=gitlab.com",
		"GL_COMMIT":  "--commit=a1b2c3",
		"GL_API":     "--api=v4",
		"GL_PROJECT": "--project-id=42",
		"GL_SUDO":    "--sudo=deploy",
	}
	for key, want := range wantVars {
		got, ok := doc.Var(key)
		require.True(t, ok, "missing variable %s", key)
		assert.Equal(t, want, got)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The file path is one URL-encoded segment in the metadata call
		switch r.URL.EscapedPath() {
		case "/api/v4/projects/42/repository/files/src%2Ftest.cpp":
			assert.Equal(t, "a1b2c3", r.URL.Query().Get("ref"))
			assert.Equal(t, "deploy", r.URL.Query().Get("sudo"))
			w.Write([]byte(`{"file_name":"test.cpp","blob_id":"deadbeef"}`))
		case "/api/v4/projects/42/repository/blobs/deadbeef/raw":
			w.Write([]byte("int main() {}\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := newTestPlugin(t, plugin.Options{URI: "gitlab.com", Commit: "a1b2c3"},
		[]string{"--project-id=42", "--sudo=deploy"})
	p.host = srv.URL

	t.Run("success", func(t *testing.T) {
		data, err := p.Fetch(context.Background(), "/src/", "test.cpp", "ABC123")
		require.NoError(t, err)
		assert.Equal(t, []byte("int main() {}\n"), data)
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := p.Fetch(context.Background(), "/src/", "missing.cpp", "ABC123")
		var ferr *plugin.FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, plugin.NotFound, ferr.Kind)
	})
}

func TestFetchBadMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"file_name":"test.cpp"}`))
	}))
	defer srv.Close()

	p := newTestPlugin(t, plugin.Options{URI: "gitlab.com", Commit: "a1b2c3"},
		[]string{"--project-id=42"})
	p.host = srv.URL

	_, err := p.Fetch(context.Background(), "/src/", "test.cpp", "ABC123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blob_id")
}
