package plugin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/srcsrv/pkg/auth"
	"github.com/walteh/srcsrv/pkg/stream"
)

type stubPlugin struct {
	name string
}

func (p *stubPlugin) Name() string                        { return p.name }
func (p *stubPlugin) Header(doc *stream.Document) error   { return nil }
func (p *stubPlugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("stub", func(ctx context.Context, opts Options, args []string) (Plugin, error) {
		return &stubPlugin{name: "stub"}, nil
	})

	t.Run("known_plugin", func(t *testing.T) {
		p, err := New(context.Background(), "stub", Options{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "stub", p.Name())
	})

	t.Run("unknown_plugin", func(t *testing.T) {
		_, err := New(context.Background(), "nope", Options{}, nil)
		require.Error(t, err)

		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "nope", cerr.Plugin)
		assert.Contains(t, cerr.Reason, "stub", "error should list the registered plugins")
	})

	t.Run("names_sorted", func(t *testing.T) {
		names := Names()
		assert.Contains(t, names, "stub")
		assert.IsIncreasing(t, names)
	})
}

func TestCommand(t *testing.T) {
	cmd := Command("srcsrv.exe", "GH_PLUGIN", "GH_URI")
	assert.Equal(t,
		"srcsrv.exe fetch %GH_PLUGIN% %GH_URI% --target=%SRCSRVTRG% --path=%var2% --file=%var3% --digest=%var4%",
		cmd)
}

func TestOptionsVerify(t *testing.T) {
	truev, falsev := true, false

	tests := []struct {
		name      string
		verify    *bool
		wantToken string
		wantTLS   bool
	}{
		{name: "unspecified", verify: nil, wantToken: "", wantTLS: true},
		{name: "explicit_true", verify: &truev, wantToken: "true", wantTLS: true},
		{name: "explicit_false", verify: &falsev, wantToken: "false", wantTLS: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{Verify: tt.verify}
			assert.Equal(t, tt.wantToken, opts.VerifyToken())
			assert.Equal(t, tt.wantTLS, opts.TLSVerify())
		})
	}
}

func TestOptionsAuthVarOr(t *testing.T) {
	assert.Equal(t, "SRCSRV_GITHUB_AUTH", Options{}.AuthVarOr("SRCSRV_GITHUB_AUTH"))
	assert.Equal(t, "MY_TOKEN", Options{AuthVar: "MY_TOKEN"}.AuthVarOr("SRCSRV_GITHUB_AUTH"))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		want   FetchKind
	}{
		{status: 404, want: NotFound},
		{status: 401, want: AuthFailed},
		{status: 403, want: AuthFailed},
		{status: 500, want: ServerError},
		{status: 503, want: ServerError},
		{status: 302, want: NetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			err := StatusError("https://example.com/f", tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
			assert.Contains(t, err.Error(), "https://example.com/f")
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Run("deadline_is_timeout", func(t *testing.T) {
		err := TransportError("https://example.com", context.DeadlineExceeded)
		assert.Equal(t, Timeout, err.Kind)
	})

	t.Run("net_timeout_is_timeout", func(t *testing.T) {
		err := TransportError("https://example.com", &net.DNSError{IsTimeout: true})
		assert.Equal(t, Timeout, err.Kind)
	})

	t.Run("other_is_network", func(t *testing.T) {
		err := TransportError("https://example.com", &net.DNSError{})
		assert.Equal(t, NetworkError, err.Kind)
	})
}

func TestHTTPClient(t *testing.T) {
	t.Run("default_timeout", func(t *testing.T) {
		c := HTTPClient(Options{})
		assert.Equal(t, DefaultTimeout, c.Timeout)
	})

	t.Run("configured_timeout", func(t *testing.T) {
		c := HTTPClient(Options{Timeout: 5 * time.Second})
		assert.Equal(t, 5*time.Second, c.Timeout)
	})

	t.Run("insecure_transport", func(t *testing.T) {
		falsev := false
		c := HTTPClient(Options{Verify: &falsev})
		tr, ok := c.Transport.(*http.Transport)
		require.True(t, ok)
		assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.Write([]byte("content"))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	cred := auth.HeaderAuth{Headers: map[string]string{"Authorization": "Bearer tok"}}

	t.Run("success", func(t *testing.T) {
		body, err := Get(ctx, srv.Client(), cred, srv.URL+"/ok", http.Header{"Accept": {"application/json"}})
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), body)
	})

	t.Run("not_found", func(t *testing.T) {
		_, err := Get(ctx, srv.Client(), auth.NoAuth{}, srv.URL+"/missing", nil)
		var ferr *FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, NotFound, ferr.Kind)
	})

	t.Run("server_error", func(t *testing.T) {
		_, err := Get(ctx, srv.Client(), auth.NoAuth{}, srv.URL+"/boom", nil)
		var ferr *FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, ServerError, ferr.Kind)
	})

	t.Run("connection_refused", func(t *testing.T) {
		_, err := Get(ctx, srv.Client(), auth.NoAuth{}, "http://127.0.0.1:1/nope", nil)
		var ferr *FetchError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, NetworkError, ferr.Kind)
	})
}
