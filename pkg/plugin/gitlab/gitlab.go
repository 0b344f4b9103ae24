// Package gitlab is the provider plugin for GitLab.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/walteh/srcsrv/pkg/auth"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
	"gitlab.com/tozd/go/errors"
)

// AuthVar is the default credential environment variable
const AuthVar = "SRCSRV_GITLAB_AUTH"

func init() {
	plugin.Register("gitlab", New)
}

// 🎯 Plugin fetches file content through the GitLab REST API. Retrieval is
// two calls: file metadata at the recorded ref to learn the blob id, then
// the raw blob content.
type Plugin struct {
	opts      plugin.Options
	api       string
	account   string
	projectID string
	sudo      string
	cred      auth.Credential
	client    *http.Client

	host string // https://{uri}, overridable in tests
}

// 🏭 New parses the provider flags on top of the common options
func New(ctx context.Context, opts plugin.Options, args []string) (plugin.Plugin, error) {
	fs := plugin.NewFlagSet("gitlab")
	account := fs.String("account", "%SRCSRV_USERNAME%", "repository account")
	projectID := fs.String("project-id", "", "repository project ID")
	api := fs.String("api", "v4", "REST API version")
	sudo := fs.String("sudo", "", "REST API sudo user")
	if err := fs.Parse(args); err != nil {
		return nil, &plugin.ConfigError{Plugin: "gitlab", Reason: err.Error()}
	}
	if *projectID == "" {
		return nil, &plugin.ConfigError{Plugin: "gitlab", Reason: "--project-id is required"}
	}

	cred, err := auth.Resolve(opts.AuthVarOr(AuthVar))
	if err != nil {
		return nil, err
	}

	return &Plugin{
		opts:      opts,
		api:       *api,
		account:   *account,
		projectID: *projectID,
		sudo:      *sudo,
		cred:      cred,
		client:    plugin.HTTPClient(opts),
		host:      "https://" + opts.URI,
	}, nil
}

func (p *Plugin) Name() string {
	return "gitlab"
}

// 📝 Header emits the self-describing variables block
func (p *Plugin) Header(doc *stream.Document) error {
	doc.SetVar(stream.VarCommand, plugin.Command(p.opts.Exe,
		"GL_PLUGIN", "GL_URI", "GL_API", "GL_PROJECT", "GL_ACCOUNT", "GL_SUDO", "GL_COMMIT", "GL_VERIFY"))
	doc.SetVar("GL_BASE", p.opts.BuildBase)
	doc.SetVar("GL_PLUGIN", "--plugin=gitlab")
	doc.SetVar("GL_URI", "--uri="+p.opts.URI)
	doc.SetVar("GL_COMMIT", "--commit="+p.opts.Commit)
	doc.SetVar("GL_VERIFY", "--verify="+p.opts.VerifyToken())
	doc.SetVar("GL_ACCOUNT", "--account="+p.account)
	doc.SetVar("GL_PROJECT", "--project-id="+p.projectID)
	doc.SetVar("GL_SUDO", "--sudo="+p.sudo)
	doc.SetVar("GL_API", "--api="+p.api)
	return nil
}

func (p *Plugin) query() string {
	q := url.Values{"ref": {p.opts.Commit}}
	if p.sudo != "" {
		q.Set("sudo", p.sudo)
	}
	return q.Encode()
}

// 📄 Fetch retrieves one file's content at the recorded commit
func (p *Plugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	header := http.Header{"Accept": {"application/json"}}

	// The whole repository path is a single URL-encoded segment
	encodedPath := url.PathEscape(strings.TrimPrefix(repoPath, "/") + fileName)
	metaURL := fmt.Sprintf("%s/api/%s/projects/%s/repository/files/%s?%s",
		p.host, p.api, p.projectID, encodedPath, p.query())

	body, err := plugin.Get(ctx, p.client, p.cred, metaURL, header)
	if err != nil {
		return nil, err
	}

	var meta struct {
		BlobID string `json:"blob_id"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errors.Errorf("decoding file metadata from %s: %w", metaURL, err)
	}
	if meta.BlobID == "" {
		return nil, errors.Errorf("file metadata from %s has no blob_id", metaURL)
	}

	rawURL := fmt.Sprintf("%s/api/%s/projects/%s/repository/blobs/%s/raw",
		p.host, p.api, p.projectID, meta.BlobID)
	return plugin.Get(ctx, p.client, p.cred, rawURL, header)
}
