// Package bitbucket is the provider plugin for Bitbucket Cloud and Server.
package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/walteh/srcsrv/pkg/auth"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
)

// AuthVar is the default credential environment variable
const AuthVar = "SRCSRV_BITBUCKET_AUTH"

func init() {
	plugin.Register("bitbucket", New)
}

// 🎯 Plugin fetches raw file content through the Bitbucket REST API.
// API version 1.0 addresses files through the server-style raw endpoint,
// anything else through the cloud src endpoint.
type Plugin struct {
	opts       plugin.Options
	api        string
	projectKey string
	repoSlug   string
	cred       auth.Credential
	client     *http.Client

	// endpoint hosts, split so tests can point them at a local server
	host    string // server-style, https://{uri}
	apiHost string // cloud-style, https://api.{uri}
}

// 🏭 New parses the provider flags on top of the common options
func New(ctx context.Context, opts plugin.Options, args []string) (plugin.Plugin, error) {
	fs := plugin.NewFlagSet("bitbucket")
	api := fs.String("api", "2.0", "REST API version")
	projectKey := fs.String("project-key", "", "project key name")
	repoSlug := fs.String("repo-slug", "", "repository slug name")
	if err := fs.Parse(args); err != nil {
		return nil, &plugin.ConfigError{Plugin: "bitbucket", Reason: err.Error()}
	}
	if *projectKey == "" {
		return nil, &plugin.ConfigError{Plugin: "bitbucket", Reason: "--project-key is required"}
	}
	if *repoSlug == "" {
		return nil, &plugin.ConfigError{Plugin: "bitbucket", Reason: "--repo-slug is required"}
	}
	// A non-numeric version falls back to the current API
	if _, err := strconv.ParseFloat(*api, 64); err != nil {
		*api = "2.0"
	}

	cred, err := auth.Resolve(opts.AuthVarOr(AuthVar))
	if err != nil {
		return nil, err
	}

	return &Plugin{
		opts:       opts,
		api:        *api,
		projectKey: *projectKey,
		repoSlug:   *repoSlug,
		cred:       cred,
		client:     plugin.HTTPClient(opts),
		host:       "https://" + opts.URI,
		apiHost:    "https://api." + opts.URI,
	}, nil
}

func (p *Plugin) Name() string {
	return "bitbucket"
}

// 📝 Header emits the self-describing variables block
func (p *Plugin) Header(doc *stream.Document) error {
	doc.SetVar(stream.VarCommand, plugin.Command(p.opts.Exe,
		"BB_PLUGIN", "BB_URI", "BB_API", "BB_PROJECT", "BB_REPO_SLUG", "BB_COMMIT", "BB_VERIFY"))
	doc.SetVar("BB_BASE", p.opts.BuildBase)
	doc.SetVar("BB_PLUGIN", "--plugin=bitbucket")
	doc.SetVar("BB_URI", "--uri="+p.opts.URI)
	doc.SetVar("BB_COMMIT", "--commit="+p.opts.Commit)
	doc.SetVar("BB_VERIFY", "--verify="+p.opts.VerifyToken())
	doc.SetVar("BB_API", "--api="+p.api)
	doc.SetVar("BB_PROJECT", "--project-key="+p.projectKey)
	doc.SetVar("BB_REPO_SLUG", "--repo-slug="+p.repoSlug)
	return nil
}

// fileURL addresses one file at the recorded commit
func (p *Plugin) fileURL(repoPath, fileName string) string {
	if p.api == "1.0" {
		return fmt.Sprintf("%s/rest/api/1.0/projects/%s/repos/%s/raw%s%s?at=%s",
			p.host, p.projectKey, p.repoSlug, repoPath, fileName, url.QueryEscape(p.opts.Commit))
	}
	return fmt.Sprintf("%s/%s/repositories/%s/%s/src/%s%s%s",
		p.apiHost, p.api, p.projectKey, p.repoSlug, p.opts.Commit, repoPath, fileName)
}

// 📄 Fetch retrieves one file's content at the recorded commit
func (p *Plugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	// Content type of the response is derived from the repository file type
	return plugin.Get(ctx, p.client, p.cred, p.fileURL(repoPath, fileName), nil)
}
