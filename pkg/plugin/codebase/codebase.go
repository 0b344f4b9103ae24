// Package codebase is the provider plugin for CodebaseHQ.
package codebase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/walteh/srcsrv/pkg/auth"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
)

// AuthVar is the default credential environment variable
const AuthVar = "SRCSRV_CODEBASE_AUTH"

func init() {
	plugin.Register("codebase", New)
}

// 🎯 Plugin fetches file content through the Codebase REST API
type Plugin struct {
	opts          plugin.Options
	api           string
	domain        string
	account       string
	projPermalink string
	repoPermalink string
	cred          auth.Credential
	client        *http.Client

	host string // https://{api}.{uri}, overridable in tests
}

// 🏭 New parses the provider flags on top of the common options
func New(ctx context.Context, opts plugin.Options, args []string) (plugin.Plugin, error) {
	fs := plugin.NewFlagSet("codebase")
	domain := fs.String("domain", "", "repository domain")
	account := fs.String("account", "%SRCSRV_USERNAME%", "repository account")
	projPermalink := fs.String("project-permalink", "", "project permalink")
	repoPermalink := fs.String("repo-permalink", "", "repository permalink")
	api := fs.String("api", "api3", "REST API version")
	if err := fs.Parse(args); err != nil {
		return nil, &plugin.ConfigError{Plugin: "codebase", Reason: err.Error()}
	}
	if *domain == "" {
		return nil, &plugin.ConfigError{Plugin: "codebase", Reason: "--domain is required"}
	}
	if *projPermalink == "" {
		return nil, &plugin.ConfigError{Plugin: "codebase", Reason: "--project-permalink is required"}
	}
	if *repoPermalink == "" {
		return nil, &plugin.ConfigError{Plugin: "codebase", Reason: "--repo-permalink is required"}
	}

	cred, err := auth.Resolve(opts.AuthVarOr(AuthVar))
	if err != nil {
		return nil, err
	}

	return &Plugin{
		opts:          opts,
		api:           *api,
		domain:        *domain,
		account:       *account,
		projPermalink: *projPermalink,
		repoPermalink: *repoPermalink,
		cred:          cred,
		client:        plugin.HTTPClient(opts),
		host:          "https://" + *api + "." + opts.URI,
	}, nil
}

func (p *Plugin) Name() string {
	return "codebase"
}

// 📝 Header emits the self-describing variables block
func (p *Plugin) Header(doc *stream.Document) error {
	doc.SetVar(stream.VarCommand, plugin.Command(p.opts.Exe,
		"CB_PLUGIN", "CB_URI", "CB_API", "CB_DOMAIN", "CB_ACCOUNT", "CB_PROJECT", "CB_REPO", "CB_COMMIT", "CB_VERIFY"))
	doc.SetVar("CB_BASE", p.opts.BuildBase)
	doc.SetVar("CB_PLUGIN", "--plugin=codebase")
	doc.SetVar("CB_URI", "--uri="+p.opts.URI)
	doc.SetVar("CB_COMMIT", "--commit="+p.opts.Commit)
	doc.SetVar("CB_VERIFY", "--verify="+p.opts.VerifyToken())
	doc.SetVar("CB_DOMAIN", "--domain="+p.domain)
	doc.SetVar("CB_ACCOUNT", "--account="+p.account)
	doc.SetVar("CB_PROJECT", "--project-permalink="+p.projPermalink)
	doc.SetVar("CB_REPO", "--repo-permalink="+p.repoPermalink)
	doc.SetVar("CB_API", "--api="+p.api)
	return nil
}

// 📄 Fetch retrieves one file's content at the recorded commit
func (p *Plugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	header := http.Header{
		"Accept":       {"application/json"},
		"Content-Type": {"application/json"},
	}
	fileURL := fmt.Sprintf("%s/%s/%s/blob/%s%s%s",
		p.host, p.projPermalink, p.repoPermalink, p.opts.Commit, repoPath, fileName)
	return plugin.Get(ctx, p.client, p.cred, fileURL, header)
}
