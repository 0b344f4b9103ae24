// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package github is the provider plugin for GitHub and GitHub Enterprise.
package github

import (
	"context"
	"fmt"
	"strings"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/walteh/srcsrv/pkg/auth"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
	"gitlab.com/tozd/go/errors"
)

// AuthVar is the default credential environment variable
const AuthVar = "SRCSRV_GITHUB_AUTH"

func init() {
	plugin.Register("github", New)
}

// 🎯 Plugin fetches repository contents through the GitHub REST API
type Plugin struct {
	opts    plugin.Options
	account string
	repo    string
	client  *gogithub.Client
}

// 🏭 New parses the provider flags on top of the common options
func New(ctx context.Context, opts plugin.Options, args []string) (plugin.Plugin, error) {
	fs := plugin.NewFlagSet("github")
	account := fs.String("account", "%SRCSRV_USERNAME%", "repository account")
	repo := fs.String("repo", "", "repository name")
	if err := fs.Parse(args); err != nil {
		return nil, &plugin.ConfigError{Plugin: "github", Reason: err.Error()}
	}
	if *repo == "" {
		return nil, &plugin.ConfigError{Plugin: "github", Reason: "--repo is required"}
	}

	cred, err := auth.Resolve(opts.AuthVarOr(AuthVar))
	if err != nil {
		return nil, err
	}

	hc := plugin.HTTPClient(opts)
	hc.Transport = auth.Transport(cred, hc.Transport)
	client := gogithub.NewClient(hc)
	if opts.URI != "" && !strings.EqualFold(opts.URI, "github.com") {
		base := "https://api." + opts.URI + "/"
		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, errors.Errorf("configuring enterprise endpoint %s: %w", base, err)
		}
	}

	return &Plugin{
		opts:    opts,
		account: *account,
		repo:    *repo,
		client:  client,
	}, nil
}

func (p *Plugin) Name() string {
	return "github"
}

// 📝 Header emits the self-describing variables block
func (p *Plugin) Header(doc *stream.Document) error {
	doc.SetVar(stream.VarCommand, plugin.Command(p.opts.Exe,
		"GH_PLUGIN", "GH_URI", "GH_ACCT", "GH_REPO", "GH_COMMIT", "GH_VERIFY"))
	doc.SetVar("GH_BASE", p.opts.BuildBase)
	doc.SetVar("GH_PLUGIN", "--plugin=github")
	doc.SetVar("GH_URI", "--uri="+p.opts.URI)
	doc.SetVar("GH_COMMIT", "--commit="+p.opts.Commit)
	doc.SetVar("GH_VERIFY", "--verify="+p.opts.VerifyToken())
	doc.SetVar("GH_ACCT", "--account="+p.account)
	doc.SetVar("GH_REPO", "--repo="+p.repo)
	return nil
}

// 📄 Fetch retrieves one file's content at the recorded commit
func (p *Plugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	path := strings.TrimPrefix(repoPath, "/") + fileName
	url := fmt.Sprintf("%srepos/%s/%s/contents/%s?ref=%s",
		p.client.BaseURL, p.account, p.repo, path, p.opts.Commit)

	content, _, resp, err := p.client.Repositories.GetContents(ctx, p.account, p.repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: p.opts.Commit})
	if err != nil {
		if resp != nil {
			return nil, plugin.StatusError(url, resp.StatusCode)
		}
		return nil, plugin.TransportError(url, err)
	}
	if content == nil {
		// GetContents resolves directories too; a directory is not a source file
		return nil, &plugin.FetchError{Kind: plugin.NotFound, URL: url}
	}

	data, err := content.GetContent()
	if err != nil {
		return nil, errors.Errorf("decoding content of %s: %w", url, err)
	}
	return []byte(data), nil
}
