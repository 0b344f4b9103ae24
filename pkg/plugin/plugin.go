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

// Package plugin defines the capability set a source-control provider
// implements to take part in both indexing and fetching, plus the registry
// the engines use to stay provider-agnostic.
package plugin

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/walteh/srcsrv/pkg/stream"
)

// 🔌 Plugin is the capability set every provider variant implements.
//
// Header must embed enough information in the document's variables that a
// fresh process, given only the rendered command line for one file, can
// reconstruct an equivalent plugin without the original stream document.
type Plugin interface {
	// Name returns the registry identity, e.g. "github"
	Name() string

	// Header emits the provider's variables block into the document,
	// including SRCSRVCMD
	Header(doc *stream.Document) error

	// Fetch retrieves raw file content for the commit recorded at index
	// time. The digest is the value recorded in the table row; providers
	// address files by path and commit and may ignore it.
	Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error)
}

// 🔧 Options are the common arguments shared by every provider
type Options struct {
	// URI is the repository server, host only ("github.com")
	URI string
	// Commit is the revision recorded at index time
	Commit string
	// BuildBase is the compiler's view of the source root
	BuildBase string
	// CacheDir is the local cache root
	CacheDir string
	// Exe is the executable name embedded into SRCSRVCMD
	Exe string
	// AuthVar overrides the provider's default credential variable
	AuthVar string
	// Verify is the certificate-verification policy: nil means unspecified
	Verify *bool
	// Timeout bounds every network call
	Timeout time.Duration
}

// DefaultTimeout bounds provider calls when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// VerifyToken renders the tri-state verify policy as a flag value
func (o Options) VerifyToken() string {
	if o.Verify == nil {
		return ""
	}
	if *o.Verify {
		return "true"
	}
	return "false"
}

// TLSVerify reports whether server certificates are checked. Unspecified
// means verify.
func (o Options) TLSVerify() bool {
	return o.Verify == nil || *o.Verify
}

// 🏭 Factory constructs a provider from the common options plus its own
// flag-shaped arguments. Factories parse args with their own flag set and
// ignore flags they do not recognize; the common and provider parsers share
// one token list, the way the rendered command line delivers it.
type Factory func(ctx context.Context, opts Options, args []string) (Plugin, error)

var registry = make(map[string]Factory)

// 📝 Register adds a provider factory under its identity string.
// User-defined providers register the same way as the built-ins.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// 🎯 New reconstructs the named provider
func New(ctx context.Context, name string, opts Options, args []string) (Plugin, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, &ConfigError{Plugin: name, Reason: "unknown plugin, registered: " + strings.Join(Names(), ", ")}
	}
	return factory(ctx, opts, args)
}

// Names lists the registered provider identities, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFlagSet returns a flag set suitable for a provider factory: unknown
// flags are skipped rather than rejected, since the token list also carries
// the common arguments.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	return fs
}

// Command renders the SRCSRVCMD template for a provider: the executable,
// the fetch action, the provider's variable references, and the positional
// table columns for one file. Every token is flag-shaped so the fetch half
// can parse them in any order.
func Command(exe string, refs ...string) string {
	var b strings.Builder
	b.WriteString(exe)
	b.WriteString(" fetch")
	for _, ref := range refs {
		b.WriteString(" %")
		b.WriteString(ref)
		b.WriteString("%")
	}
	b.WriteString(" --target=%" + stream.VarTarget + "% --path=%var2% --file=%var3% --digest=%var4%")
	return b.String()
}

// AuthVarOr picks the credential variable: the common override or the
// provider's default.
func (o Options) AuthVarOr(def string) string {
	if o.AuthVar != "" {
		return o.AuthVar
	}
	return def
}
