// Package config loads run-option files for the indexing and fetch halves.
// Options from a file sit under the command line: any flag given explicitly
// wins over the file value.
package config

import (
	"time"
)

// 📑 Config mirrors the invocation surface of both engines
type Config struct {
	// Plugin is the provider identity, e.g. "github"
	Plugin string `json:"plugin,omitempty" yaml:"plugin,omitempty" hcl:"plugin,optional"`
	// URI is the repository server, host only
	URI string `json:"uri,omitempty" yaml:"uri,omitempty" hcl:"uri,optional"`
	// Commit is the revision to record at index time
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty" hcl:"commit,optional"`
	// AuthVar overrides the provider's credential environment variable
	AuthVar string `json:"auth_var,omitempty" yaml:"auth_var,omitempty" hcl:"auth_var,optional"`
	// Verify is the certificate-verification policy: "", "true" or "false"
	Verify string `json:"verify,omitempty" yaml:"verify,omitempty" hcl:"verify,optional"`
	// Timeout bounds each provider call, e.g. "30s"
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" hcl:"timeout,optional"`

	// Indexing options
	BuildBase  string   `json:"build_base,omitempty" yaml:"build_base,omitempty" hcl:"build_base,optional"`
	Extensions string   `json:"extensions,omitempty" yaml:"extensions,omitempty" hcl:"extensions,optional"`
	Targets    []string `json:"targets,omitempty" yaml:"targets,omitempty" hcl:"targets,optional"`
	SrcsrvDir  string   `json:"srcsrv_dir,omitempty" yaml:"srcsrv_dir,omitempty" hcl:"srcsrv_dir,optional"`
	Cache      string   `json:"cache,omitempty" yaml:"cache,omitempty" hcl:"cache,optional"`
	Exe        string   `json:"exe,omitempty" yaml:"exe,omitempty" hcl:"exe,optional"`
	DryRun     bool     `json:"dry_run,omitempty" yaml:"dry_run,omitempty" hcl:"dry_run,optional"`
	Keep       bool     `json:"keep,omitempty" yaml:"keep,omitempty" hcl:"keep,optional"`
	Summary    string   `json:"summary,omitempty" yaml:"summary,omitempty" hcl:"summary,optional"`

	// PluginArgs are raw provider-specific flag tokens, e.g. "--repo=widget"
	PluginArgs []string `json:"plugin_args,omitempty" yaml:"plugin_args,omitempty" hcl:"plugin_args,optional"`
}

// ParseTimeout returns the configured timeout or zero when unset
func (c *Config) ParseTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Timeout)
}
