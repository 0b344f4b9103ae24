package main

import (
	"github.com/spf13/cobra"
	"github.com/walteh/srcsrv/cmd/srcsrv/commands"

	// built-in providers register themselves
	_ "github.com/walteh/srcsrv/pkg/plugin/bitbucket"
	_ "github.com/walteh/srcsrv/pkg/plugin/codebase"
	_ "github.com/walteh/srcsrv/pkg/plugin/github"
	_ "github.com/walteh/srcsrv/pkg/plugin/gitlab"
)

// NewRootCmd builds the srcsrv command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "srcsrv",
		Short:         "Source-server indexing for debug-symbol files",
		Long:          "srcsrv embeds a source-retrieval script into debug-symbol files at build time\nand fetches exact source revisions back when a debugger asks for them.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(commands.NewIndexCmd())
	root.AddCommand(commands.NewFetchCmd())
	return root
}
