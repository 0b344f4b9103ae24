package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/walteh/srcsrv/pkg/fetch"
	"github.com/walteh/srcsrv/pkg/plugin"
	"gitlab.com/tozd/go/errors"
)

// NewFetchCmd creates the fetch command, the half the debugger invokes.
// Every argument is flag-shaped so the tokens rendered into SRCSRVCMD can
// arrive in any order.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Retrieve one source file into the local cache",
		Long: `Fetch reconstructs the provider plugin named by the embedded stream,
retrieves one file at the recorded commit and places it at the cache path
the stream promised. The cache path is printed on stdout.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), args)
		},
	}
	return cmd
}

func runFetch(ctx context.Context, args []string) error {
	fs := newFlagSet("fetch")
	common := addCommonFlags(fs)
	target := fs.String("target", "", "resolved cache target path (SRCSRVTRG)")
	repoPath := fs.String("path", "", "repository-relative directory of the file")
	fileName := fs.String("file", "", "file name")
	digest := fs.String("digest", "", "content digest recorded at index time")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cleanup, err := setupContext(ctx, common)
	if err != nil {
		return err
	}
	defer cleanup()

	for name, val := range map[string]string{
		"--target": *target,
		"--path":   *repoPath,
		"--file":   *fileName,
		"--digest": *digest,
	} {
		if val == "" {
			return errors.Errorf("%s is required for fetching", name)
		}
	}

	cacheRoot, err := fetch.CacheRoot(*target)
	if err != nil {
		return err
	}

	opts, err := common.options()
	if err != nil {
		return err
	}
	opts.CacheDir = cacheRoot

	p, err := plugin.New(ctx, common.plugin, opts, args)
	if err != nil {
		return err
	}

	engine, err := fetch.New(fetch.Options{CacheDir: cacheRoot, Commit: opts.Commit})
	if err != nil {
		return err
	}

	entry, err := engine.Fetch(ctx, p, *repoPath, *fileName, *digest)
	if err != nil {
		return err
	}

	// stdout carries only the cache path, for the debugger
	fmt.Println(entry.Path)
	return nil
}
