package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/walteh/srcsrv/pkg/config"
	"github.com/walteh/srcsrv/pkg/index"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/status"
	"gitlab.com/tozd/go/errors"
)

const defaultSrcsrvDir = `C:\Program Files (x86)\Windows Kits\10\Debuggers\x64\srcsrv`

// NewIndexCmd creates the index command
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed source-retrieval streams into symbol files",
		Long: `Index walks the source files each symbol file references, records their
repository coordinates and content digests, and embeds a retrieval script
the debugger executes on demand. Provider-specific flags (for example
--account and --repo for github) are parsed by the selected plugin.`,
		// Flags are parsed manually so provider-specific flags can ride
		// in the same argument vector.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), args)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, args []string) error {
	fs := newFlagSet("index")
	common := addCommonFlags(fs)
	buildBase := fs.String("build-base", "", "build directory path")
	extensions := fs.String("extensions", "cpp;hpp;c;h", "semicolon-separated source extensions")
	targets := fs.StringSlice("targets", []string{"."}, "paths to symbol files or directories")
	srcsrvDir := fs.String("srcsrv-dir", defaultSrcsrvDir, "directory holding srctool and pdbstr")
	dryRun := fs.Bool("dry-run", false, "render streams without modifying symbol files")
	keep := fs.Bool("keep", false, "keep the rendered stream beside each target")
	force := fs.Bool("force", false, "index targets that already carry a source stream")
	summaryPath := fs.String("summary", "", "path to a JSON run summary")
	configFile := fs.String("config", "", "run-option file (.hcl/.yaml/.json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cleanup, err := setupContext(ctx, common)
	if err != nil {
		return err
	}
	defer cleanup()

	pluginArgs := args
	if *configFile != "" {
		cfg, err := config.Load(ctx, *configFile)
		if err != nil {
			return err
		}
		applyIndexConfig(fs, common, cfg, buildBase, extensions, targets, srcsrvDir, dryRun, keep, summaryPath)
		pluginArgs = append(cfg.PluginArgs, args...)
	}

	opts, err := common.options()
	if err != nil {
		return err
	}
	if *buildBase == "" {
		return errors.New("--build-base is required for indexing")
	}
	if opts.Commit == "" {
		return errors.New("--commit is required for indexing")
	}
	if opts.CacheDir == "" {
		return errors.New("--cache is required for indexing")
	}
	opts.BuildBase = normalizeBase(*buildBase)

	p, err := plugin.New(ctx, common.plugin, opts, pluginArgs)
	if err != nil {
		return err
	}

	store := &index.SrcToolStore{Dir: *srcsrvDir, Match: opts.BuildBase}
	ix, err := index.New(index.Options{
		BuildBase:  opts.BuildBase,
		Extensions: strings.Split(*extensions, ";"),
		CacheDir:   opts.CacheDir,
		DryRun:     *dryRun,
		Keep:       *keep,
	}, p, store)
	if err != nil {
		return err
	}

	found, err := index.DiscoverTargets(ctx, *targets)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return errors.Errorf("no symbol files found under %s", strings.Join(*targets, ", "))
	}

	// Embedding appends a second stream to an already-indexed target, so
	// already-indexed targets are skipped unless forced.
	if !*force && !*dryRun {
		kept := found[:0]
		for _, target := range found {
			if store.HasStream(ctx, target) {
				status.Warn(target + " already carries a source stream, skipping (--force to append)")
				continue
			}
			kept = append(kept, target)
		}
		found = kept
		if len(found) == 0 {
			status.Warn("all targets already indexed")
			return nil
		}
	}

	status.Header("indexing " + strings.Join(*targets, ", "))
	batch := ix.IndexAll(ctx, found)
	for _, res := range batch.Results {
		status.TargetIndexed(res)
	}
	for _, terr := range batch.Errors {
		status.TargetFailed(terr)
	}
	status.BatchSummary(batch)

	if *summaryPath != "" {
		if err := index.WriteSummary(*summaryPath, batch, p.Name(), opts.BuildBase); err != nil {
			return err
		}
	}

	if batch.Failed > 0 {
		return errors.Errorf("%d of %d targets failed", batch.Failed, batch.Failed+batch.Processed)
	}
	return nil
}

// applyIndexConfig fills in file-provided values for flags not set on the
// command line. Explicit flags always win.
func applyIndexConfig(fs interface{ Changed(string) bool }, common *commonFlags, cfg *config.Config,
	buildBase, extensions *string, targets *[]string, srcsrvDir *string, dryRun, keep *bool, summaryPath *string) {

	set := func(name string, dst *string, val string) {
		if !fs.Changed(name) && val != "" {
			*dst = val
		}
	}
	set("plugin", &common.plugin, cfg.Plugin)
	set("uri", &common.uri, cfg.URI)
	set("commit", &common.commit, cfg.Commit)
	set("verify", &common.verify, cfg.Verify)
	set("cache", &common.cache, cfg.Cache)
	set("exe", &common.exe, cfg.Exe)
	set("auth-var", &common.authVar, cfg.AuthVar)
	set("build-base", buildBase, cfg.BuildBase)
	set("extensions", extensions, cfg.Extensions)
	set("srcsrv-dir", srcsrvDir, cfg.SrcsrvDir)
	set("summary", summaryPath, cfg.Summary)

	if !fs.Changed("targets") && len(cfg.Targets) > 0 {
		*targets = cfg.Targets
	}
	if !fs.Changed("dry-run") && cfg.DryRun {
		*dryRun = true
	}
	if !fs.Changed("keep") && cfg.Keep {
		*keep = true
	}
	if !fs.Changed("timeout") && cfg.Timeout != "" {
		if d, err := cfg.ParseTimeout(); err == nil {
			common.timeout = d
		}
	}
}

// normalizeBase cleans the build base and guarantees a trailing separator,
// so stripping it from a build path leaves a repository-relative remainder.
func normalizeBase(base string) string {
	base = filepath.Clean(base)
	if !strings.HasSuffix(base, "/") && !strings.HasSuffix(base, `\`) {
		base += string(os.PathSeparator)
	}
	return base
}
