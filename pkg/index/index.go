// Package index walks the source files a symbol file references, records
// their repository coordinates and content digests, and assembles the
// stream handed to the embedding collaborator.
package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/srcsrv/pkg/fetch"
	"github.com/walteh/srcsrv/pkg/plugin"
	"github.com/walteh/srcsrv/pkg/stream"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// TargetError reports a per-target indexing failure, naming the target and
// the stage that failed.
type TargetError struct {
	Target string
	Stage  string // list, scan, header, render, keep, embed
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("indexing %s: %s stage: %v", e.Target, e.Stage, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// 🔧 Options configures the indexer
type Options struct {
	// BuildBase is the compiler's source root, with trailing separator
	BuildBase string
	// Extensions is the accepted source extension set, e.g. cpp;hpp;c;h
	Extensions []string
	// CacheDir is the cache location embedded into SRCSRVTRG
	CacheDir string
	// DryRun renders without handing the stream to the symbol store
	DryRun bool
	// Keep persists the rendered stream beside the target for inspection
	Keep bool
	// Concurrency bounds parallel target processing, 0 means NumCPU
	Concurrency int
}

// 🎯 Indexer builds one stream document per symbol-file target
type Indexer struct {
	opts    Options
	plugin  plugin.Plugin
	store   SymbolStore
	pattern string
}

// 🏭 New creates an indexer
func New(opts Options, p plugin.Plugin, store SymbolStore) (*Indexer, error) {
	if opts.BuildBase == "" {
		return nil, &plugin.ConfigError{Plugin: p.Name(), Reason: "build base is required"}
	}
	if opts.CacheDir == "" {
		return nil, &plugin.ConfigError{Plugin: p.Name(), Reason: "cache directory is required"}
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{"cpp", "hpp", "c", "h"}
	}
	for i, ext := range opts.Extensions {
		opts.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}
	return &Indexer{
		opts:    opts,
		plugin:  p,
		store:   store,
		pattern: extensionPattern(opts.Extensions),
	}, nil
}

func extensionPattern(exts []string) string {
	if len(exts) == 1 {
		return "**/*." + exts[0]
	}
	return "**/*.{" + strings.Join(exts, ",") + "}"
}

// 📊 Result is a successful single-target outcome
type Result struct {
	Target   string
	Sources  int
	Stream   string
	Duration time.Duration
}

// cacheTemplate is the SRCSRVTRG value: cache root, fixed cache component,
// digest directory, file name. Forward slashes regardless of platform; the
// debugger normalizes.
func (ix *Indexer) cacheTemplate() string {
	root := strings.TrimRight(filepath.ToSlash(ix.opts.CacheDir), "/")
	return root + "/" + fetch.CacheDirName + "/%var4%/%var3%"
}

// IndexTarget processes one symbol-file target into a rendered stream and,
// unless dry-running, hands it to the symbol store. The store appends a new
// stream on re-index rather than replacing; checking prior state is the
// caller's job.
func (ix *Indexer) IndexTarget(ctx context.Context, target string) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	refs, err := ix.store.ListSources(ctx, target)
	if err != nil {
		return nil, &TargetError{Target: target, Stage: "list", Err: err}
	}

	doc := stream.New()
	doc.SetVar(stream.VarTarget, ix.cacheTemplate())
	if err := ix.plugin.Header(doc); err != nil {
		return nil, &TargetError{Target: target, Stage: "header", Err: err}
	}

	for _, ref := range refs {
		entry, ok, err := ix.entryFor(ref)
		if err != nil {
			return nil, &TargetError{Target: target, Stage: "scan", Err: err}
		}
		if !ok {
			logger.Debug().Str("path", ref.BuildPath).Msg("source outside build base or extension set")
			continue
		}
		doc.AddFile(entry)
	}
	if len(doc.Files) == 0 {
		return nil, &TargetError{Target: target, Stage: "scan", Err: errors.Errorf("no source files matched under %s", ix.opts.BuildBase)}
	}

	text, err := doc.Render()
	if err != nil {
		return nil, &TargetError{Target: target, Stage: "render", Err: err}
	}

	if ix.opts.Keep {
		side := strings.TrimSuffix(target, filepath.Ext(target)) + ".ini"
		if err := os.WriteFile(side, []byte(text), 0o644); err != nil {
			return nil, &TargetError{Target: target, Stage: "keep", Err: err}
		}
	}

	if !ix.opts.DryRun {
		if err := ix.store.WriteStream(ctx, target, text); err != nil {
			return nil, &TargetError{Target: target, Stage: "embed", Err: err}
		}
	}

	res := &Result{
		Target:   target,
		Sources:  len(doc.Files),
		Stream:   text,
		Duration: time.Since(start),
	}
	logger.Info().Str("target", target).Int("sources", res.Sources).Dur("took", res.Duration).Msg("indexed")
	return res, nil
}

// entryFor turns a symbol-store reference into a table row: the
// repository-relative path from stripping the build base, the checksum the
// symbol file recorded, or an MD5 of the on-disk content when it did not.
func (ix *Indexer) entryFor(ref SourceRef) (stream.Entry, bool, error) {
	rel, ok := stripBase(ref.BuildPath, ix.opts.BuildBase)
	if !ok {
		return stream.Entry{}, false, nil
	}

	matched, err := doublestar.Match(ix.pattern, strings.ToLower(rel))
	if err != nil {
		return stream.Entry{}, false, err
	}
	if !matched {
		return stream.Entry{}, false, nil
	}

	digest := ref.Checksum
	if digest == "" {
		digest, err = fileDigest(ref.BuildPath)
		if err != nil {
			return stream.Entry{}, false, err
		}
	}

	dir := path.Dir("/" + rel)
	if dir != "/" {
		dir += "/"
	}
	return stream.Entry{
		BuildPath: ref.BuildPath,
		RepoPath:  dir,
		FileName:  path.Base(rel),
		Digest:    digest,
	}, true, nil
}

// stripBase removes the build base prefix, case-insensitively, and
// normalizes to forward slashes.
func stripBase(buildPath, base string) (string, bool) {
	p := filepath.ToSlash(buildPath)
	b := strings.TrimRight(filepath.ToSlash(base), "/") + "/"
	if len(p) <= len(b) || !strings.EqualFold(p[:len(b)], b) {
		return "", false
	}
	return p[len(b):], true
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// 📦 Batch aggregates the outcomes of indexing many targets
type Batch struct {
	Processed int
	Failed    int
	Results   []*Result
	Errors    []*TargetError
	Duration  time.Duration
}

// IndexAll indexes every target, isolating failures: one corrupted target
// reports its own error and the rest still complete.
func (ix *Indexer) IndexAll(ctx context.Context, targets []string) *Batch {
	start := time.Now()
	limit := ix.opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var mu sync.Mutex
	batch := &Batch{}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			res, err := ix.IndexTarget(ctx, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failed++
				var terr *TargetError
				if !errors.As(err, &terr) {
					terr = &TargetError{Target: target, Stage: "index", Err: err}
				}
				batch.Errors = append(batch.Errors, terr)
				return nil
			}
			batch.Processed++
			batch.Results = append(batch.Results, res)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors, outcomes are aggregated

	batch.Duration = time.Since(start)
	return batch
}

// DiscoverTargets expands the given paths into symbol-file targets: a .pdb
// file is taken as-is, a directory is walked for .pdb files. A missing
// path is skipped with an error entry left to the caller's batch.
func DiscoverTargets(ctx context.Context, paths []string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	var targets []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn().Str("path", p).Msg("target path not found, skipping")
			continue
		}
		if !info.IsDir() {
			if strings.EqualFold(filepath.Ext(p), ".pdb") {
				targets = append(targets, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdb") {
				targets = append(targets, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return targets, nil
}
