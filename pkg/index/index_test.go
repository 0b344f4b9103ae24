package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/srcsrv/pkg/stream"
	"gitlab.com/tozd/go/errors"
)

// fakePlugin emits a minimal self-describing header
type fakePlugin struct {
	headerErr error
}

func (p *fakePlugin) Name() string { return "fake" }

func (p *fakePlugin) Header(doc *stream.Document) error {
	if p.headerErr != nil {
		return p.headerErr
	}
	doc.SetVar(stream.VarCommand, "srcsrv.exe fetch %FK_PLUGIN% --target=%SRCSRVTRG% --path=%var2% --file=%var3% --digest=%var4%")
	doc.SetVar("FK_PLUGIN", "--plugin=fake")
	return nil
}

func (p *fakePlugin) Fetch(ctx context.Context, repoPath, fileName, digest string) ([]byte, error) {
	return nil, nil
}

// fakeStore serves canned source lists and records written streams
type fakeStore struct {
	mu      sync.Mutex
	refs    map[string][]SourceRef
	listErr map[string]error
	written map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		refs:    make(map[string][]SourceRef),
		listErr: make(map[string]error),
		written: make(map[string]string),
	}
}

func (s *fakeStore) ListSources(ctx context.Context, target string) ([]SourceRef, error) {
	if err := s.listErr[target]; err != nil {
		return nil, err
	}
	return s.refs[target], nil
}

func (s *fakeStore) WriteStream(ctx context.Context, target string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written[target] = text
	return nil
}

func newTestIndexer(t *testing.T, opts Options, store SymbolStore) *Indexer {
	t.Helper()
	if opts.BuildBase == "" {
		opts.BuildBase = "/build/"
	}
	if opts.CacheDir == "" {
		opts.CacheDir = "/cache"
	}
	ix, err := New(opts, &fakePlugin{}, store)
	require.NoError(t, err)
	return ix
}

func TestNew(t *testing.T) {
	store := newFakeStore()

	t.Run("build_base_required", func(t *testing.T) {
		_, err := New(Options{CacheDir: "/cache"}, &fakePlugin{}, store)
		require.Error(t, err)
	})

	t.Run("cache_dir_required", func(t *testing.T) {
		_, err := New(Options{BuildBase: "/build/"}, &fakePlugin{}, store)
		require.Error(t, err)
	})

	t.Run("extension_normalization", func(t *testing.T) {
		ix, err := New(Options{
			BuildBase:  "/build/",
			CacheDir:   "/cache",
			Extensions: []string{".CPP", " h "},
		}, &fakePlugin{}, store)
		require.NoError(t, err)
		assert.Equal(t, "**/*.{cpp,h}", ix.pattern)
	})
}

func TestIndexTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("builds_rows_and_embeds", func(t *testing.T) {
		store := newFakeStore()
		store.refs["app.pdb"] = []SourceRef{
			{BuildPath: "/build/src/test.cpp", Algo: "MD5", Checksum: "AABBCC00AABBCC00AABBCC00AABBCC00"},
			{BuildPath: "/build/include/test.hpp", Algo: "SHA256", Checksum: strings.Repeat("AB", 32)},
			{BuildPath: "/usr/include/stdio.h"},      // outside the build base
			{BuildPath: "/build/res/strings.txt"},    // extension not accepted
		}
		ix := newTestIndexer(t, Options{}, store)

		res, err := ix.IndexTarget(ctx, "app.pdb")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Sources)

		doc, err := stream.Parse(res.Stream)
		require.NoError(t, err)
		require.Len(t, doc.Files, 2)
		assert.Equal(t, stream.Entry{
			BuildPath: "/build/src/test.cpp",
			RepoPath:  "/src/",
			FileName:  "test.cpp",
			Digest:    "AABBCC00AABBCC00AABBCC00AABBCC00",
		}, doc.Files[0])

		trg, ok := doc.Var(stream.VarTarget)
		require.True(t, ok)
		assert.Equal(t, "/cache/.srcsrv/%var4%/%var3%", trg)

		assert.Equal(t, res.Stream, store.written["app.pdb"])
	})

	t.Run("target_template_resolves_per_row", func(t *testing.T) {
		store := newFakeStore()
		store.refs["app.pdb"] = []SourceRef{
			{BuildPath: "/build/src/test.cpp", Checksum: "ABC123"},
		}
		ix := newTestIndexer(t, Options{}, store)

		res, err := ix.IndexTarget(ctx, "app.pdb")
		require.NoError(t, err)

		doc, err := stream.Parse(res.Stream)
		require.NoError(t, err)
		trg, err := doc.Expand(stream.VarTarget, &doc.Files[0])
		require.NoError(t, err)
		assert.Equal(t, "/cache/.srcsrv/ABC123/test.cpp", trg)
	})

	t.Run("digest_fallback_hashes_content", func(t *testing.T) {
		base := t.TempDir()
		src := filepath.Join(base, "main.cpp")
		require.NoError(t, os.WriteFile(src, []byte("int main() {}\n"), 0o644))

		store := newFakeStore()
		store.refs["app.pdb"] = []SourceRef{{BuildPath: src}}
		ix := newTestIndexer(t, Options{BuildBase: base + "/"}, store)

		res, err := ix.IndexTarget(ctx, "app.pdb")
		require.NoError(t, err)

		doc, err := stream.Parse(res.Stream)
		require.NoError(t, err)
		require.Len(t, doc.Files, 1)
		assert.Len(t, doc.Files[0].Digest, 32, "fallback digest is MD5 hex")
		assert.Equal(t, strings.ToUpper(doc.Files[0].Digest), doc.Files[0].Digest)
	})

	t.Run("no_matching_sources_fails_scan", func(t *testing.T) {
		store := newFakeStore()
		store.refs["app.pdb"] = []SourceRef{{BuildPath: "/elsewhere/test.cpp"}}
		ix := newTestIndexer(t, Options{}, store)

		_, err := ix.IndexTarget(ctx, "app.pdb")
		var terr *TargetError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "scan", terr.Stage)
	})

	t.Run("list_failure_names_stage", func(t *testing.T) {
		store := newFakeStore()
		store.listErr["app.pdb"] = errors.New("no source lines")
		ix := newTestIndexer(t, Options{}, store)

		_, err := ix.IndexTarget(ctx, "app.pdb")
		var terr *TargetError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "list", terr.Stage)
		assert.Equal(t, "app.pdb", terr.Target)
	})

	t.Run("dry_run_skips_embedding", func(t *testing.T) {
		store := newFakeStore()
		store.refs["app.pdb"] = []SourceRef{{BuildPath: "/build/src/test.cpp", Checksum: "ABC123"}}
		ix := newTestIndexer(t, Options{DryRun: true}, store)

		res, err := ix.IndexTarget(ctx, "app.pdb")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Stream)
		assert.Empty(t, store.written)
	})

	t.Run("keep_writes_side_file", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "app.pdb")

		store := newFakeStore()
		store.refs[target] = []SourceRef{{BuildPath: "/build/src/test.cpp", Checksum: "ABC123"}}
		ix := newTestIndexer(t, Options{Keep: true}, store)

		res, err := ix.IndexTarget(ctx, target)
		require.NoError(t, err)

		side, err := os.ReadFile(filepath.Join(dir, "app.ini"))
		require.NoError(t, err)
		assert.Equal(t, res.Stream, string(side))
	})
}

func TestIndexAll(t *testing.T) {
	ctx := context.Background()

	store := newFakeStore()
	store.refs["a.pdb"] = []SourceRef{{BuildPath: "/build/a.cpp", Checksum: "A1"}}
	store.refs["b.pdb"] = []SourceRef{{BuildPath: "/build/b.cpp", Checksum: "B1"}}
	store.listErr["bad.pdb"] = errors.New("corrupted symbol file")
	ix := newTestIndexer(t, Options{Concurrency: 2}, store)

	batch := ix.IndexAll(ctx, []string{"a.pdb", "bad.pdb", "b.pdb"})

	assert.Equal(t, 2, batch.Processed, "one corrupted target must not sink the rest")
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, "bad.pdb", batch.Errors[0].Target)
	assert.Len(t, store.written, 2)
}

func TestStripBase(t *testing.T) {
	tests := []struct {
		name      string
		buildPath string
		base      string
		want      string
		ok        bool
	}{
		{name: "under_base", buildPath: "/build/src/test.cpp", base: "/build/", want: "src/test.cpp", ok: true},
		{name: "case_insensitive", buildPath: "/Build/src/test.cpp", base: "/build/", want: "src/test.cpp", ok: true},
		{name: "outside_base", buildPath: "/other/test.cpp", base: "/build/", ok: false},
		{name: "base_itself", buildPath: "/build", base: "/build/", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stripBase(tt.buildPath, tt.base)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDiscoverTargets(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	for _, name := range []string{"app.pdb", "nested/lib.PDB", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	t.Run("walks_directories", func(t *testing.T) {
		targets, err := DiscoverTargets(context.Background(), []string{dir})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "app.pdb"),
			filepath.Join(sub, "lib.PDB"),
		}, targets)
	})

	t.Run("file_taken_as_is", func(t *testing.T) {
		targets, err := DiscoverTargets(context.Background(), []string{filepath.Join(dir, "app.pdb")})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "app.pdb")}, targets)
	})

	t.Run("missing_path_skipped", func(t *testing.T) {
		targets, err := DiscoverTargets(context.Background(), []string{filepath.Join(dir, "ghost")})
		require.NoError(t, err)
		assert.Empty(t, targets)
	})
}
