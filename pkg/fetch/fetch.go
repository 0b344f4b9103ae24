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

// Package fetch retrieves one source file through a provider plugin and
// places it in the local cache at the path the stream promised.
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/srcsrv/pkg/plugin"
	"gitlab.com/tozd/go/errors"
)

// CacheDirName is the fixed component separating the user-chosen cache
// location from the per-file subtree the stream addresses.
const CacheDirName = ".srcsrv"

// 💾 CacheEntry is the result of one fetch. It exists only as a return
// value plus the file on disk; there is no persisted index of entries.
type CacheEntry struct {
	Path     string
	RepoPath string
	Commit   string
	Digest   string
}

// 🔧 Options configures the engine
type Options struct {
	// CacheDir is the cache root (the directory named .srcsrv)
	CacheDir string
	// Commit is recorded on returned entries
	Commit string
}

// 🎯 Engine writes fetched files into the cache
type Engine struct {
	opts Options
}

// 🏭 New creates a fetch engine
func New(opts Options) (*Engine, error) {
	if opts.CacheDir == "" {
		return nil, errors.New("cache directory is required")
	}
	return &Engine{opts: opts}, nil
}

// CacheRoot derives the cache root from a fully resolved target path, the
// form the debugger passes back: everything up to and including the .srcsrv
// component.
func CacheRoot(target string) (string, error) {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(target)), "/")
	for i, part := range parts {
		if strings.EqualFold(part, CacheDirName) {
			return filepath.FromSlash(strings.Join(parts[:i+1], "/")), nil
		}
	}
	return "", errors.Errorf("target path %s has no %s component", target, CacheDirName)
}

// 📄 Fetch retrieves one file and returns its cache entry. Fetching an
// already-cached file is idempotent: the existing path is returned without
// a network call. Concurrent fetches of the same file are safe; the write
// goes through a temporary file and an atomic rename, so a partially
// written file is never visible to a reader.
func (e *Engine) Fetch(ctx context.Context, p plugin.Plugin, repoPath, fileName, digest string) (*CacheEntry, error) {
	logger := zerolog.Ctx(ctx)

	entry := &CacheEntry{
		Path:     filepath.Join(e.opts.CacheDir, digest, fileName),
		RepoPath: repoPath + fileName,
		Commit:   e.opts.Commit,
		Digest:   digest,
	}

	if _, err := os.Stat(entry.Path); err == nil {
		logger.Debug().Str("path", entry.Path).Msg("already cached")
		return entry, nil
	}

	data, err := p.Fetch(ctx, repoPath, fileName, digest)
	if err != nil {
		return nil, err
	}

	// Digest comparison is advisory: the row format does not tag the
	// algorithm, so a mismatch is reported, never fatal.
	if ok, algo := verifyDigest(data, digest); !ok && algo != "" {
		logger.Warn().
			Str("file", entry.RepoPath).
			Str("algorithm", algo).
			Str("expected", digest).
			Msg("content digest mismatch")
	}

	dir := filepath.Dir(entry.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Errorf("creating cache directory %s: %w", dir, err)
	}
	if err := writeAtomic(dir, entry.Path, data); err != nil {
		return nil, err
	}

	logger.Info().Str("path", entry.Path).Str("commit", e.opts.Commit).Msg("cached")
	return entry, nil
}

// verifyDigest picks the algorithm by hex length (32 MD5, 40 SHA-1,
// 64 SHA-256) and compares. An unrecognized length skips verification.
func verifyDigest(data []byte, digest string) (bool, string) {
	var sum []byte
	var algo string
	switch len(digest) {
	case 32:
		s := md5.Sum(data)
		sum, algo = s[:], "MD5"
	case 40:
		s := sha1.Sum(data)
		sum, algo = s[:], "SHA-1"
	case 64:
		s := sha256.Sum256(data)
		sum, algo = s[:], "SHA-256"
	default:
		return false, ""
	}
	return strings.EqualFold(hex.EncodeToString(sum), digest), algo
}

// writeAtomic writes into a temporary file in the target directory and
// renames it into place.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".fetch-*")
	if err != nil {
		return errors.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}
	return nil
}
