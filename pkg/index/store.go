package index

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📇 SourceRef is one source file recorded in a symbol file, with the
// checksum the compiler stored for it.
type SourceRef struct {
	BuildPath string
	Algo      string // MD5 or SHA256
	Checksum  string // uppercase hex
}

// 🗄️ SymbolStore is the embedding collaborator: it reads the source list
// out of a symbol file and writes the rendered stream back in. The binary
// format of the debug-symbol container stays behind this interface.
type SymbolStore interface {
	ListSources(ctx context.Context, target string) ([]SourceRef, error)
	WriteStream(ctx context.Context, target string, text string) error
}

// 🛠️ SrcToolStore shells out to the srctool/pdbstr pair from the Windows
// debugging tools.
type SrcToolStore struct {
	// Dir is the directory holding srctool.exe and pdbstr.exe
	Dir string
	// Match limits the source listing to paths under this prefix
	Match string
}

var _ SymbolStore = (*SrcToolStore)(nil)

// srctool prints one "path<TAB> Checksum ALGO: hex" line per source file
var sourceLine = regexp.MustCompile(`^(.+)\t Checksum (MD5|SHA256): ([A-Fa-f0-9]+)`)

func (s *SrcToolStore) ListSources(ctx context.Context, target string) ([]SourceRef, error) {
	args := []string{"-r", "-z", "-h"}
	if s.Match != "" {
		args = append([]string{"-l:" + s.Match + "*"}, args...)
	}
	args = append(args, target)

	cmd := exec.CommandContext(ctx, filepath.Join(s.Dir, "srctool.exe"), args...)
	out, err := cmd.Output()
	if err != nil {
		// srctool exits non-zero when the symbol file has no source lines;
		// its output still names the reason.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.Errorf("srctool on %s: %s: %w", target, strings.TrimSpace(string(exitErr.Stderr)), err)
		}
		return nil, errors.Errorf("running srctool on %s: %w", target, err)
	}

	return ParseSources(ctx, string(out)), nil
}

// ParseSources extracts source references from srctool output, skipping
// lines without a checksum.
func ParseSources(ctx context.Context, out string) []SourceRef {
	logger := zerolog.Ctx(ctx)

	var refs []SourceRef
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		m := sourceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		refs = append(refs, SourceRef{
			BuildPath: m[1],
			Algo:      m[2],
			Checksum:  strings.ToUpper(m[3]),
		})
	}
	logger.Debug().Int("sources", len(refs)).Msg("parsed srctool output")
	return refs
}

// HasStream reports whether the target already carries a srcsrv stream.
// pdbstr appends on re-index rather than replacing, so callers that care
// about prior state check here first.
func (s *SrcToolStore) HasStream(ctx context.Context, target string) bool {
	cmd := exec.CommandContext(ctx, filepath.Join(s.Dir, "pdbstr.exe"),
		"-r", "-p:"+target, "-s:srcsrv")
	out, err := cmd.Output()
	return err == nil && len(bytes.TrimSpace(out)) > 0
}

func (s *SrcToolStore) WriteStream(ctx context.Context, target string, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".srcsrv-*.ini")
	if err != nil {
		return errors.Errorf("creating stream file for %s: %w", target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return errors.Errorf("writing stream file for %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("closing stream file for %s: %w", target, err)
	}

	// pdbstr appends a new srcsrv stream rather than replacing one already
	// present. Callers who re-index a target must check prior state first.
	cmd := exec.CommandContext(ctx, filepath.Join(s.Dir, "pdbstr.exe"),
		"-w", "-p:"+target, "-s:srcsrv", "-i:"+tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Errorf("pdbstr on %s: %s: %w", target, strings.TrimSpace(string(out)), err)
	}
	return nil
}
