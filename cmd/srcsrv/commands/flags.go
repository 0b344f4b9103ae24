package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/walteh/srcsrv/pkg/plugin"
	"gitlab.com/tozd/go/errors"
)

// Both subcommands disable cobra's flag parsing and parse the raw token
// list themselves with unknown flags whitelisted. The same token list is
// handed to the provider factory, which picks out its own flags, matching
// how the rendered SRCSRVCMD delivers everything in one flat argument
// vector.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	return fs
}

// 🔧 commonFlags are shared by the index and fetch halves
type commonFlags struct {
	plugin  string
	uri     string
	commit  string
	verify  string
	cache   string
	exe     string
	authVar string
	timeout time.Duration
	logPath string
	debug   bool
}

func addCommonFlags(fs *pflag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.plugin, "plugin", "github", "provider plugin identity")
	fs.StringVar(&f.uri, "uri", "github.com", "repository server URI")
	fs.StringVar(&f.commit, "commit", "", "repository commit or revision")
	fs.StringVar(&f.verify, "verify", "", "verify server certificate (true/false, empty for default)")
	fs.StringVar(&f.cache, "cache", "", "source cache directory")
	fs.StringVar(&f.exe, "exe", "srcsrv.exe", "executable name embedded into the stream")
	fs.StringVar(&f.authVar, "auth-var", "", "credential environment variable override")
	fs.DurationVar(&f.timeout, "timeout", 0, "network timeout per provider call")
	fs.StringVar(&f.logPath, "log", "", "log file path (default: stderr)")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	return f
}

// options turns the parsed flags into provider options
func (f *commonFlags) options() (plugin.Options, error) {
	verify, err := parseVerify(f.verify)
	if err != nil {
		return plugin.Options{}, err
	}
	return plugin.Options{
		URI:      normalizeURI(f.uri),
		Commit:   f.commit,
		CacheDir: f.cache,
		Exe:      f.exe,
		AuthVar:  f.authVar,
		Verify:   verify,
		Timeout:  f.timeout,
	}, nil
}

// normalizeURI reduces a server URI to the bare host name
func normalizeURI(uri string) string {
	uri = strings.TrimPrefix(uri, "https://")
	uri = strings.TrimPrefix(uri, "http://")
	if pos := strings.IndexByte(uri, '/'); pos > 0 {
		uri = uri[:pos]
	}
	return uri
}

// parseVerify reads the tri-state certificate policy
func parseVerify(s string) (*bool, error) {
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	default:
		return nil, errors.Errorf("invalid --verify value %q, want true or false", s)
	}
}

// setupContext attaches a zerolog logger to the context. Logs go to stderr
// or the requested file, never stdout: the fetch half's stdout belongs to
// the debugger.
func setupContext(ctx context.Context, f *commonFlags) (context.Context, func(), error) {
	level := zerolog.InfoLevel
	if f.debug {
		level = zerolog.DebugLevel
	}

	out := os.Stderr
	cleanup := func() {}
	if f.logPath != "" {
		file, err := os.OpenFile(f.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return ctx, cleanup, errors.Errorf("opening log file: %w", err)
		}
		out = file
		cleanup = func() { file.Close() }
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
	return logger.WithContext(ctx), cleanup, nil
}
