// Package config merges $GIT_DIR/config with the global (~/.gitconfig) and
// system (/etc/gitconfig) scopes, using github.com/go-git/gcfg for the
// INI-style parse and dario.cat/mergo to layer system < global < repo with
// repo values winning.
package config

import (
	"fmt"
	"io"
	"strings"

	"dario.cat/mergo"
	"github.com/go-git/gcfg"
)

// DiffAlgorithm selects the line-diff algorithm.
type DiffAlgorithm string

const (
	DiffHistogram DiffAlgorithm = "histogram"
	DiffMyers     DiffAlgorithm = "myers"
)

// WhitespaceMode selects how diff treats whitespace differences.
type WhitespaceMode string

const (
	WhitespaceDefault        WhitespaceMode = "default"
	WhitespaceIgnoreAll      WhitespaceMode = "ignore-all"
	WhitespaceIgnoreLeading  WhitespaceMode = "ignore-leading"
	WhitespaceIgnoreTrailing WhitespaceMode = "ignore-trailing"
	WhitespaceIgnoreChange   WhitespaceMode = "ignore-change"
)

// CoreConfig holds core.* settings.
type CoreConfig struct {
	Bare                    bool
	Worktree                string
	RepositoryFormatVersion int
}

// PackConfig holds the delta/pack tuning knobs.
type PackConfig struct {
	MaxDeltaChainDepth   int
	MaxPackCachedReaders int
}

// IndexConfig holds staging-index tuning knobs.
type IndexConfig struct {
	RacyThresholdMs int
}

// DiffConfig holds diff.* settings.
type DiffConfig struct {
	Algorithm  DiffAlgorithm
	Whitespace WhitespaceMode
}

// Config is the merged view handed to the rest of the engine.
type Config struct {
	Core  CoreConfig
	Pack  PackConfig
	Index IndexConfig
	Diff  DiffConfig
}

// Default returns the built-in defaults, to be layered under any
// system/global/repo scope that's actually present.
func Default() *Config {
	return &Config{
		Core: CoreConfig{RepositoryFormatVersion: 0},
		Pack: PackConfig{MaxDeltaChainDepth: 50, MaxPackCachedReaders: 8},
		Index: IndexConfig{
			RacyThresholdMs: 3000,
		},
		Diff: DiffConfig{Algorithm: DiffHistogram, Whitespace: WhitespaceDefault},
	}
}

// ErrUnsupportedFormatVersion is returned when core.repositoryformatversion
// names a version this engine does not understand.
type ErrUnsupportedFormatVersion struct{ Version int }

func (e *ErrUnsupportedFormatVersion) Error() string {
	return fmt.Sprintf("config: unsupported core.repositoryformatversion %d", e.Version)
}

// rawConfig mirrors the subset of .git/config this engine reads, as
// strings — booleans are decoded by hand afterward so that Git's full
// true|yes|on / false|no|off vocabulary is honored rather than only
// whatever gcfg's own bool parser accepts natively.
type rawConfig struct {
	Core struct {
		Bare                    string
		Worktree                string
		Repositoryformatversion string
	}
	Pack struct {
		Maxdeltachaindepth   string
		Maxpackcachedreaders string
	}
	Index struct {
		Racythresholdms string
	}
	Diff struct {
		Algorithm  string
		Whitespace string
	}
}

// Decode parses a single .git/config-style INI stream into a Config,
// starting from base (so an absent key keeps base's value).
func Decode(r io.Reader, base *Config) (*Config, error) {
	var raw rawConfig
	if err := gcfg.ReadInto(&raw, r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	out := *base

	if raw.Core.Bare != "" {
		b, err := parseGitBool(raw.Core.Bare)
		if err != nil {
			return nil, fmt.Errorf("config: core.bare: %w", err)
		}
		out.Core.Bare = b
	}
	if raw.Core.Worktree != "" {
		out.Core.Worktree = raw.Core.Worktree
	}
	if raw.Core.Repositoryformatversion != "" {
		v, err := parseInt(raw.Core.Repositoryformatversion)
		if err != nil {
			return nil, fmt.Errorf("config: core.repositoryformatversion: %w", err)
		}
		if v != 0 && v != 1 {
			return nil, &ErrUnsupportedFormatVersion{Version: v}
		}
		out.Core.RepositoryFormatVersion = v
	}

	if raw.Pack.Maxdeltachaindepth != "" {
		v, err := parseInt(raw.Pack.Maxdeltachaindepth)
		if err != nil {
			return nil, fmt.Errorf("config: pack.maxdeltachaindepth: %w", err)
		}
		out.Pack.MaxDeltaChainDepth = v
	}
	if raw.Pack.Maxpackcachedreaders != "" {
		v, err := parseInt(raw.Pack.Maxpackcachedreaders)
		if err != nil {
			return nil, fmt.Errorf("config: pack.maxpackcachedreaders: %w", err)
		}
		out.Pack.MaxPackCachedReaders = v
	}

	if raw.Index.Racythresholdms != "" {
		v, err := parseInt(raw.Index.Racythresholdms)
		if err != nil {
			return nil, fmt.Errorf("config: index.racythresholdms: %w", err)
		}
		out.Index.RacyThresholdMs = v
	}

	if raw.Diff.Algorithm != "" {
		switch DiffAlgorithm(raw.Diff.Algorithm) {
		case DiffHistogram, DiffMyers:
			out.Diff.Algorithm = DiffAlgorithm(raw.Diff.Algorithm)
		default:
			return nil, fmt.Errorf("config: diff.algorithm: unknown value %q", raw.Diff.Algorithm)
		}
	}
	if raw.Diff.Whitespace != "" {
		switch WhitespaceMode(raw.Diff.Whitespace) {
		case WhitespaceDefault, WhitespaceIgnoreAll, WhitespaceIgnoreLeading, WhitespaceIgnoreTrailing, WhitespaceIgnoreChange:
			out.Diff.Whitespace = WhitespaceMode(raw.Diff.Whitespace)
		default:
			return nil, fmt.Errorf("config: diff.whitespace: unknown value %q", raw.Diff.Whitespace)
		}
	}

	return &out, nil
}

// Merge layers scopes onto base in increasing priority order (system,
// then global, then repo), each scope's set fields winning over the
// previous scope's via mergo's override semantics.
func Merge(base *Config, scopes ...*Config) (*Config, error) {
	out := *base
	for _, scope := range scopes {
		if scope == nil {
			continue
		}
		if err := mergo.Merge(&out, *scope, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("config: merge: %w", err)
		}
	}
	return &out, nil
}

func parseGitBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

func parseInt(s string) (int, error) {
	var v int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
