package gitignore

import (
	"bufio"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/go-git/gcfg"
	"github.com/go-git/go-billy/v5"
)

const (
	gitignoreFile = ".gitignore"
	excludeFile   = ".git/info/exclude"
	gitconfigFile = ".gitconfig"
	systemFile    = "/etc/gitconfig"
)

// ReadPatterns reads every exclude pattern that applies under path: the
// repository-wide $GIT_DIR/info/exclude (only at the very root), then each
// directory's own .gitignore from path down, root to leaf. A directory that
// is itself already excluded by a pattern gathered so far is skipped
// entirely — Git never looks inside an ignored directory for more rules.
func ReadPatterns(fs billy.Filesystem, path []string) ([]Pattern, error) {
	return readPatterns(fs, path, nil)
}

func readPatterns(fs billy.Filesystem, path []string, ancestors []Pattern) ([]Pattern, error) {
	var ps []Pattern

	if len(path) == 0 {
		if patterns, err := readIgnoreFile(fs, path, excludeFile); err == nil {
			ps = append(ps, patterns...)
		}
	}

	if patterns, err := readIgnoreFile(fs, path, gitignoreFile); err == nil {
		ps = append(ps, patterns...)
	}

	current := append(append([]Pattern{}, ancestors...), ps...)
	m := NewMatcher(current)

	fis, err := fs.ReadDir(fs.Join(path...))
	if err != nil {
		return nil, err
	}

	for _, fi := range fis {
		if !fi.IsDir() || fi.Name() == ".git" {
			continue
		}

		// Copy path into a fresh backing array: appending onto a caller's
		// slice that still has spare capacity would let this iteration's
		// child path alias (and get clobbered by) the next one's.
		childPath := append(append([]string{}, path...), fi.Name())
		if m.Match(childPath, true) {
			continue
		}

		childPatterns, err := readPatterns(fs, childPath, current)
		if err != nil {
			return nil, err
		}
		ps = append(ps, childPatterns...)
	}

	return ps, nil
}

func readIgnoreFile(fs billy.Filesystem, path []string, ignoreFile string) ([]Pattern, error) {
	f, err := fs.Open(fs.Join(append(append([]string{}, path...), ignoreFile)...))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ps []Pattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, ParsePattern(line, path))
	}
	return ps, s.Err()
}

type excludesConfig struct {
	Core struct {
		ExcludesFile string
	}
}

// LoadGlobalPatterns reads the current user's ~/.gitconfig for
// core.excludesfile and returns the patterns in that file, or nil if either
// is missing.
func LoadGlobalPatterns(fs billy.Filesystem) ([]Pattern, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}

	f, err := fs.Open(fs.Join(home, gitconfigFile))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	excludesfile, err := readExcludesFile(f)
	if err != nil || excludesfile == "" {
		return nil, nil
	}

	return loadPatternFile(fs, expandHome(excludesfile, home))
}

// LoadSystemPatterns reads /etc/gitconfig for core.excludesfile and returns
// the patterns in that file, or nil if either is missing.
func LoadSystemPatterns(fs billy.Filesystem) ([]Pattern, error) {
	f, err := fs.Open(systemFile)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	excludesfile, err := readExcludesFile(f)
	if err != nil || excludesfile == "" {
		return nil, nil
	}

	return loadPatternFile(fs, excludesfile)
}

func readExcludesFile(r io.Reader) (string, error) {
	var cfg excludesConfig
	if err := gcfg.ReadInto(&cfg, r); err != nil {
		return "", err
	}
	return cfg.Core.ExcludesFile, nil
}

func loadPatternFile(fs billy.Filesystem, path string) ([]Pattern, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var ps []Pattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, ParsePattern(line, nil))
	}
	return ps, s.Err()
}

// expandHome resolves a leading "~" or "~user" in excludesfile the way Git
// itself does when reading core.excludesfile out of .gitconfig.
func expandHome(excludesfile, home string) string {
	if !strings.HasPrefix(excludesfile, "~") {
		return excludesfile
	}

	rest := excludesfile[1:]
	sep := strings.IndexByte(rest, '/')
	name, tail := rest, ""
	if sep >= 0 {
		name, tail = rest[:sep], rest[sep:]
	}

	if name == "" {
		return home + tail
	}

	u, err := user.Lookup(name)
	if err != nil {
		return excludesfile
	}
	return u.HomeDir + tail
}
