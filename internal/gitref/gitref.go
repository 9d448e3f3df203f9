// Package gitref resolves the git state of a working tree without
// shelling out, for recording provenance of scripted transformations.
// Everything here is best-effort: a missing or unreadable repository
// yields an empty ref, never an error.
package gitref

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"datacat/internal/domain"
)

// Resolve walks up from dir to the nearest .git directory and reads the
// current commit SHA and the origin remote URL.
func Resolve(dir string) domain.SourceRef {
	gitDir := findGitDir(dir)
	if gitDir == "" {
		return domain.SourceRef{}
	}
	return domain.SourceRef{
		RepoURL:   originURL(gitDir),
		CommitSHA: headSHA(gitDir),
	}
}

func findGitDir(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".git")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// headSHA dereferences .git/HEAD: either a detached SHA, or a symbolic
// ref resolved through the loose ref file and then packed-refs.
func headSHA(gitDir string) string {
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(head))

	if !strings.HasPrefix(line, "ref: ") {
		if isSHA(line) {
			return line
		}
		return ""
	}
	ref := strings.TrimSpace(strings.TrimPrefix(line, "ref: "))

	if b, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		if sha := strings.TrimSpace(string(b)); isSHA(sha) {
			return sha
		}
	}
	return packedRefSHA(gitDir, ref)
}

func packedRefSHA(gitDir, ref string) string {
	f, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return ""
	}
	defer f.Close() //nolint:errcheck

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		sha, name, ok := strings.Cut(line, " ")
		if ok && name == ref && isSHA(sha) {
			return sha
		}
	}
	return ""
}

// originURL reads the url of the origin remote from .git/config.
func originURL(gitDir string) string {
	f, err := os.Open(filepath.Join(gitDir, "config"))
	if err != nil {
		return ""
	}
	defer f.Close() //nolint:errcheck

	inOrigin := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			inOrigin = line == `[remote "origin"]`
			continue
		}
		if !inOrigin {
			continue
		}
		if key, val, ok := strings.Cut(line, "="); ok && strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func isSHA(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
