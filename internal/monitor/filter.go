package monitor

import "strings"

// metadataFilter suppresses change records under the version-control
// metadata directory. Paths are compared lowercased with forward slashes,
// matching the case-insensitive filesystem the recursive backend runs on.
type metadataFilter struct {
	worktree string
	gitDir   string
}

func newMetadataFilter(worktree, gitDir string) *metadataFilter {
	return &metadataFilter{
		worktree: normalizePath(worktree),
		gitDir:   normalizePath(gitDir),
	}
}

// relevant reports whether a change record for the given worktree-relative
// path should mark the monitor pending. Records for the metadata directory
// itself or anything under it are suppressed.
func (f *metadataFilter) relevant(rel string) bool {
	path := f.worktree + "/" + normalizePath(rel)
	return path != f.gitDir && !strings.HasPrefix(path, f.gitDir+"/")
}

// relevantAbs is relevant for backends that report absolute paths.
func (f *metadataFilter) relevantAbs(abs string) bool {
	path := normalizePath(abs)
	return path != f.gitDir && !strings.HasPrefix(path, f.gitDir+"/")
}

func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}
