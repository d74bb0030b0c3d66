package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataFilter_Relevant(t *testing.T) {
	f := newMetadataFilter(`C:\Work\repo`, `C:\Work\repo\.git`)

	tests := []struct {
		name string
		rel  string
		want bool
	}{
		{"worktree file", "main.go", true},
		{"nested file", `src\app\main.go`, true},
		{"metadata dir itself", ".git", false},
		{"file under metadata dir", `.git\index`, false},
		{"deep metadata path", `.git\objects\ab\cdef`, false},
		{"mixed case metadata", `.GIT\INDEX`, false},
		{"gitignore is not the metadata dir", ".gitignore", true},
		{"dotgit prefix directory", ".github/workflows/ci.yml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.relevant(tt.rel))
		})
	}
}

func TestMetadataFilter_RelevantAbs(t *testing.T) {
	f := newMetadataFilter("/work/repo", "/work/repo/.git")

	assert.True(t, f.relevantAbs("/work/repo/main.go"))
	assert.True(t, f.relevantAbs("/work/repo/sub/file.go"))
	assert.False(t, f.relevantAbs("/work/repo/.git"))
	assert.False(t, f.relevantAbs("/work/repo/.git/HEAD"))
	assert.True(t, f.relevantAbs("/work/repo/.gitignore"))
}

func TestMetadataFilter_SeparateGitDir(t *testing.T) {
	// Worktrees and submodules keep their metadata outside the tree; no
	// relative path can land under it, so everything is relevant.
	f := newMetadataFilter("/work/repo", "/work/meta/repo.git")

	assert.True(t, f.relevant("main.go"))
	assert.True(t, f.relevant(".git"))
	assert.False(t, f.relevantAbs("/work/meta/repo.git/HEAD"))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "c:/work/repo", normalizePath(`C:\Work\Repo`))
	assert.Equal(t, "/work/repo", normalizePath("/work/repo"))
	assert.Equal(t, "a/b/c", normalizePath(`a\b\c`))
}
