package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/repowatchapp/repowatch-server/internal/config"
	"github.com/repowatchapp/repowatch-server/internal/git"
	"github.com/repowatchapp/repowatch-server/internal/logger"
)

// ProvideRepo resolves the configured worktree to a git repository.
func ProvideRepo(i do.Injector) (*git.Repo, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithTimeout(context.Background(), repoOpenTimeout)
	defer cancel()

	repo, err := git.Open(ctx, cfg.Repo.WorktreePath)
	if err != nil {
		return nil, err
	}

	log.Info("Repository resolved",
		"worktree", repo.Worktree(),
		"git_dir", repo.GitDir(),
	)
	return repo, nil
}
