package buildmeta

import (
	"github.com/go-git/go-git/v5"

	"github.com/majorcontext/nupush/internal/log"
)

// ResolveCommit returns sourceVersion when set, otherwise the HEAD commit of
// the git repository containing dir. It returns "" when neither is known.
func ResolveCommit(sourceVersion, dir string) string {
	if sourceVersion != "" {
		return sourceVersion
	}
	if dir == "" {
		return ""
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		log.Debug("no git repository for commit id", "dir", dir, "error", err)
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		log.Debug("reading git HEAD", "dir", dir, "error", err)
		return ""
	}
	return head.Hash().String()
}
