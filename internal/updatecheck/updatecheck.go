// Package updatecheck compares the running build against the newest commit
// on the upstream branch. Workers and queuers built from different commits
// route to different queues, so a stale install is worth flagging early.
package updatecheck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"

	"proxyencoder/internal/buildinfo"
)

// Result describes how the local build relates to upstream.
type Result struct {
	// IsLatest is nil when the comparison could not be made.
	IsLatest *bool
	Remote   string
	Local    string
	Short    string
}

// Status renders the result for status output.
func (r Result) Status() string {
	switch {
	case r.IsLatest == nil:
		return "unknown"
	case *r.IsLatest:
		return "up to date"
	default:
		return fmt.Sprintf("update available (%s)", buildinfo.Short(r.Remote))
	}
}

// Check fetches the head of branch in repo ("owner/name") and compares it
// with localSHA. A missing local SHA yields an unknown result rather than an
// error.
func Check(ctx context.Context, client *github.Client, repo, branch, localSHA string) (Result, error) {
	result := Result{Local: localSHA, Short: buildinfo.Short(localSHA)}
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" {
		return result, fmt.Errorf("invalid repository %q", repo)
	}
	if client == nil {
		return result, errors.New("github client is nil")
	}

	head, _, err := client.Repositories.GetBranch(ctx, owner, name, branch, 1)
	if err != nil {
		return result, fmt.Errorf("get branch %s: %w", branch, err)
	}
	result.Remote = head.GetCommit().GetSHA()
	if result.Remote == "" || strings.TrimSpace(localSHA) == "" {
		return result, nil
	}
	latest := strings.EqualFold(result.Remote, strings.TrimSpace(localSHA))
	result.IsLatest = &latest
	return result, nil
}
