// Package git wraps the git commands used by the pipeline.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pycicd/internal/logging"
	"pycicd/internal/tactile"
)

// Failure headers.
const (
	CommitFailed = "Git commit failed."
	PushFailed   = "Git push failed."
	TagFailed    = "Git tag failed."
	StatusFailed = "Git status failed."
)

// Status is the working tree state.
type Status struct {
	Branch    string   `json:"branch"`
	Clean     bool     `json:"clean"`
	Modified  []string `json:"modified,omitempty"`
	Staged    []string `json:"staged,omitempty"`
	Untracked []string `json:"untracked,omitempty"`
	Commit    string   `json:"commit"`
}

// Repo runs git in one working tree.
type Repo struct {
	Dir      string
	executor tactile.Executor
}

// New creates a Repo for dir.
func New(dir string, ex tactile.Executor) *Repo {
	return &Repo{Dir: dir, executor: ex}
}

func (r *Repo) git(ctx context.Context, header string, args ...string) (*tactile.ExecutionResult, error) {
	cmd := tactile.Command{
		Binary:           "git",
		Arguments:        args,
		WorkingDirectory: r.Dir,
		Tags:             map[string]string{"stage": "git"},
	}
	logging.GitDebug("git %s", strings.Join(args, " "))
	return tactile.Run(ctx, r.executor, cmd, header)
}

// CurrentBranch returns the checked out branch, empty on a detached HEAD.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	res, err := r.git(ctx, StatusFailed, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Status parses `git status --porcelain`.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	res, err := r.git(ctx, StatusFailed, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	st := ParsePorcelain(res.Stdout)
	st.Branch = branch

	// A fresh repository has no HEAD yet.
	if head, err := r.git(ctx, StatusFailed, "rev-parse", "HEAD"); err == nil {
		st.Commit = strings.TrimSpace(head.Stdout)
	}
	return st, nil
}

// ParsePorcelain parses porcelain v1 output.
func ParsePorcelain(out string) *Status {
	st := &Status{}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code, file := line[:2], strings.TrimSpace(line[3:])
		if i := strings.Index(file, " -> "); i >= 0 {
			file = file[i+4:]
		}

		switch {
		case code == "??":
			st.Untracked = append(st.Untracked, file)
		default:
			if code[0] != ' ' {
				st.Staged = append(st.Staged, file)
			}
			if code[1] != ' ' {
				st.Modified = append(st.Modified, file)
			}
		}
	}
	st.Clean = len(st.Modified) == 0 && len(st.Staged) == 0 && len(st.Untracked) == 0
	return st
}

// Commit records a commit. With all set every change is staged first.
// An empty commit is not an error; committed reports whether one was made.
func (r *Repo) Commit(ctx context.Context, message string, all bool) (bool, error) {
	if strings.TrimSpace(message) == "" {
		return false, &tactile.ConfigError{Field: "pipeline.commit_message", Header: "Commit message required."}
	}

	if all {
		if _, err := r.git(ctx, CommitFailed, "add", "-A"); err != nil {
			return false, err
		}
	}

	res, err := r.git(ctx, CommitFailed, "commit", "-m", message)
	if err != nil {
		var cmdErr *tactile.CommandError
		if errors.As(err, &cmdErr) && res != nil && nothingToCommit(res) {
			logging.Git("Nothing to commit")
			return false, nil
		}
		return false, err
	}

	logging.Git("Committed: %s", message)
	return true, nil
}

func nothingToCommit(res *tactile.ExecutionResult) bool {
	out := res.Output()
	return strings.Contains(out, "nothing to commit") || strings.Contains(out, "nothing added to commit")
}

// Tag creates an annotated tag for version, e.g. v1.2.3.
func (r *Repo) Tag(ctx context.Context, version string) error {
	name := "v" + strings.TrimPrefix(version, "v")
	if _, err := r.git(ctx, TagFailed, "tag", "-a", name, "-m", "Version "+version); err != nil {
		return err
	}
	logging.Git("Tagged %s", name)
	return nil
}

// Push pushes branch to remote. With tags set annotated tags reachable from
// the pushed commits go along.
func (r *Repo) Push(ctx context.Context, remote, branch string, tags bool) error {
	if remote == "" {
		remote = "origin"
	}
	args := []string{"push", remote}
	if branch != "" {
		args = append(args, branch)
	}
	if tags {
		args = append(args, "--follow-tags")
	}
	if _, err := r.git(ctx, PushFailed, args...); err != nil {
		return err
	}
	logging.Git("Pushed %s to %s", branch, remote)
	return nil
}

// CheckBranchAllowed returns tactile.ErrBranchNotAllowed when the current
// branch is not in allowed. An empty list allows every branch.
func (r *Repo) CheckBranchAllowed(ctx context.Context, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	return BranchAllowed(branch, allowed)
}

// BranchAllowed checks branch against allowed. An empty list allows every branch.
func BranchAllowed(branch string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == branch {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in %v", tactile.ErrBranchNotAllowed, branch, allowed)
}
