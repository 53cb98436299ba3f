// Package snapshot captures and restores working-tree checkpoints around
// turns. Checkpoints are git stash objects: creating one never disturbs the
// working tree. A clean tree has nothing to stash, so HEAD is recorded
// instead and restoring checks the committed tree back out. Directories
// without version control degrade to ref-less snapshots, so undo still
// truncates history even when there is nothing to restore on disk.
package snapshot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Manager creates and restores working-tree snapshots for one directory.
// Snapshot records are persisted through the store so they survive restarts
// and are swept with their session.
type Manager struct {
	workDir string
	gitDir  string
	store   *store.Store
	log     zerolog.Logger

	// Git mutates index state under the hood even for read-ish commands;
	// one at a time keeps refs consistent.
	mu sync.Mutex
}

// NewManager creates a snapshot manager for workDir. Outside a git
// repository the manager still works, producing ref-less snapshots.
func NewManager(workDir string, st *store.Store) *Manager {
	return &Manager{
		workDir: workDir,
		gitDir:  findGitDir(workDir),
		store:   st,
		log:     logging.Component("snapshot"),
	}
}

// Enabled reports whether the directory is under version control, i.e.
// whether snapshots can actually restore files.
func (m *Manager) Enabled() bool {
	return m.gitDir != ""
}

// Capture records the current working-tree state for a session at the given
// revision. A dirty tree is captured as a stash object; a clean tree falls
// back to HEAD so the ref still names the pre-turn state. The Ref stays
// empty when the directory is not a git repository, or when the repository
// has no commits yet.
func (m *Manager) Capture(ctx context.Context, sessionID string, revision int64) (*types.Snapshot, error) {
	snap := &types.Snapshot{
		SessionID: sessionID,
		Revision:  revision,
	}

	if m.gitDir != "" {
		m.mu.Lock()
		ref, err := runGit(ctx, m.workDir, "stash", "create")
		if err == nil && ref == "" {
			// Nothing to stash. Record HEAD so a later revert restores
			// the committed tree rather than silently doing nothing.
			ref, err = runGit(ctx, m.workDir, "rev-parse", "HEAD")
			if err != nil {
				// Unborn branch: no commits, nothing restorable.
				ref, err = "", nil
			}
		}
		m.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to capture snapshot: %w", err)
		}
		snap.Ref = ref
	}

	if err := m.store.PutSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	m.log.Debug().
		Str("session", sessionID).
		Str("ref", snap.Ref).
		Int64("revision", revision).
		Msg("snapshot captured")
	return snap, nil
}

// Revert restores the working tree to a snapshot's state by checking out
// the ref's tree over the current files. A ref-less snapshot restores
// nothing; message history handling is the caller's job.
func (m *Manager) Revert(ctx context.Context, sessionID, snapshotID string) error {
	snap, err := m.store.GetSnapshot(ctx, sessionID, snapshotID)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	if snap.Ref == "" {
		return nil
	}
	if m.gitDir == "" {
		return fmt.Errorf("snapshot %s has ref %s but %s is not a git repository", snapshotID, snap.Ref, m.workDir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := runGit(ctx, m.workDir, "checkout", snap.Ref, "--", "."); err != nil {
		return fmt.Errorf("failed to restore snapshot %s: %w", snapshotID, err)
	}

	m.log.Info().
		Str("session", sessionID).
		Str("ref", snap.Ref).
		Msg("working tree restored")
	return nil
}

// Diff returns the patch from the snapshot's tree to the current working
// tree: the changes an undo to this snapshot would roll back. Empty for
// ref-less snapshots.
func (m *Manager) Diff(ctx context.Context, sessionID, snapshotID string) (string, error) {
	snap, err := m.store.GetSnapshot(ctx, sessionID, snapshotID)
	if err != nil {
		return "", fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	if snap.Ref == "" || m.gitDir == "" {
		return "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := runGit(ctx, m.workDir, "diff", snap.Ref)
	if err != nil {
		return "", fmt.Errorf("failed to diff snapshot %s: %w", snapshotID, err)
	}
	return out, nil
}
