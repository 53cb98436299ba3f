package snapshot

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/logging"
)

// Watcher publishes vcs.branch.updated when the checked-out branch changes.
// It watches the .git directory because watching HEAD directly misses the
// rename git uses to replace it.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *bus.Bus
	workDir string
	gitDir  string
	log     zerolog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool

	mu            sync.RWMutex
	currentBranch string
}

// NewWatcher creates a branch watcher for workDir. Returns (nil, nil) when
// the directory is not a git repository.
func NewWatcher(workDir string, b *bus.Bus) (*Watcher, error) {
	log := logging.Component("vcs")

	gitDir := findGitDir(workDir)
	if gitDir == "" {
		log.Debug().Str("workDir", workDir).Msg("not a git repository, branch watcher disabled")
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(gitDir); err != nil {
		fsw.Close()
		return nil, err
	}

	branch := currentBranch(workDir)
	log.Debug().Str("branch", branch).Str("gitDir", gitDir).Msg("branch watcher initialized")

	return &Watcher{
		watcher:       fsw,
		bus:           b,
		workDir:       workDir,
		gitDir:        gitDir,
		log:           log,
		currentBranch: branch,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once; later calls are no-ops.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if strings.HasSuffix(ev.Name, "HEAD") {
				w.checkBranchChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("branch watcher error")
		}
	}
}

func (w *Watcher) checkBranchChange() {
	newBranch := currentBranch(w.workDir)
	if newBranch == "" {
		return
	}

	w.mu.Lock()
	oldBranch := w.currentBranch
	changed := newBranch != oldBranch
	if changed {
		w.currentBranch = newBranch
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	w.log.Info().Str("from", oldBranch).Str("to", newBranch).Msg("branch changed")
	w.bus.Publish(bus.Event{
		Type: bus.BranchUpdated,
		Data: bus.BranchUpdatedData{Directory: w.workDir, Branch: newBranch},
	})
}

// CurrentBranch returns the branch the watcher last observed.
func (w *Watcher) CurrentBranch() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentBranch
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

// Branch returns the checked-out branch for a directory without a watcher.
func Branch(workDir string) string {
	return currentBranch(workDir)
}
