package rebuild

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/paramforge/engine/internal/docstore"
	"github.com/paramforge/engine/internal/types"
)

// DefaultDebounce is the rebuild worker's debounce interval: document
// changes are coalesced for 16ms before a rebuild begins.
const DefaultDebounce = 16 * time.Millisecond

// Scheduler debounces document change notifications and runs at most one
// rebuild at a time, coalescing any triggers that land while a rebuild is
// already in flight into the next one: a fresh update arriving mid-rebuild
// merges into the document and schedules a new debounced rebuild that
// begins after the current one completes.
type Scheduler struct {
	engine   *Engine
	store    *docstore.Store
	debounce time.Duration
	onStart  func()
	onResult func(*RebuildResult)
	logger   *slog.Logger

	mu          sync.Mutex
	timer       *time.Timer
	unsubscribe func()
	group       singleflight.Group
}

// NewScheduler returns a Scheduler bound to engine and store. onStart fires
// when a debounced rebuild actually begins running; onResult fires, from the
// scheduler's own goroutine, after every completed rebuild. Either may be nil.
func NewScheduler(engine *Engine, store *docstore.Store, debounce time.Duration, onStart func(), onResult func(*RebuildResult), logger *slog.Logger) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{engine: engine, store: store, debounce: debounce, onStart: onStart, onResult: onResult, logger: logger}
}

// Start subscribes to the document store and arms a debounced rebuild on
// every transaction whose origin isn't excluded from resetting the
// debounce. Solver writeback transactions are themselves a product of the
// rebuild that just ran; remote-in-flight transactions are a peer still
// catching up, not a steady-state edit — neither warrants restarting the
// debounce window.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.unsubscribe = s.store.Subscribe(func(_ *types.DocSnapshot, _ docstore.ChangeSet, origin string) {
		if origin == docstore.OriginSolverWriteback || origin == docstore.OriginRemoteInFlight {
			return
		}
		s.arm()
	})
	s.mu.Unlock()
	s.arm()
}

// Stop unsubscribes from the store and cancels any pending debounce timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.runOnce)
}

// runOnce performs one rebuild. Using a singleflight.Group keyed on a
// constant means any debounce fire that lands while a rebuild is still
// running waits for that rebuild to finish and then immediately runs again
// against the latest snapshot, rather than piling up concurrent rebuilds
// against a kernel that owns no concurrency of its own.
func (s *Scheduler) runOnce() {
	if s.onStart != nil {
		s.onStart()
	}
	ran := false
	build := func() (interface{}, error) {
		ran = true
		return s.engine.RebuildAndTessellate(s.store.Snapshot()), nil
	}
	v, _, _ := s.group.Do("rebuild", build)
	if !ran {
		// This call joined a rebuild that began before it fired; run again so
		// the changes that armed it are built.
		v, _, _ = s.group.Do("rebuild", build)
	}
	if s.onResult != nil {
		s.onResult(v.(*RebuildResult))
	}
}
