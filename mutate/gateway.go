// Package mutate is the single serialized entry point through which all
// state changes flow, for both the CLI and the web layer. Every apply
// reloads the freshest on-disk state, validates, saves atomically, then
// notifies live viewers. Cross-process races resolve last-write-wins; the
// on-disk file is always one complete snapshot.
package mutate

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/smallnest/roadclaw/bus"
	"github.com/smallnest/roadclaw/internal/logger"
	"github.com/smallnest/roadclaw/roadmap"
	"github.com/smallnest/roadclaw/store"
	"go.uber.org/zap"
)

// Gateway serializes mutations per project path within this process and
// persists them through the state store.
type Gateway struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	lastSaved map[string]time.Time

	journal     *store.Journal
	broadcaster *bus.Broadcaster
}

// NewGateway creates a gateway. journal and broadcaster are optional; a nil
// journal skips journaling and a nil broadcaster skips notification.
func NewGateway(journal *store.Journal, broadcaster *bus.Broadcaster) *Gateway {
	return &Gateway{
		locks:       make(map[string]*sync.Mutex),
		lastSaved:   make(map[string]time.Time),
		journal:     journal,
		broadcaster: broadcaster,
	}
}

// pathLock returns the per-path lock, creating it on first use.
func (g *Gateway) pathLock(path string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[path] = lock
	}
	return lock
}

// Apply loads the freshest persisted state for path, applies the mutation,
// and saves the result atomically. On any validation or apply error the
// on-disk document is left untouched.
func (g *Gateway) Apply(ctx context.Context, path string, m Mutation) (*roadmap.Roadmap, error) {
	if m == nil {
		return nil, fmt.Errorf("mutation is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := g.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	// Reload so the mutation applies atop the latest committed state even
	// if another process wrote since our last look.
	r, err := store.Load(path)
	if err != nil {
		return nil, err
	}

	if err := m.Apply(r); err != nil {
		return nil, err
	}

	r.Touch()
	if err := store.Save(path, r); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.lastSaved[path] = r.Metadata.LastModified
	g.mu.Unlock()

	g.record(path, m)
	g.notify(path, r, m)

	logger.Info("Mutation applied",
		zap.String("path", path),
		zap.String("kind", m.Kind()),
	)
	return r, nil
}

// Init creates a new empty roadmap at path. It refuses to overwrite an
// existing state file.
func (g *Gateway) Init(path, title string) (*roadmap.Roadmap, error) {
	lock := g.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("state file already exists: %s", path)
	}

	r := roadmap.New(title)
	if err := store.Save(path, r); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.lastSaved[path] = r.Metadata.LastModified
	g.mu.Unlock()

	g.record(path, &initMarker{title: title})
	return r, nil
}

// GetRoadmap loads the current document for path.
func (g *Gateway) GetRoadmap(path string) (*roadmap.Roadmap, error) {
	return store.Load(path)
}

// DependencyView is the graph summary served to viewers. When a task is
// selected it carries that task's tree, ancestors and impact; the ready and
// blocked sets cover the whole roadmap either way.
type DependencyView struct {
	Tree      *roadmap.TreeNode     `json:"tree,omitempty"`
	Ancestors []int                 `json:"ancestors,omitempty"`
	Impact    []int                 `json:"impact,omitempty"`
	Ready     []*roadmap.Task       `json:"ready"`
	Blocked   []roadmap.BlockedTask `json:"blocked"`
}

// GetDependencyView builds the dependency view for path. taskID <= 0 means
// no selected task.
func (g *Gateway) GetDependencyView(path string, taskID int) (*DependencyView, error) {
	r, err := store.Load(path)
	if err != nil {
		return nil, err
	}

	view := &DependencyView{
		Ready:   roadmap.ReadyTasks(r),
		Blocked: roadmap.BlockedTasks(r),
	}
	if taskID > 0 {
		tree, err := roadmap.DependencyTree(r, taskID)
		if err != nil {
			return nil, err
		}
		ancestors, err := roadmap.Ancestors(r, taskID)
		if err != nil {
			return nil, err
		}
		impact, err := roadmap.ImpactOf(r, taskID)
		if err != nil {
			return nil, err
		}
		view.Tree = tree
		view.Ancestors = ancestors
		view.Impact = impact
	}
	return view, nil
}

// LastSaved returns the LastModified stamp of the most recent save this
// gateway made to path. The watcher bridge uses it to suppress echoing our
// own writes back to viewers.
func (g *Gateway) LastSaved(path string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSaved[path]
}

// Journal returns the mutation journal, or nil when journaling is off.
func (g *Gateway) Journal() *store.Journal {
	return g.journal
}

// record appends to the journal, best-effort.
func (g *Gateway) record(path string, m Mutation) {
	if g.journal == nil {
		return
	}

	taskID, detail := 0, ""
	if d, ok := m.(describer); ok {
		taskID, detail = d.describe()
	}
	if _, err := g.journal.Append(path, m.Kind(), taskID, detail); err != nil {
		logger.Warn("Failed to journal mutation",
			zap.String("path", path),
			zap.String("kind", m.Kind()),
			zap.Error(err),
		)
	}
}

// notify publishes the mutation to live viewers, so locally-originated
// changes propagate without waiting on filesystem-event latency.
func (g *Gateway) notify(path string, r *roadmap.Roadmap, m Mutation) {
	if g.broadcaster == nil {
		return
	}

	taskID := 0
	if d, ok := m.(describer); ok {
		taskID, _ = d.describe()
	}
	g.broadcaster.Publish(path, bus.NewEvent(bus.EventTaskUpdated, r.Metadata.Name, map[string]interface{}{
		"kind":    m.Kind(),
		"task_id": taskID,
	}))
}

// initMarker only exists so project initialization shows up in the journal.
type initMarker struct {
	title string
}

func (m *initMarker) Kind() string                     { return "init" }
func (m *initMarker) Apply(r *roadmap.Roadmap) error   { return nil }
func (m *initMarker) describe() (taskID int, d string) { return 0, m.title }
