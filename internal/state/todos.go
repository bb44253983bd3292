package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/metrics"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// DefaultRetryInterval is how often Run retries unacknowledged writes.
const DefaultRetryInterval = 5 * time.Second

// Todos is the observable collection of todo records keyed by ID.
//
// Mutations are optimistic: the collection changes and subscribers are
// notified before the table is written. A failed write keeps the local
// change and marks the ID pending until Flush (or Run) gets it through.
type Todos struct {
	table         store.Table
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	newID         func() string
	retryInterval time.Duration

	obs *Observable[[]model.Todo]

	mu         sync.Mutex
	items      map[string]model.Todo
	order      []string
	pending    map[string]struct{}
	tombstones map[string]time.Time

	// wmu serialises table writes so the last write per ID always carries
	// the newest local state.
	wmu sync.Mutex

	cmu      sync.Mutex
	watchers map[chan store.Change]struct{}
}

// Option configures Todos.
type Option func(*Todos)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Todos) { t.logger = l }
}

// WithMetrics enables prometheus recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Todos) { t.metrics = m }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Todos) { t.now = now }
}

// WithIDGenerator replaces uuid generation.
func WithIDGenerator(fn func() string) Option {
	return func(t *Todos) { t.newID = fn }
}

// WithRetryInterval sets how often Run retries pending writes.
func WithRetryInterval(d time.Duration) Option {
	return func(t *Todos) {
		if d > 0 {
			t.retryInterval = d
		}
	}
}

// New returns an empty collection bound to table. Call Load to fill it.
func New(table store.Table, opts ...Option) *Todos {
	t := &Todos{
		table:  table,
		logger: logging.Discard(),
		now: func() time.Time {
			// microseconds survive every backend round trip
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID:         uuid.NewString,
		retryInterval: DefaultRetryInterval,
		obs:           NewObservable([]model.Todo{}),
		items:         make(map[string]model.Todo),
		pending:       make(map[string]struct{}),
		tombstones:    make(map[string]time.Time),
		watchers:      make(map[chan store.Change]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observable returns the collection for subscribing views.
func (t *Todos) Observable() *Observable[[]model.Todo] { return t.obs }

// Snapshot returns the records in collection order.
func (t *Todos) Snapshot() []model.Todo {
	return slices.Clone(t.obs.Get())
}

// Get returns the record with id.
func (t *Todos) Get(id string) (model.Todo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	todo, ok := t.items[id]
	return todo, ok
}

// Len returns the number of records.
func (t *Todos) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Pending returns the number of IDs whose latest write has not landed.
func (t *Todos) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Changes streams every change applied to the collection, local or remote.
// A reader that falls more than 256 changes behind misses changes.
func (t *Todos) Changes() (<-chan store.Change, func()) {
	ch := make(chan store.Change, 256)
	t.cmu.Lock()
	t.watchers[ch] = struct{}{}
	t.cmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.cmu.Lock()
			delete(t.watchers, ch)
			close(ch)
			t.cmu.Unlock()
		})
	}
}

// Load replaces the collection with the table's rows. Records with pending
// writes keep their local state.
func (t *Todos) Load(ctx context.Context) error {
	rows, err := t.table.List(ctx)
	if err != nil {
		return fmt.Errorf("load todos: %w", err)
	}

	t.mu.Lock()
	local := t.items
	t.items = make(map[string]model.Todo, len(rows))
	t.order = t.order[:0]
	for _, r := range rows {
		if _, ok := t.pending[r.ID]; ok {
			cur, exists := local[r.ID]
			if !exists {
				continue
			}
			r = cur
		}
		t.insertLocked(r)
	}
	for id := range t.pending {
		if cur, ok := local[id]; ok {
			if _, there := t.items[id]; !there {
				t.insertLocked(cur)
			}
		}
	}
	t.publishLocked()
	t.mu.Unlock()

	t.logger.Debug("todos loaded", slog.Int("count", len(rows)))
	return nil
}

// AddTodo appends a new record with the trimmed text and Done=false.
func (t *Todos) AddTodo(ctx context.Context, text string) (model.Todo, error) {
	text = model.NormalizeText(text)
	if text == "" {
		return model.Todo{}, apperr.ErrEmptyText
	}
	now := t.now()
	todo := model.Todo{ID: t.newID(), Text: text, CreatedAt: now, UpdatedAt: now}
	if err := todo.Validate(); err != nil {
		return model.Todo{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}

	t.mu.Lock()
	t.insertLocked(todo)
	t.publishLocked()
	t.mu.Unlock()
	t.emit(store.Change{Kind: store.ChangeUpsert, Todo: todo})
	t.metrics.IncrementAdded()

	return todo, t.persist(ctx, todo.ID)
}

// ToggleDone flips the done flag of the record with id.
func (t *Todos) ToggleDone(ctx context.Context, id string) (model.Todo, error) {
	t.mu.Lock()
	todo, ok := t.items[id]
	if !ok {
		t.mu.Unlock()
		return model.Todo{}, fmt.Errorf("toggle %s: %w", id, apperr.ErrNotFound)
	}
	todo.Done = !todo.Done
	todo.UpdatedAt = t.later(todo.UpdatedAt)
	t.items[id] = todo
	t.publishLocked()
	t.mu.Unlock()
	t.emit(store.Change{Kind: store.ChangeUpsert, Todo: todo})
	t.metrics.IncrementToggled()

	return todo, t.persist(ctx, id)
}

// DeleteTodo removes the record with id.
func (t *Todos) DeleteTodo(ctx context.Context, id string) error {
	t.mu.Lock()
	if _, ok := t.items[id]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, apperr.ErrNotFound)
	}
	t.removeLocked(id)
	t.publishLocked()
	t.mu.Unlock()
	t.emit(store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: id}})
	t.metrics.IncrementDeleted()

	return t.persist(ctx, id)
}

// ClearCompletedTodos removes all and only the records with Done=true and
// returns how many were removed.
func (t *Todos) ClearCompletedTodos(ctx context.Context) (int, error) {
	t.mu.Lock()
	var ids []string
	for _, id := range t.order {
		if t.items[id].Done {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		t.mu.Unlock()
		return 0, nil
	}
	for _, id := range ids {
		t.removeLocked(id)
	}
	t.publishLocked()
	t.mu.Unlock()
	for _, id := range ids {
		t.emit(store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: id}})
	}
	t.metrics.AddCleared(len(ids))

	var errs []error
	for _, id := range ids {
		if err := t.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(ids), errors.Join(errs...)
}

// Put stores a full record as given, for replicas pushing their own rows.
// A record older than the stored row is not written and the stored row is
// returned instead; a record no newer than a delete fails with ErrDeleted.
func (t *Todos) Put(ctx context.Context, todo model.Todo) (model.Todo, error) {
	todo.Text = model.NormalizeText(todo.Text)
	if err := todo.Validate(); err != nil {
		return model.Todo{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	now := t.now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	if todo.UpdatedAt.IsZero() {
		todo.UpdatedAt = now
	}

	t.mu.Lock()
	if deletedAt, ok := t.tombstones[todo.ID]; ok && !todo.UpdatedAt.After(deletedAt) {
		t.mu.Unlock()
		return model.Todo{}, fmt.Errorf("put %s: %w", todo.ID, apperr.ErrDeleted)
	}
	cur, exists := t.items[todo.ID]
	if exists && (todo.UpdatedAt.Before(cur.UpdatedAt) || cur.Equal(todo)) {
		t.mu.Unlock()
		t.logger.Debug("stale put ignored", slog.String("id", todo.ID))
		return cur, nil
	}
	if exists {
		t.items[todo.ID] = todo
	} else {
		delete(t.tombstones, todo.ID)
		t.insertLocked(todo)
	}
	t.publishLocked()
	t.mu.Unlock()
	t.emit(store.Change{Kind: store.ChangeUpsert, Todo: todo})

	return todo, t.persist(ctx, todo.ID)
}

// Flush retries every pending write once.
func (t *Todos) Flush(ctx context.Context) error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := t.persist(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run retries pending writes every retry interval and, when the table can
// stream changes, applies changes made elsewhere. It returns when ctx is done.
func (t *Todos) Run(ctx context.Context) error {
	var changes <-chan store.Change
	if w, ok := t.table.(store.Watcher); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			t.logger.Warn("watch unavailable, realtime updates disabled", slog.String("error", err.Error()))
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(t.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.Pending() == 0 {
				continue
			}
			if err := t.Flush(ctx); err != nil {
				t.logger.Debug("retry pending writes failed", slog.String("error", err.Error()))
			}
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			t.ApplyRemote(c)
		}
	}
}

// ApplyRemote merges a change made elsewhere. Upserts older than the local
// copy, or than a local delete, are ignored; IDs with pending writes keep
// their local state.
func (t *Todos) ApplyRemote(c store.Change) {
	id := c.Todo.ID
	t.mu.Lock()
	if _, ok := t.pending[id]; ok {
		t.mu.Unlock()
		return
	}
	switch c.Kind {
	case store.ChangeUpsert:
		if deletedAt, ok := t.tombstones[id]; ok && !c.Todo.UpdatedAt.After(deletedAt) {
			t.mu.Unlock()
			return
		}
		cur, exists := t.items[id]
		if exists && (c.Todo.UpdatedAt.Before(cur.UpdatedAt) || cur.Equal(c.Todo)) {
			t.mu.Unlock()
			return
		}
		if exists {
			t.items[id] = c.Todo
		} else {
			delete(t.tombstones, id)
			t.insertLocked(c.Todo)
		}
	case store.ChangeDelete:
		if _, exists := t.items[id]; !exists {
			t.mu.Unlock()
			return
		}
		t.removeLocked(id)
	default:
		t.mu.Unlock()
		return
	}
	t.publishLocked()
	t.mu.Unlock()

	t.emit(c)
	t.metrics.IncrementRemoteChange()
	t.logger.Debug("remote change applied", slog.String("kind", string(c.Kind)), slog.String("id", id))
}

// persist writes the current local state of id to the table.
func (t *Todos) persist(ctx context.Context, id string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	t.mu.Lock()
	todo, exists := t.items[id]
	t.mu.Unlock()

	start := time.Now()
	var err error
	if exists {
		err = t.table.Upsert(ctx, todo)
	} else {
		err = t.table.Delete(ctx, id)
	}
	t.metrics.ObserveWrite(start)

	var sup *store.SupersededError
	if errors.As(err, &sup) && t.adopt(todo, sup) {
		err = nil
	}

	t.mu.Lock()
	if err != nil {
		t.pending[id] = struct{}{}
	} else {
		delete(t.pending, id)
	}
	n := len(t.pending)
	t.mu.Unlock()
	t.metrics.SetPending(n)

	if err != nil {
		t.metrics.IncrementSyncFailure()
		t.logger.Warn("write failed, will retry",
			slog.String("id", id),
			slog.Bool("delete", !exists),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s: %v", apperr.ErrSync, id, err)
	}
	return nil
}

// adopt replaces the local row with the state that beat sent in the table,
// unless the row changed again after sent was written.
func (t *Todos) adopt(sent model.Todo, sup *store.SupersededError) bool {
	t.mu.Lock()
	cur, ok := t.items[sent.ID]
	if !ok || !cur.Equal(sent) {
		t.mu.Unlock()
		return false
	}
	c := store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: sent.ID}}
	if sup.Current == nil {
		t.removeLocked(sent.ID)
	} else {
		t.items[sent.ID] = *sup.Current
		c = store.Change{Kind: store.ChangeUpsert, Todo: *sup.Current}
	}
	t.publishLocked()
	t.mu.Unlock()

	t.emit(c)
	t.logger.Info("write superseded, took table state",
		slog.String("id", sent.ID), slog.String("kind", string(c.Kind)))
	return true
}

// later returns now, or just after prev when the clock has not moved past it.
func (t *Todos) later(prev time.Time) time.Time {
	now := t.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}

func (t *Todos) insertLocked(todo model.Todo) {
	if _, ok := t.items[todo.ID]; !ok {
		t.order = append(t.order, todo.ID)
	}
	t.items[todo.ID] = todo
}

func (t *Todos) removeLocked(id string) {
	todo := t.items[id]
	delete(t.items, id)
	t.order = slices.DeleteFunc(t.order, func(o string) bool { return o == id })
	t.tombstones[id] = t.later(todo.UpdatedAt)
}

func (t *Todos) publishLocked() {
	snap := make([]model.Todo, 0, len(t.order))
	for _, id := range t.order {
		snap = append(snap, t.items[id])
	}
	t.obs.Set(snap)
}

func (t *Todos) emit(c store.Change) {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	for ch := range t.watchers {
		select {
		case ch <- c:
		default:
			t.logger.Warn("change subscriber too slow, dropping change", slog.String("id", c.Todo.ID))
		}
	}
}
