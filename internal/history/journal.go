package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmgrid/vmgrid-core/internal/entity"
	"github.com/vmgrid/vmgrid-core/internal/infrastructure/database"
)

// Logger is the minimal logging surface the journal needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Structural event names stored in the journal.
const (
	EventAdded    = "added"
	EventRemoved  = "removed"
	EventAttached = "attached"
	EventDetached = "detached"
)

const (
	entryBuffer         = 256
	writeTimeout        = 5 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// TransitionEntry is one recorded lifecycle transition.
type TransitionEntry struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// StructuralEntry is one recorded structural change.
type StructuralEntry struct {
	ID        int64     `json:"id"`
	Identity  string    `json:"identity"`
	Event     string    `json:"event"`
	Peer      string    `json:"peer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// entry is one pending journal write.
type entry struct {
	transition bool
	identity   string
	value      string // state for transitions, event name otherwise
	peer       string
}

// Journal records mirror changes into SQLite. It implements the
// notifier's sink interface; writes happen on a dedicated goroutine.
type Journal struct {
	db     *database.DB
	logger Logger

	entries chan entry

	mu      sync.Mutex
	dropped int64
	started bool
}

// NewJournal creates a journal over an open database. The schema is
// applied by the database migration step, not here. Call Start before
// wiring it into the notifier.
func NewJournal(db *database.DB, logger Logger) *Journal {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Journal{
		db:      db,
		logger:  logger,
		entries: make(chan entry, entryBuffer),
	}
}

// Start launches the writer goroutine. The writer stops when ctx is
// cancelled; entries still buffered at that point are flushed first.
func (j *Journal) Start(ctx context.Context) {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.mu.Unlock()

	go j.writer(ctx)
}

func (j *Journal) writer(ctx context.Context) {
	for {
		select {
		case e := <-j.entries:
			j.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-j.entries:
					j.write(e)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) write(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if e.transition {
		_, err = j.db.ExecContext(ctx,
			"INSERT INTO transition_history (identity, state) VALUES (?, ?)",
			e.identity, e.value,
		)
	} else {
		_, err = j.db.ExecContext(ctx,
			"INSERT INTO structural_history (identity, event, peer) VALUES (?, ?, ?)",
			e.identity, e.value, e.peer,
		)
	}
	if err != nil {
		j.logger.Warn("history write failed", "identity", e.identity, "error", err)
	}
}

// Dropped reports how many entries were discarded because the buffer
// was full.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) enqueue(e entry) {
	select {
	case j.entries <- e:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		j.logger.Warn("history buffer full, entry dropped", "identity", e.identity)
	}
}

// PropertiesChanged is a no-op; property-level changes are not
// journalled.
func (j *Journal) PropertiesChanged(entity.Identity, entity.Snapshot, []string) {}

// Added journals an entity addition.
func (j *Journal) Added(id entity.Identity) {
	j.enqueue(entry{identity: string(id), value: EventAdded})
}

// Removed journals an entity removal.
func (j *Journal) Removed(id entity.Identity) {
	j.enqueue(entry{identity: string(id), value: EventRemoved})
}

// Attached journals a device assignment.
func (j *Journal) Attached(id entity.Identity, frontend entity.Identity) {
	j.enqueue(entry{identity: string(id), value: EventAttached, peer: string(frontend)})
}

// Detached journals a cleared assignment.
func (j *Journal) Detached(id entity.Identity, frontend entity.Identity) {
	j.enqueue(entry{identity: string(id), value: EventDetached, peer: string(frontend)})
}

// DomainState journals a lifecycle transition.
func (j *Journal) DomainState(id entity.Identity, state entity.State) {
	j.enqueue(entry{transition: true, identity: string(id), value: string(state)})
}

// Transitions returns the most recent lifecycle transitions of one
// identity, newest first.
func (j *Journal) Transitions(ctx context.Context, identity string, limit int) ([]TransitionEntry, error) {
	if identity == "" {
		return nil, fmt.Errorf("history: identity is required")
	}
	limit = clampLimit(limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, identity, state, created_at
		 FROM transition_history
		 WHERE identity = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]TransitionEntry, 0, limit)
	for rows.Next() {
		var e TransitionEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Identity, &e.State, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scanning transition: %w", err)
		}
		e.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating transitions: %w", err)
	}
	return entries, nil
}

// Structural returns the most recent structural changes of one
// identity, newest first.
func (j *Journal) Structural(ctx context.Context, identity string, limit int) ([]StructuralEntry, error) {
	if identity == "" {
		return nil, fmt.Errorf("history: identity is required")
	}
	limit = clampLimit(limit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, identity, event, peer, created_at
		 FROM structural_history
		 WHERE identity = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying structural history: %w", err)
	}
	defer rows.Close()

	entries := make([]StructuralEntry, 0, limit)
	for rows.Next() {
		var e StructuralEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Identity, &e.Event, &e.Peer, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scanning structural entry: %w", err)
		}
		e.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating structural history: %w", err)
	}
	return entries, nil
}

// Prune deletes journal entries older than the given duration and
// returns how many rows were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)

	var total int64
	for _, table := range []string{"transition_history", "structural_history"} {
		result, err := j.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("history: pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("history: checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("history: created_at is empty")
	}
	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("history: parsing created_at: %w", err)
	}
	return timestamp, nil
}
