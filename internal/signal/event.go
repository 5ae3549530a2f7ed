package signal

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/storehaus/internal/value"
)

// EventType names the mutation an Event describes.
type EventType string

const (
	Create EventType = "create"
	Update EventType = "update"
	Delete EventType = "delete"
)

// Well-known payload keys for aggregated events.
const (
	RecordKey       = "__record__"
	IDsKey          = "ids"
	UpdatedCountKey = "updated_count"
	DeletedCountKey = "deleted_count"
)

// Event describes one committed mutation. Events are built fresh per
// mutation and discarded after dispatch.
type Event struct {
	ID        string
	Type      EventType
	Table     string
	RecordID  string
	Tags      []string
	Payload   map[string]value.Value
	Timestamp time.Time
}

// NewEvent builds an event stamped with the current time. The Bus
// assigns the ID on Emit when it is empty.
func NewEvent(typ EventType, table string) Event {
	return Event{
		Type:      typ,
		Table:     table,
		Payload:   make(map[string]value.Value),
		Timestamp: time.Now().UTC(),
	}
}

// WithRecordID sets the affected record's id.
func (e Event) WithRecordID(id string) Event {
	e.RecordID = id
	return e
}

// Set stores one payload entry.
func (e *Event) Set(key string, v value.Value) {
	if e.Payload == nil {
		e.Payload = make(map[string]value.Value)
	}
	e.Payload[key] = v
}

// Clone returns a copy of e that shares no mutable state with it.
func (e Event) Clone() Event {
	if e.Tags != nil {
		e.Tags = slices.Clone(e.Tags)
	}
	if e.Payload != nil {
		payload := make(map[string]value.Value, len(e.Payload))
		for k, v := range e.Payload {
			payload[k] = value.Clone(v)
		}
		e.Payload = payload
	}
	return e
}

// AddTags appends tags not already present, keeping first-seen order.
func (e *Event) AddTags(tags ...string) {
	for _, t := range tags {
		if !slices.Contains(e.Tags, t) {
			e.Tags = append(e.Tags, t)
		}
	}
}

// IDGenerator produces event IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event IDs. It is
// stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns predetermined IDs in order. Used to make
// event streams deterministic in tests.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	n   int
}

// NewSequenceGenerator returns a generator yielding ids in order.
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate returns the next id. Panics once the sequence is exhausted,
// surfacing tests that emit more events than they expect.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.n >= len(g.ids) {
		panic("signal: SequenceGenerator exhausted")
	}
	id := g.ids[g.n]
	g.n++
	return id
}
