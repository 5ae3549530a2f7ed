package testutil

// FixedIDGenerator generates the same event ID every time.
//
// Unlike signal.SequenceGenerator which returns IDs in sequence, this
// generator never runs out, which suits tests that only need stable IDs
// and do not care how many events are emitted.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a new fixed ID generator.
//
// If id is empty, Generate() returns "test-event-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-event-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
//
// Implements signal.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
