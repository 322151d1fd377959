// Package storage defines the contract for the storage-engine collaborator
// that actually reads and writes rows once a decision engine has granted a
// Read or Write. It does not call back into the core.
package storage

import "sync"

// Engine is the interface the query processor collaborator drives after
// receiving a Granted response. This core never calls it; no package in
// this module uses it outside its own test.
type Engine interface {
	Read(table string) (any, error)
	Write(table string, value any) error
}

// InMemory is a minimal Engine used only by tests: a table name maps to
// its last-written value. It has no notion of transactions, versions, or
// durability — those live in the storage engine a real deployment would
// plug in here.
type InMemory struct {
	mu     sync.Mutex
	tables map[string]any
}

// NewInMemory creates an empty in-memory storage stub.
func NewInMemory() *InMemory {
	return &InMemory{tables: make(map[string]any)}
}

func (s *InMemory) Read(table string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table], nil
}

func (s *InMemory) Write(table string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = value
	return nil
}
