// Package memory is an in-process row store standing in for a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"
)

type Store struct {
	mu   sync.Mutex
	tabs map[string][][]any
	err  error
}

func New() *Store {
	return &Store{tabs: make(map[string][][]any)}
}

// FailWith makes every following append return err. Nil clears it.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) AppendRow(_ context.Context, sheet string, row []any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	cp := append([]any(nil), row...)
	s.tabs[sheet] = append(s.tabs[sheet], cp)
	return fmt.Sprintf("mem:%s!%d", sheet, len(s.tabs[sheet])), nil
}

// Rows returns a copy of the rows written to sheet.
func (s *Store) Rows(sheet string) [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.tabs[sheet]))
	copy(out, s.tabs[sheet])
	return out
}
