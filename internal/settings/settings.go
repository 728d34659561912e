// Package settings holds the few configuration values an operator may change
// while the process runs. Everything else is fixed at startup in pkg/config;
// this handle exists so the console and the acquisition loops share mutable
// state through one synchronized object instead of package globals.
package settings

import (
	"fmt"
	"sync"
)

type Settings struct {
	mu            sync.RWMutex
	maxRecentHeld int
	source        string
	destination   string
}

func New(maxRecentHeld int, source, destination string) *Settings {
	return &Settings{
		maxRecentHeld: maxRecentHeld,
		source:        source,
		destination:   destination,
	}
}

func (s *Settings) MaxRecentHeld() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRecentHeld
}

func (s *Settings) SetMaxRecentHeld(limit int) error {
	if limit < 0 {
		return fmt.Errorf("recent-window limit cannot be negative, got %d", limit)
	}
	s.mu.Lock()
	s.maxRecentHeld = limit
	s.mu.Unlock()
	return nil
}

func (s *Settings) Route() (source, destination string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source, s.destination
}

func (s *Settings) SetRoute(source, destination string) error {
	if source == "" || destination == "" {
		return fmt.Errorf("source and destination cannot be empty")
	}
	s.mu.Lock()
	s.source = source
	s.destination = destination
	s.mu.Unlock()
	return nil
}
