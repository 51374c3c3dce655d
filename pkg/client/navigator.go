package client

import "sync"

// Navigator is the host's router: it knows the current location and can move
// to another one.
type Navigator interface {
	CurrentURL() string
	Navigate(target string)
}

// History is an in-memory Navigator. CLIs and tests use it to observe
// redirects.
type History struct {
	mu      sync.Mutex
	current string
	visits  []string
}

func NewHistory(start string) *History {
	return &History{current: start}
}

func (h *History) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *History) Navigate(target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = target
	h.visits = append(h.visits, target)
}

// Visits returns every target navigated to, oldest first.
func (h *History) Visits() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.visits...)
}
