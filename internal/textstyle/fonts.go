package textstyle

import (
	"strings"
	"sync"
)

// interns font family names into small integer ids.
// Ids are scoped to one registry; id 0 is never handed out.
type FontRegistry struct {
	mu    sync.Mutex
	ids   map[string]int
	names []string
}

func NewFontRegistry() *FontRegistry {
	return &FontRegistry{ids: make(map[string]int), names: []string{""}}
}

var defaultFonts = NewFontRegistry()

// registry used when callers pass nil
func DefaultFonts() *FontRegistry {
	return defaultFonts
}

// returns the id for name, registering it on first use
func (r *FontRegistry) ID(name string) int {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := len(r.names)
	r.names = append(r.names, strings.TrimSpace(name))
	r.ids[key] = id
	return id
}

// name registered for id, empty if unknown
func (r *FontRegistry) Name(id int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= 0 || id >= len(r.names) {
		return ""
	}
	return r.names[id]
}

func fontsOrDefault(r *FontRegistry) *FontRegistry {
	if r == nil {
		return defaultFonts
	}
	return r
}
