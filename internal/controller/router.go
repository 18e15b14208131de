package controller

import (
	"strings"
	"sync"

	"github.com/matheus3301/layover/internal/bus"
)

// Screen paths.
const (
	HomePath     = "/"
	ChatPrefix   = "/chat/"
	RequestsPath = "/requests"
)

// Router holds the current screen path. It satisfies listeners.Navigator.
type Router struct {
	bus *bus.Bus

	mu        sync.Mutex
	path      string
	observers []func(string)
}

// NewRouter creates a router on the home path.
func NewRouter(b *bus.Bus) *Router {
	return &Router{bus: b, path: HomePath}
}

// Navigate moves to path and tells every observer, in registration order.
func (r *Router) Navigate(path string) {
	if path == "" {
		path = HomePath
	}
	r.mu.Lock()
	r.path = path
	observers := append([]func(string)(nil), r.observers...)
	r.mu.Unlock()

	r.bus.Emit(bus.KindNavigated, path)
	for _, fn := range observers {
		fn(path)
	}
}

// CurrentPath returns the path last navigated to.
func (r *Router) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Observe registers fn for every later navigation.
func (r *Router) Observe(fn func(path string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// ChatPath returns the path of a conversation screen.
func ChatPath(conversationID string) string {
	return ChatPrefix + conversationID
}

// conversationOf extracts the conversation id of a chat path.
func conversationOf(path string) (string, bool) {
	id, ok := strings.CutPrefix(path, ChatPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func isRequests(path string) bool {
	return path == RequestsPath || strings.HasPrefix(path, RequestsPath+"/")
}
