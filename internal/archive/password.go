package archive

import (
	"errors"
	"sync"

	"github.com/cubeice/ice/internal/engine"
)

// PasswordQuery asks the user for a password. cancel=true aborts the
// transaction.
type PasswordQuery interface {
	RequestPassword() (value string, cancel bool)
}

// PasswordQueryFunc adapts a function to PasswordQuery.
type PasswordQueryFunc func() (string, bool)

func (f PasswordQueryFunc) RequestPassword() (string, bool) {
	return f()
}

// PasswordGuard resolves the password of one transaction. A preset password
// is used as is; otherwise the query is asked at most once and its answer is
// reused for every later encrypted entry, including a wrong one.
//
// Resolve is serialized. A query that calls back into the same guard
// deadlocks; codecs must not request a password from inside the query.
type PasswordGuard struct {
	mu     sync.Mutex
	preset string
	query  PasswordQuery

	asked     bool
	value     string
	cancelled bool
}

// NewPasswordGuard returns a guard. Both arguments are optional.
func NewPasswordGuard(preset string, query PasswordQuery) *PasswordGuard {
	return &PasswordGuard{preset: preset, query: query}
}

// Resolve returns the password, asking the query on first use.
func (g *PasswordGuard) Resolve() (string, error) {
	if g == nil {
		return "", engine.ErrPasswordRequired
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.preset != "" {
		return g.preset, nil
	}
	if !g.asked && g.query != nil {
		g.asked = true
		g.value, g.cancelled = g.query.RequestPassword()
	}
	switch {
	case g.cancelled:
		return "", engine.ErrCancelled
	case g.value == "":
		return "", engine.ErrPasswordRequired
	default:
		return g.value, nil
	}
}

// Asked reports whether the interactive query has been consulted.
func (g *PasswordGuard) Asked() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.asked
}

// engineAnswer adapts Resolve to the engine's (value, cancel) contract.
// A missing password is reported as an empty value so the codec raises
// ErrPasswordRequired itself.
func (g *PasswordGuard) engineAnswer() (string, bool) {
	value, err := g.Resolve()
	if errors.Is(err, engine.ErrCancelled) {
		return "", true
	}
	return value, false
}
