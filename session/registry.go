// Package session tracks the user identity attached to each live connection.
package session

import (
	"errors"
	"sync"

	"github.com/wizardin/chat-server/models"
)

var (
	// ErrDuplicateRegistration is returned when a connection that already has
	// a user tries to register again.
	ErrDuplicateRegistration = errors.New("connection already registered")

	// ErrNotFound is returned when no user is registered for a connection.
	ErrNotFound = errors.New("user not found")
)

// Registry maps connection ids to registered users. It is safe for use from
// multiple connection goroutines.
type Registry struct {
	mu    sync.RWMutex
	users map[string]models.User
	order []string // registration order, for stable snapshots
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]models.User),
	}
}

// Register attaches a user profile to a connection. A connection has at most
// one user; a second registration fails with ErrDuplicateRegistration and the
// original profile stays in place.
func (r *Registry) Register(connID string, profile models.JoinRequest) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[connID]; ok {
		return existing, ErrDuplicateRegistration
	}

	user := models.User{
		ID:       connID,
		Username: profile.Username,
		Avatar:   profile.Avatar,
		Status:   models.StatusOnline,
	}
	r.users[connID] = user
	r.order = append(r.order, connID)
	return user, nil
}

// Unregister removes the user for a connection and returns it, or ErrNotFound
// if the connection never registered.
func (r *Registry) Unregister(connID string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	delete(r.users, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return user, nil
}

// Lookup returns the user registered for a connection.
func (r *Registry) Lookup(connID string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// ListAll returns a snapshot of every registered user in registration order.
func (r *Registry) ListAll() []models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.users))
	for _, id := range r.order {
		users = append(users, r.users[id])
	}
	return users
}
