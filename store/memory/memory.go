// Package memory is an in-process implementation of every relational
// contract in the module. It enforces the same uniqueness and
// single-winner rules as store/postgres and is meant for tests, examples
// and single-node development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickymta/volcanion-auth/account"
	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

var (
	_ permission.Store      = (*Store)(nil)
	_ tokenstore.Repository = (*Store)(nil)
	_ account.Provider      = (*Store)(nil)
)

// Store guards all tables with one mutex, so every method is atomic.
type Store struct {
	mu sync.Mutex

	accounts map[string]account.Account

	roles       map[string]permission.Role
	permissions map[string]permission.Permission
	edges       map[string]permission.Edge
	grants      []permission.Grant

	refresh map[string]tokenstore.Record
	oneTime map[string]tokenstore.OneTimeToken
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:    make(map[string]account.Account),
		roles:       make(map[string]permission.Role),
		permissions: make(map[string]permission.Permission),
		edges:       make(map[string]permission.Edge),
		refresh:     make(map[string]tokenstore.Record),
		oneTime:     make(map[string]tokenstore.OneTimeToken),
	}
}

// PutAccount inserts or replaces an account. Emails are stored normalized.
func (s *Store) PutAccount(a account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Email = account.NormalizeEmail(a.Email)
	s.accounts[a.ID] = a
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = account.NormalizeEmail(email)
	for _, a := range s.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return account.Account{}, store.ErrNotFound
}

func (s *Store) AccountByID(ctx context.Context, id string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	a.PasswordHash = hash
	s.accounts[id] = a
	return nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %s", store.ErrNotFound, id)
	}
	a.EmailVerified = true
	s.accounts[id] = a
	return nil
}
