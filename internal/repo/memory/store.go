// Package memory is an in-process implementation of the store contracts.
// It backs STORE_DRIVER=memory runs and the test suites.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/task"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/store"
)

type tables struct {
	seq int64

	users           map[int64]user.User
	tokens          map[string]user.Token
	roles           map[int64]rbac.Role
	permissions     map[int64]rbac.Permission
	userRoles       []rbac.UserRole
	rolePermissions []rbac.RolePermission
	tasks           map[int64]task.Task
}

func newTables() *tables {
	return &tables{
		users:       make(map[int64]user.User),
		tokens:      make(map[string]user.Token),
		roles:       make(map[int64]rbac.Role),
		permissions: make(map[int64]rbac.Permission),
		tasks:       make(map[int64]task.Task),
	}
}

func (t *tables) nextID() int64 {
	t.seq++
	return t.seq
}

func (t *tables) clone() *tables {
	c := &tables{
		seq:             t.seq,
		users:           make(map[int64]user.User, len(t.users)),
		tokens:          make(map[string]user.Token, len(t.tokens)),
		roles:           make(map[int64]rbac.Role, len(t.roles)),
		permissions:     make(map[int64]rbac.Permission, len(t.permissions)),
		userRoles:       slices.Clone(t.userRoles),
		rolePermissions: slices.Clone(t.rolePermissions),
		tasks:           make(map[int64]task.Task, len(t.tasks)),
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.tokens {
		c.tokens[k] = v
	}
	for k, v := range t.roles {
		c.roles[k] = v
	}
	for k, v := range t.permissions {
		c.permissions[k] = v
	}
	for k, v := range t.tasks {
		v.ExecutorIDs = slices.Clone(v.ExecutorIDs)
		c.tasks[k] = v
	}
	return c
}

// Store holds every table behind one lock. Writers also take txMu so that a
// transaction's snapshot cannot be overtaken by a concurrent write.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *tables
}

var _ store.TxRunner = (*Store)(nil)

func NewStore() *Store {
	return &Store{data: newTables()}
}

func (s *Store) Repos() store.Repos {
	return store.Repos{
		Users:  &UsersRepo{s: s},
		Tokens: &TokensRepo{s: s},
		RBAC:   &RBACRepo{s: s},
		Tasks:  &TasksRepo{s: s},
	}
}

// WithinTx runs fn against a private copy of the tables and swaps it in on
// success. Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(store.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	child := &Store{data: s.data.clone()}
	s.mu.RUnlock()

	if err := fn(child.Repos()); err != nil {
		return err
	}

	child.mu.Lock()
	committed := child.data
	child.mu.Unlock()

	s.mu.Lock()
	s.data = committed
	s.mu.Unlock()

	return nil
}

func (s *Store) read(fn func(t *tables) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(t *tables) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}
