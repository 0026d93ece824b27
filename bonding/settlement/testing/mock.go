// Package testing provides in-memory settlement and authorization fakes used
// by unit tests and by the node when no real adapter is configured.
package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/types"
)

// Release records a single ReleaseFunds call.
type Release struct {
	LockRef     string
	Destination string
}

// MockSettler is a thread-safe in-memory Settler.
type MockSettler struct {
	mu        sync.Mutex
	seq       int
	locked    map[string]uint64
	releases  []Release
	policies  map[string]*types.ContextPolicy
	failLock  error
	failQuery error

	// FailReleases makes the next n ReleaseFunds calls fail, for retry tests.
	FailReleases int
}

// NewMockSettler returns a settler with no policies registered.
func NewMockSettler() *MockSettler {
	return &MockSettler{
		locked:   make(map[string]uint64),
		policies: make(map[string]*types.ContextPolicy),
	}
}

// SetPolicy registers the bonding policy for a context.
func (m *MockSettler) SetPolicy(contextID string, p *types.ContextPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[contextID] = p
}

// FailNextLock makes subsequent LockFunds calls return err until reset with nil.
func (m *MockSettler) FailNextLock(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLock = err
}

// FailNextQuery makes subsequent QueryPolicy calls return err until reset with nil.
func (m *MockSettler) FailNextQuery(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failQuery = err
}

// LockFunds escrows amount under a generated lock reference.
func (m *MockSettler) LockFunds(_ context.Context, amount uint64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLock != nil {
		return "", m.failLock
	}
	m.seq++
	ref := fmt.Sprintf("lock-%d", m.seq)
	m.locked[ref] = amount
	return ref, nil
}

// ReleaseFunds releases a lock to a destination.
func (m *MockSettler) ReleaseFunds(_ context.Context, lockRef, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReleases > 0 {
		m.FailReleases--
		return errors.New("settlement layer unreachable")
	}
	if _, ok := m.locked[lockRef]; !ok {
		return errors.Errorf("unknown lock ref %s", lockRef)
	}
	delete(m.locked, lockRef)
	m.releases = append(m.releases, Release{LockRef: lockRef, Destination: destination})
	return nil
}

// QueryPolicy returns the registered policy, or a default that requires no bond.
func (m *MockSettler) QueryPolicy(_ context.Context, contextID string) (*types.ContextPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failQuery != nil {
		return nil, m.failQuery
	}
	if p, ok := m.policies[contextID]; ok {
		cp := *p
		return &cp, nil
	}
	return &types.ContextPolicy{
		RequiresBond:    false,
		BaseMinimum:     0,
		TTL:             24 * time.Hour,
		ChallengeWindow: 24 * time.Hour,
	}, nil
}

// Releases returns a copy of all recorded releases.
func (m *MockSettler) Releases() []Release {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Release, len(m.releases))
	copy(out, m.releases)
	return out
}

// LockedAmount returns the amount held under lockRef, zero if released.
func (m *MockSettler) LockedAmount(lockRef string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked[lockRef]
}

// MockAuthorizer is an in-memory Authorizer with a static admin set.
type MockAuthorizer struct {
	mu     sync.Mutex
	admins map[string]map[string]bool // contextID -> actor set.
	fail   error
}

// NewMockAuthorizer returns an authorizer with no admins registered.
func NewMockAuthorizer() *MockAuthorizer {
	return &MockAuthorizer{admins: make(map[string]map[string]bool)}
}

// AddAdmin grants actor admin rights over contextID.
func (m *MockAuthorizer) AddAdmin(contextID, actor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admins[contextID] == nil {
		m.admins[contextID] = make(map[string]bool)
	}
	m.admins[contextID][actor] = true
}

// FailNext makes subsequent calls return err until reset with nil.
func (m *MockAuthorizer) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// AuthorizeAdmin reports whether actor is in the context's admin set.
func (m *MockAuthorizer) AuthorizeAdmin(_ context.Context, contextID, actor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	return m.admins[contextID][actor], nil
}

// CertifyWitness returns a deterministic fake proof.
func (m *MockAuthorizer) CertifyWitness(_ context.Context, circuitName string, witness []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	proof := append([]byte("proof:"+circuitName+":"), witness...)
	return proof, nil
}
