package premium

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types"
	"gopkg.in/yaml.v3"
)

// Memory keeps premium users in process memory.
type Memory struct {
	mu    sync.RWMutex
	users map[string]Entry
	now   func() time.Time
}

func NewMemory(entries ...Entry) *Memory {
	m := &Memory{users: make(map[string]Entry), now: time.Now}
	for _, e := range entries {
		if n := NormalizeNumber(e.Number); n != "" {
			e.Number = n
			m.users[n] = e
		}
	}
	return m
}

type seedFile struct {
	Users []Entry `yaml:"users"`
}

// LoadFile seeds a Memory store from a YAML file:
//
//	users:
//	  - number: "923001234567"
//	  - number: "+52 1 55 1234 5678"
//	    expires_at: 2026-12-31T00:00:00Z
//
// A missing file gives an empty store.
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMemory(), nil
	} else if err != nil {
		return nil, fmt.Errorf("read premium file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse premium file %s: %w", path, err)
	}
	return NewMemory(seed.Users...), nil
}

func (m *Memory) IsPremium(_ context.Context, sender types.JID) (bool, error) {
	n := Normalize(sender)
	if n == "" {
		return false, nil
	}
	m.mu.RLock()
	e, ok := m.users[n]
	m.mu.RUnlock()
	return ok && e.Active(m.now()), nil
}

func (m *Memory) Add(_ context.Context, e Entry) error {
	e.Number = NormalizeNumber(e.Number)
	if e.Number == "" {
		return fmt.Errorf("invalid premium number")
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = m.now()
	}
	m.mu.Lock()
	m.users[e.Number] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, number string) error {
	n := NormalizeNumber(number)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[n]; !ok {
		return ErrNotFound
	}
	delete(m.users, n)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.users))
	for _, e := range m.users {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
