package store

import (
	"path/filepath"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same create-if-absent semantics
// as FSStore. It is meant for tests and dry runs.
type MemStore struct {
	mu    sync.Mutex
	root  string
	items map[string]Summary
	now   func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		root:  "summaries",
		items: make(map[string]Summary),
		now:   time.Now,
	}
}

func (m *MemStore) Exists(date time.Time, caseNumber string) (bool, error) {
	found, _ := m.Lookup(date, caseNumber)
	return len(found) > 0, nil
}

func (m *MemStore) Lookup(date time.Time, caseNumber string) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := sanitizeCase(caseNumber)
	var found []Summary
	for _, sum := range m.items {
		if SameDay(sum.Date, date) && sanitizeCase(sum.CaseNumber) == want {
			found = append(found, sum)
		}
	}
	sortVersions(found)
	return found, nil
}

func (m *MemStore) Write(sum Summary) (string, error) {
	sum = normalize(sum)
	if err := validate(sum); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rel := RelPath(sum)
	if _, ok := m.items[rel]; ok {
		return filepath.Join(m.root, rel), ErrExists
	}
	other := sum
	other.Precedential = !sum.Precedential
	if _, ok := m.items[RelPath(other)]; ok {
		return filepath.Join(m.root, RelPath(other)), ErrExists
	}

	return m.put(rel, sum), nil
}

func (m *MemStore) Replace(sum Summary) (string, error) {
	sum = normalize(sum)
	if err := validate(sum); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	other := sum
	other.Precedential = !sum.Precedential
	delete(m.items, RelPath(other))
	return m.put(RelPath(sum), sum), nil
}

func (m *MemStore) List(date time.Time) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Summary
	for _, sum := range m.items {
		if SameDay(sum.Date, date) {
			out = append(out, sum)
		}
	}
	Sort(out)
	return out, nil
}

// Len returns the number of stored summary files.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemStore) put(rel string, sum Summary) string {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = m.now()
	}
	sum.Path = filepath.Join(m.root, rel)
	m.items[rel] = sum
	return sum.Path
}
