package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FSStore keeps summaries on the local filesystem.
type FSStore struct {
	root   string
	now    func() time.Time
	logger *zap.Logger
}

var _ Store = (*FSStore)(nil)

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithLogger reports files the store skips while listing.
func WithLogger(logger *zap.Logger) FSOption {
	return func(s *FSStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFSStore returns a store rooted at dir (typically "summaries").
func NewFSStore(dir string, opts ...FSOption) *FSStore {
	s := &FSStore{root: dir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FSStore) Exists(date time.Time, caseNumber string) (bool, error) {
	found, err := s.Lookup(date, caseNumber)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (s *FSStore) Lookup(date time.Time, caseNumber string) ([]Summary, error) {
	all, err := s.List(date)
	if err != nil {
		return nil, err
	}
	want := sanitizeCase(caseNumber)
	var found []Summary
	for _, sum := range all {
		if sanitizeCase(sum.CaseNumber) == want {
			found = append(found, sum)
		}
	}
	sortVersions(found)
	return found, nil
}

func (s *FSStore) Write(sum Summary) (string, error) {
	sum = normalize(sum)
	if err := validate(sum); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, RelPath(sum))

	// A key may live in only one category directory.
	other := sum
	other.Precedential = !sum.Precedential
	if _, err := os.Stat(filepath.Join(s.root, RelPath(other))); err == nil {
		return filepath.Join(s.root, RelPath(other)), ErrExists
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("store: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return path, ErrExists
		}
		return "", fmt.Errorf("store: create %s: %w", path, err)
	}
	if _, err := f.WriteString(sum.Text); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("store: close %s: %w", path, err)
	}

	// The summary file marks the key as processed, so it must not outlive a
	// failed sidecar write.
	if err := s.writeMeta(sum); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *FSStore) Replace(sum Summary) (string, error) {
	sum = normalize(sum)
	if err := validate(sum); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, RelPath(sum))
	if err := writeFileAtomic(path, []byte(sum.Text)); err != nil {
		return "", err
	}

	// The classification may have changed since the last run.
	other := sum
	other.Precedential = !sum.Precedential
	if err := os.Remove(filepath.Join(s.root, RelPath(other))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return path, fmt.Errorf("store: remove stale summary: %w", err)
	}

	if err := s.writeMeta(sum); err != nil {
		return path, err
	}
	return path, nil
}

func (s *FSStore) List(date time.Time) ([]Summary, error) {
	dateDir := filepath.Join(s.root, date.Format(dirDateLayout))

	var out []Summary
	for _, precedential := range []bool{true, false} {
		dir := filepath.Join(dateDir, Category(precedential))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("store: read %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
				continue
			}
			sum, err := s.load(dateDir, dir, entry.Name(), precedential)
			if err != nil {
				s.logger.Warn("skipping summary file",
					zap.String("path", filepath.Join(dir, entry.Name())),
					zap.Error(err))
				continue
			}
			out = append(out, sum)
		}
	}

	Sort(out)
	return out, nil
}

// load reads one summary file and merges its sidecar metadata when present.
// An unreadable sidecar is ignored; the file name still yields the key.
func (s *FSStore) load(dateDir, dir, name string, precedential bool) (Summary, error) {
	key, version, err := parseFileName(name)
	if err != nil {
		return Summary{}, err
	}
	path := filepath.Join(dir, name)
	text, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("store: read %s: %w", path, err)
	}

	sum := Summary{Key: key, Version: version}
	metaPath := filepath.Join(dateDir, metaDir, strings.TrimSuffix(name, ".txt")+".json")
	if err := readMeta(metaPath, &sum); err != nil {
		s.logger.Warn("ignoring summary metadata", zap.String("path", metaPath), zap.Error(err))
		sum = Summary{Key: key, Version: version}
	}

	// The file location is authoritative over the sidecar.
	sum.Date = key.Date
	sum.Version = version
	sum.Precedential = precedential
	if sum.CaseNumber == "" {
		sum.CaseNumber = key.CaseNumber
	}
	sum.Text = string(text)
	sum.Path = path
	return sum, nil
}

func readMeta(path string, sum *Summary) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, sum); err != nil {
		return fmt.Errorf("store: parse %s: %w", path, err)
	}
	return nil
}

func (s *FSStore) writeMeta(sum Summary) error {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.now()
	}
	raw, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	name := strings.TrimSuffix(FileName(sum.Key, sum.Version), ".txt") + ".json"
	path := filepath.Join(s.root, sum.Date.Format(dirDateLayout), metaDir, name)
	return writeFileAtomic(path, raw)
}

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: rename into %s: %w", path, err)
	}
	return nil
}

func sortVersions(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Version < summaries[j].Version
	})
}
