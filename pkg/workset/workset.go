// Package workset persists the devices under consideration, and the audit
// entries not yet exported, between invocations.
package workset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"batch-delete/pkg/model"
)

const fileVersion = 1

// Set is the working set of items plus the buffered audit entries.
type Set struct {
	Version int                `json:"version"`
	Items   []*model.Item      `json:"items"`
	Audit   []model.AuditEntry `json:"audit,omitempty"`
}

// Load reads a working set. A missing file yields an empty set.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Set{Version: fileVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	var s Set
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Version > fileVersion {
		return nil, fmt.Errorf("%s: unsupported workset version %d", path, s.Version)
	}
	s.Version = fileVersion
	return &s, nil
}

// Save writes the set atomically.
func (s *Set) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	s.Version = fileVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".workset-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Replace swaps in a new list of items. Buffered audit entries are kept.
func (s *Set) Replace(items []*model.Item) {
	s.Items = items
}

// Filter returns the items matching pred.
func (s *Set) Filter(pred func(*model.Item) bool) []*model.Item {
	var out []*model.Item
	for _, it := range s.Items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Select sets the selection flag on items whose serial is listed, or on
// every item when serials is empty.
func (s *Set) Select(selected bool, serials ...string) int {
	want := map[string]bool{}
	for _, v := range serials {
		want[strings.ToUpper(strings.TrimSpace(v))] = true
	}
	n := 0
	for _, it := range s.Items {
		if len(want) == 0 || want[it.ID] {
			it.Selected = selected
			n++
		}
	}
	return n
}

// FromComputers turns a fetch result into selected items.
func FromComputers(computers []model.Computer) []*model.Item {
	out := make([]*model.Item, 0, len(computers))
	for _, c := range computers {
		it := &model.Item{
			ID:       strings.ToUpper(strings.TrimSpace(c.Serial)),
			Source:   model.SourceFetch,
			Selected: true,
		}
		it.Resolve(c)
		out = append(out, it)
	}
	return out
}
