// Package store reads and writes the JSON snapshots under a data root:
//
//	game/game.json            {"current_event": 7, ...}
//	pool/gw/<gw>.json         candidate pool for a gameweek
//	squad/<name>.json         {"ids": [...]} or a bare id list
//	captaincy/<name>.json     {"members": [...]} or a bare member list
//	results/<kind>/<name>.json
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type JSONStore struct {
	Root string // e.g. "data"
}

func NewJSONStore(root string) *JSONStore {
	return &JSONStore{Root: root}
}

func (s *JSONStore) Path(rel string) string {
	return filepath.Join(s.Root, rel)
}

func (s *JSONStore) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// WriteRaw stores body as-is, or re-indented when pretty is set and body is
// valid JSON. Key order from the feed is preserved.
func (s *JSONStore) WriteRaw(rel string, body []byte, pretty bool) error {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(rel), err)
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err == nil {
			buf.WriteByte('\n')
			body = buf.Bytes()
		}
	}
	return os.WriteFile(path, body, 0o644)
}

func (s *JSONStore) ReadRaw(rel string) ([]byte, error) {
	b, err := os.ReadFile(s.Path(rel))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return b, err
}

// WriteJSON marshals v with two-space indentation and a trailing newline.
func (s *JSONStore) WriteJSON(rel string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return s.WriteRaw(rel, append(b, '\n'), false)
}

func (s *JSONStore) ReadJSON(rel string, v any) error {
	b, err := s.ReadRaw(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", rel, err)
	}
	return nil
}
