package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"batch-delete/pkg/model"
)

// FileName returns the export file name for an envelope written at t.
func FileName(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return "audit-log-" + strings.ReplaceAll(ts, ":", "-") + ".json"
}

// WriteEnvelope writes env into dir atomically and returns the file path.
func WriteEnvelope(dir string, env model.SignedAuditEnvelope, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create audit dir: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	data = append(data, '\n')
	path := filepath.Join(dir, FileName(now))
	tmp, err := os.CreateTemp(dir, ".audit-log-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write envelope: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close envelope: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename envelope: %w", err)
	}
	return path, nil
}

// ReadEnvelope loads an envelope written by WriteEnvelope.
func ReadEnvelope(path string) (model.SignedAuditEnvelope, error) {
	var env model.SignedAuditEnvelope
	data, err := os.ReadFile(path)
	if err != nil {
		return env, fmt.Errorf("read envelope: %w", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("parse envelope %s: %w", path, err)
	}
	return env, nil
}
