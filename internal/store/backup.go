package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

const (
	backupPrefix = "events-"
	backupSuffix = ".json"
)

// WriteBackup writes the events of s to a timestamped JSON document in dir
// and deletes the oldest backups beyond keep (keep <= 0 keeps everything).
// The document format is the one OpenFile reads, so a backup can be used
// directly as store.path.
func WriteBackup(ctx context.Context, s Store, dir string, keep int, now time.Time) (string, error) {
	events, err := s.List(ctx)
	if err != nil {
		return "", err
	}

	data, err := encodeDocument(events, now)
	if err != nil {
		return "", model.StoreFailure(err, "encode backup")
	}

	name := backupPrefix + now.UTC().Format("20060102T150405Z") + backupSuffix
	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return "", model.StoreFailure(err, "write backup")
	}

	if keep > 0 {
		if err := pruneBackups(dir, keep); err != nil {
			appLog.Error("backup prune failed", err, "dir", dir)
		}
	}

	appLog.Info("backup written", "path", path, "event_count", len(events))
	return path, nil
}

// ListBackups returns backup file names in dir, oldest first.
func ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(n, backupPrefix) && strings.HasSuffix(n, backupSuffix) {
			names = append(names, n)
		}
	}
	// Timestamps are fixed-width, so lexical order is chronological.
	sort.Strings(names)
	return names, nil
}

func pruneBackups(dir string, keep int) error {
	names, err := ListBackups(dir)
	if err != nil {
		return err
	}
	for len(names) > keep {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return fmt.Errorf("remove %s: %w", names[0], err)
		}
		names = names[1:]
	}
	return nil
}
