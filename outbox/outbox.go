// Package outbox is the filesystem adapter the API layer polls for
// outbound MO payloads and uses to persist routed MT payloads (spec
// §4.2 "outbound file queue", §4.3 "SAVE_TO_FILE").
package outbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// KeepPolicy controls what happens to an outbound file once the
// engine has finished with it (spec §6 "keep_file_list").
type KeepPolicy int

const (
	// KeepNone deletes the file regardless of outcome.
	KeepNone KeepPolicy = iota
	// KeepOnFailure deletes on success, leaves the file in place on
	// failure so an operator can inspect it.
	KeepOnFailure
	// KeepMoveToSent moves successfully sent files into SentDir and
	// leaves failed ones in place.
	KeepMoveToSent
)

// Outbox scans Dir for outbound files in name order and reports the
// next one ready to send.
type Outbox struct {
	Dir     string
	SentDir string
	Keep    KeepPolicy
}

func New(dir, sentDir string, keep KeepPolicy) *Outbox {
	return &Outbox{Dir: dir, SentDir: sentDir, Keep: keep}
}

// Next returns the lexicographically first regular file in Dir, or
// ok=false if the directory is empty. Lexicographic order lets callers
// control send order with a numeric or timestamp filename prefix.
func (o *Outbox) Next() (path string, data []byte, ok bool, err error) {
	entries, err := os.ReadDir(o.Dir)
	if err != nil {
		return "", nil, false, fmt.Errorf("outbox: reading %s: %w", o.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if ent.Type().IsRegular() {
			names = append(names, ent.Name())
		}
	}
	if len(names) == 0 {
		return "", nil, false, nil
	}
	sort.Strings(names)
	path = filepath.Join(o.Dir, names[0])
	data, err = os.ReadFile(path)
	if err != nil {
		return "", nil, false, fmt.Errorf("outbox: reading %s: %w", path, err)
	}
	return path, data, true, nil
}

// Dispose applies Keep to a file the engine finished processing.
func (o *Outbox) Dispose(path string, succeeded bool) error {
	switch o.Keep {
	case KeepNone:
		return removeIfExists(path)
	case KeepOnFailure:
		if succeeded {
			return removeIfExists(path)
		}
		return nil
	case KeepMoveToSent:
		if !succeeded {
			return nil
		}
		if o.SentDir == "" {
			return removeIfExists(path)
		}
		if err := os.MkdirAll(o.SentDir, 0o755); err != nil {
			return fmt.Errorf("outbox: creating sent dir: %w", err)
		}
		dst := filepath.Join(o.SentDir, filepath.Base(path))
		if err := os.Rename(path, dst); err != nil {
			return fmt.Errorf("outbox: moving %s to %s: %w", path, dst, err)
		}
		return nil
	default:
		return nil
	}
}

// MoveToError relocates path into errDir once the caller has exhausted
// its send retries (spec §4.2 "move the file to an error subdir"). If
// the move fails the file is removed instead, so a jammed outbox entry
// can never block the queue indefinitely.
func MoveToError(path, errDir string) error {
	if err := os.MkdirAll(errDir, 0o755); err != nil {
		return removeIfExists(path)
	}
	dst := filepath.Join(errDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return removeIfExists(path)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("outbox: removing %s: %w", path, err)
	}
	return nil
}

// SaveMT writes a routed MT payload to path, creating parent
// directories as needed (the destination mtroute.Router.Route already
// picked).
func SaveMT(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("outbox: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("outbox: writing %s: %w", path, err)
	}
	return nil
}
