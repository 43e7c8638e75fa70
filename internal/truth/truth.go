package truth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Source answers whether the externally tracked task behind a bead is done.
type Source interface {
	Lookup(ctx context.Context, id string) (bool, error)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Ledger reads completion state from an externally owned JSON file. The file
// is re-read on every lookup because another process maintains it.
type Ledger struct {
	path string
}

// NewLedger constructs a ledger backed by the given file path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: strings.TrimSpace(path)}
}

type ledgerFile struct {
	Items map[string]ledgerEntry `json:"items"`
}

type ledgerEntry struct {
	Done bool `json:"done"`
}

// Lookup reports whether the ledger marks the id as done. A missing ledger
// file or a missing entry both mean not done, not an error: the ledger owner
// may simply not have written yet.
func (l *Ledger) Lookup(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("bead id is required")
	}
	if l.path == "" {
		return false, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read truth ledger: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return false, fmt.Errorf("parse truth ledger: %w", err)
	}
	entry, ok := file.Items[id]
	if !ok {
		return false, nil
	}
	return entry.Done, nil
}
