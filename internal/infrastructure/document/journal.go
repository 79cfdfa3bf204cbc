package document

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"qualtrack/internal/config"
)

const (
	journalBegin  = "begin"
	journalCommit = "commit"
)

// journalEntry is one JSON line of the placement journal
type journalEntry struct {
	Op          string    `json:"op"`
	ID          string    `json:"id"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Size        int64     `json:"size,omitempty"`
	At          time.Time `json:"at"`
}

// journal is an append-only log of moves in flight
type journal struct {
	path string
}

func newJournal(path string) *journal {
	return &journal{path: path}
}

// InterruptedMoves counts journaled moves that Recover has not settled yet.
// It only reads the journal, so it is safe while the service runs.
func InterruptedMoves(cfg *config.Config) (int, error) {
	open, err := newJournal(filepath.Join(cfg.Document.BasePath, cfg.Document.JournalFile)).pending()
	if err != nil {
		return 0, fmt.Errorf("failed to read placement journal: %w", err)
	}
	return len(open), nil
}

func (j *journal) append(e journalEntry) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	line, err := json.Marshal(e)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// begin records a move of size bytes from src to dst
func (j *journal) begin(src, dst string, size int64) (string, error) {
	id := uuid.NewString()
	return id, j.append(journalEntry{
		Op:          journalBegin,
		ID:          id,
		Source:      src,
		Destination: dst,
		Size:        size,
		At:          time.Now().UTC(),
	})
}

func (j *journal) commit(id string) error {
	return j.append(journalEntry{Op: journalCommit, ID: id, At: time.Now().UTC()})
}

// pending returns begun moves without a commit, in journal order
func (j *journal) pending() ([]journalEntry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var order []string
	open := make(map[string]journalEntry)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A torn last line from a crash mid-append carries no commitment.
			continue
		}
		switch e.Op {
		case journalBegin:
			open[e.ID] = e
			order = append(order, e.ID)
		case journalCommit:
			delete(open, e.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}

	var out []journalEntry
	for _, id := range order {
		if e, ok := open[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *journal) reset() error {
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
