// Package storage persists the console's local history: every submission
// attempt and the last selected sub-account per wallet and network.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/uhyunpark/driftdesk/pkg/util"
)

// Entry is one submission attempt
type Entry struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Network    string    `json:"network"`
	Authority  string    `json:"authority"`
	SubAccount uint16    `json:"subAccount"`
	Op         string    `json:"op"` // place_order, deposit, withdraw, create_sub_account
	Detail     string    `json:"detail,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// OK reports whether the submission was accepted
func (e *Entry) OK() bool { return e.Signature != "" && e.ErrorKind == "" }

type Journal struct {
	db    *pebble.DB
	clock util.Clock
}

func OpenJournal(path string, clock util.Clock) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Journal{db: db, clock: clock}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record stores e, assigning ID and Time when unset
func (j *Journal) Record(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = j.clock.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	key := txKey(e.Network, e.Authority, e.Time.UnixNano(), e.ID)
	if err := j.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for the wallet, newest first
func (j *Journal) Recent(network, authority string, limit int) ([]*Entry, error) {
	prefix := txPrefix(network, authority)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var entries []*Entry
	for iter.Last(); iter.Valid() && (limit <= 0 || len(entries) < limit); iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue // Skip invalid entries
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// SaveSelection remembers the selected sub-account
func (j *Journal) SaveSelection(network, authority string, subAccountID uint16) error {
	var val [2]byte
	binary.BigEndian.PutUint16(val[:], subAccountID)
	if err := j.db.Set(selectionKey(network, authority), val[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// LoadSelection returns the remembered selection, if any
func (j *Journal) LoadSelection(network, authority string) (uint16, bool, error) {
	val, closer, err := j.db.Get(selectionKey(network, authority))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get selection: %w", err)
	}
	defer closer.Close()
	if len(val) != 2 {
		return 0, false, fmt.Errorf("corrupt selection value: %d bytes", len(val))
	}
	return binary.BigEndian.Uint16(val), true, nil
}
