package indexer

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"lukechampine.com/blake3"

	"nftmarket/core/events"
	"nftmarket/core/types"
)

// ErrChainBroken is returned by Verify when a stored fingerprint does not
// match the recomputed one.
var ErrChainBroken = errors.New("indexer: fingerprint chain broken")

// Entry is one indexed event.
type Entry struct {
	ID          int64             `json:"id"`
	Type        string            `json:"type"`
	Market      string            `json:"market,omitempty"`
	OfferingID  uint64            `json:"offeringId,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Fingerprint string            `json:"fingerprint"`
	RecordedAt  time.Time         `json:"recordedAt"`
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Type       string
	Market     string
	OfferingID uint64
	AfterID    int64
	Limit      int
}

// Index persists committed events in SQLite. Each row carries a blake3
// fingerprint chained to the previous row so the log is tamper-evident.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu   sync.Mutex
	last [32]byte
}

// Open opens or creates the index at path. ":memory:" keeps it in process.
func Open(path string) (*Index, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("indexer: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	idx := &Index{db: db, logger: slog.Default(), nowFn: time.Now}
	if err := idx.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// SetLogger overrides the logger used to report failed appends.
func (i *Index) SetLogger(logger *slog.Logger) {
	if logger != nil {
		i.logger = logger
	}
}

func (i *Index) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            market TEXT NOT NULL DEFAULT '',
            offering_id INTEGER NOT NULL DEFAULT 0,
            attributes TEXT NOT NULL,
            fingerprint TEXT NOT NULL,
            recorded_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_offering ON events(market, offering_id);`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
	}
	for _, stmt := range stmts {
		if _, err := i.db.Exec(stmt); err != nil {
			return err
		}
	}
	var fingerprint string
	err := i.db.QueryRow(`SELECT fingerprint FROM events ORDER BY id DESC LIMIT 1`).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	raw, err := hex.DecodeString(fingerprint)
	if err != nil || len(raw) != len(i.last) {
		return fmt.Errorf("indexer: corrupt fingerprint %q", fingerprint)
	}
	copy(i.last[:], raw)
	return nil
}

// Close releases the database handle.
func (i *Index) Close() error { return i.db.Close() }

// Emit implements events.Emitter. Failures are logged, never propagated, as
// the state transition that produced the event has already committed.
func (i *Index) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if rendered == nil {
		return
	}
	if _, err := i.Append(context.Background(), rendered); err != nil {
		i.logger.Error("index event",
			slog.String("type", rendered.Type),
			slog.Any("error", err))
	}
}

func canonical(evt *types.Event) []byte {
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(evt.Type)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[k])
	}
	return []byte(b.String())
}

func chain(prev [32]byte, evt *types.Event) [32]byte {
	buf := append(prev[:], canonical(evt)...)
	return blake3.Sum256(buf)
}

// Append stores evt and returns the indexed entry.
func (i *Index) Append(ctx context.Context, evt *types.Event) (Entry, error) {
	if evt == nil {
		return Entry{}, fmt.Errorf("indexer: nil event")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return Entry{}, err
	}
	var offeringID uint64
	if raw := attrs["offeringId"]; raw != "" {
		if offeringID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return Entry{}, fmt.Errorf("indexer: offeringId %q: %w", raw, err)
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	fingerprint := chain(i.last, &types.Event{Type: evt.Type, Attributes: attrs})
	recorded := i.nowFn().UTC()
	res, err := i.db.ExecContext(ctx,
		`INSERT INTO events(type, market, offering_id, attributes, fingerprint, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		evt.Type, attrs["market"], int64(offeringID), string(encoded), hex.EncodeToString(fingerprint[:]), recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("indexer: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, err
	}
	i.last = fingerprint
	return Entry{
		ID:          id,
		Type:        evt.Type,
		Market:      attrs["market"],
		OfferingID:  offeringID,
		Attributes:  attrs,
		Fingerprint: hex.EncodeToString(fingerprint[:]),
		RecordedAt:  recorded,
	}, nil
}

// Query returns entries matching f in insertion order.
func (i *Index) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []interface{}
	)
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Market != "" {
		clauses = append(clauses, "market = ?")
		args = append(args, f.Market)
	}
	if f.OfferingID != 0 {
		clauses = append(clauses, "offering_id = ?")
		args = append(args, int64(f.OfferingID))
	}
	if f.AfterID > 0 {
		clauses = append(clauses, "id > ?")
		args = append(args, f.AfterID)
	}
	query := `SELECT id, type, market, offering_id, attributes, fingerprint, recorded_at FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			entry    Entry
			offering int64
			attrs    string
		)
		if err := rows.Scan(&entry.ID, &entry.Type, &entry.Market, &offering, &attrs, &entry.Fingerprint, &entry.RecordedAt); err != nil {
			return nil, err
		}
		entry.OfferingID = uint64(offering)
		if err := json.Unmarshal([]byte(attrs), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("indexer: decode attributes of %d: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Verify recomputes the fingerprint chain over every stored entry.
func (i *Index) Verify(ctx context.Context) error {
	entries, err := i.Query(ctx, Filter{})
	if err != nil {
		return err
	}
	var prev [32]byte
	for _, entry := range entries {
		expected := chain(prev, &types.Event{Type: entry.Type, Attributes: entry.Attributes})
		if hex.EncodeToString(expected[:]) != entry.Fingerprint {
			return fmt.Errorf("%w at entry %d", ErrChainBroken, entry.ID)
		}
		prev = expected
	}
	return nil
}
