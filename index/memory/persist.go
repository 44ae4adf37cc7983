package memory

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/c360/semindex/embedding"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    text TEXT,
    vector BLOB
);
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

// Exists reports whether a saved index is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Save persists the index to a SQLite database file at path. An existing
// file is replaced atomically from the caller's perspective: the write goes
// to a temporary file first.
func (ix *Index) Save(path string) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return errors.Wrap(err, "Memory", "Save", "open database")
	}

	if err := ix.write(db); err != nil {
		_ = db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "Memory", "Save", "close database")
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "Memory", "Save", "replace index file")
	}
	return nil
}

func (ix *Index) write(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "Memory", "Save", "create schema")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "Memory", "Save", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT INTO documents(id, text, vector) VALUES(?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Memory", "Save", "prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	ix.mu.RLock()
	entries := make([]entry, len(ix.entries))
	copy(entries, ix.entries)
	model := ix.embedder.Model()
	ix.mu.RUnlock()

	for _, e := range entries {
		key, err := encodeID(e.id)
		if err != nil {
			return errors.Wrap(err, "Memory", "Save", "encode id")
		}
		if _, err := stmt.Exec(key, e.text, encodeVector(e.vector)); err != nil {
			return errors.Wrap(err, "Memory", "Save", "insert document")
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key, value) VALUES('model', ?)`, model); err != nil {
		return errors.Wrap(err, "Memory", "Save", "write metadata")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "Memory", "Save", "commit")
	}
	return nil
}

// Load restores the index contents from a SQLite database file at path.
func (ix *Index) Load(path string) error {
	if !Exists(path) {
		return errors.Wrap(errors.ErrIndexNotFound, "Memory", "Load", "stat index file")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrap(err, "Memory", "Load", "open database")
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`SELECT id, text, vector FROM documents`)
	if err != nil {
		return errors.Wrap(err, "Memory", "Load", "query documents")
	}
	defer func() { _ = rows.Close() }()

	var entries []entry
	for rows.Next() {
		var key, text string
		var blob []byte
		if err := rows.Scan(&key, &text, &blob); err != nil {
			return errors.Wrap(err, "Memory", "Load", "scan row")
		}

		id, err := decodeID(key)
		if err != nil {
			return errors.Wrap(err, "Memory", "Load", "decode id")
		}
		vector, err := decodeVector(blob)
		if err != nil {
			return errors.Wrap(err, "Memory", "Load", "decode vector")
		}
		entries = append(entries, entry{id: id, text: text, vector: vector})
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "Memory", "Load", "iterate rows")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = nil
	ix.byID = make(map[any]int)
	ix.merge(entries)

	// Rebuild corpus statistics so a reloaded index scores queries like a
	// freshly built one
	if fitter, ok := ix.embedder.(embedding.Fitter); ok {
		corpus := make([]string, len(entries))
		for i, e := range entries {
			corpus[i] = e.text
		}
		fitter.Fit(corpus)
	}
	return nil
}

// encodeID serializes an id as JSON so its type survives the round trip.
func encodeID(id any) (string, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeID(key string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(key))
	decoder.UseNumber()

	var id any
	if err := decoder.Decode(&id); err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", key, err)
	}
	return index.NormalizeID(id), nil
}

// encodeVector packs float32 values as little-endian bytes.
func encodeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector, nil
}
