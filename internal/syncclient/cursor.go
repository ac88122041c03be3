package syncclient

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fyuneru/boxnet/errors"
	"github.com/fyuneru/boxnet/internal/model"
)

// cursorData is the on-disk sync_log.json shape (spec §6): one Cursor per
// sync kind.
type cursorData struct {
	DB     model.Cursor `json:"db"`
	Camera model.Cursor `json:"camera"`
	Person model.Cursor `json:"person"`
}

// Cursors guards cursorData with a single mutex per spec §5 ("Sync
// Cursor: one mutex covers the whole struct; held only for in-memory
// read/write, never across I/O").
type Cursors struct {
	mu   sync.Mutex
	data cursorData
}

// Get returns a copy of the cursor for kind.
func (c *Cursors) Get(kind model.SyncKind) model.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case model.SyncKindDB:
		return c.data.DB
	case model.SyncKindCamera:
		return c.data.Camera
	case model.SyncKindPerson:
		return c.data.Person
	default:
		return model.Cursor{}
	}
}

// Advance moves kind's cursor forward to (ts, id) if it is later, per
// spec §3's monotonicity invariant.
func (c *Cursors) Advance(kind model.SyncKind, row model.DeltaRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case model.SyncKindDB:
		c.data.DB.Advance(row.LastUpdate, row.ID)
	case model.SyncKindCamera:
		c.data.Camera.Advance(row.LastUpdate, row.ID)
	case model.SyncKindPerson:
		c.data.Person.Advance(row.LastUpdate, row.ID)
	}
}

// Reset zeroes kind's cursor (spec §4.7 ServerCmd/reset).
func (c *Cursors) Reset(kind model.SyncKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case model.SyncKindDB:
		c.data.DB = model.Cursor{}
	case model.SyncKindCamera:
		c.data.Camera = model.Cursor{}
	case model.SyncKindPerson:
		c.data.Person = model.Cursor{}
	}
}

func (c *Cursors) snapshot() cursorData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// LoadCursors reads sync_log.json from path. A missing file is not an
// error: a fresh node starts every cursor at zero.
func LoadCursors(path string) (*Cursors, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Cursors{}, nil
		}
		return nil, errors.Wrapf(err, "read cursor file %s", path)
	}
	var data cursorData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "parse cursor file %s", path)
	}
	return &Cursors{data: data}, nil
}

// Save writes c to path as pretty-printed JSON via a temp-file-then-rename
// so a crash mid-write never corrupts the previous cursor state, per
// SPEC_FULL.md's durability note for sync_log.json.
func (c *Cursors) Save(path string) error {
	body, err := json.MarshalIndent(c.snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal cursors")
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".sync_log-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp cursor file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "write temp cursor file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "close temp cursor file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename temp cursor file")
	}
	return nil
}
