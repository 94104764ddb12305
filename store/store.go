// Package store archives documents in their detach-preserving form:
// a pebble database holds the JSON of every saved document next to an
// xxhash of the payload, and re-attach on load replays the embedded
// log so a tampered or torn archive never becomes a live document.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/drpcorg/zerkalo"
	"github.com/drpcorg/zerkalo/utils"
)

var (
	ErrDocUnknown     = errors.New("store: unknown document")
	ErrCorruptArchive = errors.New("store: corrupt archive record")
	ErrClosed         = errors.New("store: no archive open")
)

type Options struct {
	Logger       utils.Logger
	WriteOptions *pebble.WriteOptions
	Pebble       pebble.Options
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.WriteOptions == nil {
		o.WriteOptions = &pebble.WriteOptions{Sync: false}
	}
}

type Store struct {
	db   *pebble.DB
	dir  string
	opts Options
	log  utils.Logger

	// documents already re-attached in this process
	open *xsync.MapOf[uuid.UUID, *zerkalo.View]
}

func Open(dir string, opts Options) (*Store, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &opts.Pebble)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:   db,
		dir:  dir,
		opts: opts,
		log:  opts.Logger,
		open: xsync.NewMapOf[uuid.UUID, *zerkalo.View](),
	}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	s.open.Clear()
	return err
}

func DocKey(id uuid.UUID) []byte {
	key := make([]byte, 0, 1+16)
	key = append(key, 'D')
	return append(key, id[:]...)
}

func HashKey(id uuid.UUID) []byte {
	key := make([]byte, 0, 1+16)
	key = append(key, 'H')
	return append(key, id[:]...)
}

// New creates, registers and saves a fresh document.
func (s *Store) New(initial map[string]any) (uuid.UUID, *zerkalo.View, error) {
	v, err := zerkalo.Create(initial)
	if err != nil {
		return uuid.Nil, nil, err
	}
	id := uuid.Must(uuid.NewV7())
	if err := s.Save(id, v); err != nil {
		return uuid.Nil, nil, err
	}
	s.open.Store(id, v)
	return id, v, nil
}

// Save archives the document with its full history.
func (s *Store) Save(id uuid.UUID, v *zerkalo.View) error {
	if s.db == nil {
		return ErrClosed
	}
	plain, err := zerkalo.DetachPreserveVersionData(v)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return err
	}
	sum := binary.LittleEndian.AppendUint64(nil, xxhash.Sum64(raw))

	b := s.db.NewBatch()
	_ = b.Set(DocKey(id), raw, nil)
	_ = b.Set(HashKey(id), sum, nil)
	if err := s.db.Apply(b, s.opts.WriteOptions); err != nil {
		return err
	}
	s.log.Debug("store: saved", "id", id.String(), "bytes", len(raw))
	return nil
}

// Load re-attaches an archived document. The payload must match its
// stored hash, and the embedded log must replay to the live tree;
// either failure keeps the archive record dead.
func (s *Store) Load(id uuid.UUID) (*zerkalo.View, error) {
	if v, ok := s.open.Load(id); ok {
		return v, nil
	}
	if s.db == nil {
		return nil, ErrClosed
	}
	raw, err := s.get(DocKey(id))
	if err != nil {
		return nil, err
	}
	sum, err := s.get(HashKey(id))
	if err != nil {
		return nil, errors.Join(ErrCorruptArchive, err)
	}
	if len(sum) != 8 || binary.LittleEndian.Uint64(sum) != xxhash.Sum64(raw) {
		return nil, ErrCorruptArchive
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, errors.Join(ErrCorruptArchive, err)
	}
	v, err := zerkalo.Create(plain)
	if err != nil {
		return nil, err
	}
	s.open.Store(id, v)
	return v, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	val, clo, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrDocUnknown
		}
		return nil, err
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	_ = clo.Close()
	return cp, nil
}

// Forget drops the in-process registration; the archive record stays.
func (s *Store) Forget(id uuid.UUID) {
	s.open.Delete(id)
}

// List returns the ids of every archived document.
func (s *Store) List() (ids []uuid.UUID, err error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	io := pebble.IterOptions{
		LowerBound: []byte{'D'},
		UpperBound: []byte{'E'},
	}
	it, err := s.db.NewIter(&io)
	if err != nil {
		return nil, err
	}
	for it.First(); it.Valid(); it.Next() {
		key := it.Key()
		if len(key) != 1+16 {
			continue
		}
		var id uuid.UUID
		copy(id[:], key[1:])
		ids = append(ids, id)
	}
	err = it.Close()
	return
}
