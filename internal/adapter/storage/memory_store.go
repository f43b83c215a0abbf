package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rl1809/inventory-ledger/internal/port"
)

// Every failed commit means another transaction committed, so a budget above
// the number of concurrent writers on one document always succeeds.
const defaultMemoryTxAttempts = 128

var errMemoryConflict = errors.New("memory store: commit conflict")

type memoryRecord struct {
	data    []byte // nil marks a deleted document
	version uint64
}

// MemoryStore is an in-process DocumentStore with optimistic transactions:
// every document carries a version, reads inside a transaction remember it,
// and commit fails when any of them moved. Documents are kept serialized so
// readers see the same shapes as with the networked stores.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]memoryRecord
	seq         uint64
	maxAttempts int
}

var _ port.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore(maxAttempts int) *MemoryStore {
	if maxAttempts <= 0 {
		maxAttempts = defaultMemoryTxAttempts
	}
	return &MemoryStore{
		docs:        make(map[string]memoryRecord),
		maxAttempts: maxAttempts,
	}
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return retryTransaction(ctx, s.maxAttempts, isMemoryConflict, func() error {
		tx := &memoryTx{
			store:  s,
			reads:  make(map[string]uint64),
			writes: make(map[string][]byte),
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.commit(tx) {
			return errMemoryConflict
		}
		return nil
	})
}

func isMemoryConflict(err error) bool {
	return errors.Is(err, errMemoryConflict)
}

func (s *MemoryStore) commit(tx *memoryTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range tx.reads {
		if s.docs[id].version != version {
			return false
		}
	}
	for id, data := range tx.writes {
		s.seq++
		s.docs[id] = memoryRecord{data: data, version: s.seq}
	}
	return true
}

func (s *MemoryStore) read(id string) (memoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.docs[id]
	return rec, ok && rec.data != nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (port.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.read(id)
	if !ok {
		return nil, port.ErrDocumentNotFound
	}
	return unmarshalDocument(rec.data)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.docs[id]
	if !ok || rec.data == nil {
		return port.ErrDocumentNotFound
	}
	s.seq++
	s.docs[id] = memoryRecord{version: s.seq}
	return nil
}

func (s *MemoryStore) Where(ctx context.Context, field, value string) ([]port.Document, error) {
	if !port.IsIndexedField(field) {
		return nil, errUnsupportedField(field)
	}
	docs, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := docs[:0]
	for _, doc := range docs {
		if documentField(doc, field) == value {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryStore) Scan(ctx context.Context) ([]port.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	blobs := make(map[string][]byte, len(s.docs))
	for id, rec := range s.docs {
		if rec.data == nil {
			continue
		}
		ids = append(ids, id)
		blobs[id] = rec.data
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	out := make([]port.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := unmarshalDocument(blobs[id])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memoryTx struct {
	store  *MemoryStore
	reads  map[string]uint64
	writes map[string][]byte
}

func (tx *memoryTx) Get(ctx context.Context, id string) (port.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if data, ok := tx.writes[id]; ok {
		return unmarshalDocument(data)
	}

	rec, ok := tx.store.read(id)
	if _, seen := tx.reads[id]; !seen {
		tx.reads[id] = rec.version
	}
	if !ok {
		return nil, port.ErrDocumentNotFound
	}
	return unmarshalDocument(rec.data)
}

func (tx *memoryTx) Set(ctx context.Context, id string, doc port.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	tx.writes[id] = data
	return nil
}
