// Package memstore is an in-process remote.Store used by tests and local
// development. It keeps deep copies of every document and can inject faults.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/caresync/internal/remote"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Op names a Store operation for fault injection and call counting.
type Op string

const (
	OpQuery  Op = "query"
	OpGet    Op = "get"
	OpCommit Op = "commit"
	OpDelete Op = "delete"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]*remote.Document
	faults      map[Op][]error
	calls       map[Op]int
	serverReads int

	// DropDeletes makes Delete report success without removing anything.
	DropDeletes bool
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]*remote.Document),
		faults:      make(map[Op][]error),
		calls:       make(map[Op]int),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Calls reports how many times op was invoked, failed calls included.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ServerReads reports how many Get calls forced a server read.
func (s *Store) ServerReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverReads
}

// Put stores doc as is, replacing any existing document.
func (s *Store) Put(collection string, doc *remote.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[doc.ID] = copyDocument(doc)
}

// Snapshot returns a copy of the stored document, or nil.
func (s *Store) Snapshot(collection, id string) *remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDocument(s.collections[collection][id])
}

// Len reports the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *Store) Query(ctx context.Context, q remote.Query) ([]*remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpQuery); err != nil {
		return nil, err
	}

	var matched []*remote.Document
	for _, doc := range s.collections[q.Collection] {
		if doc.UpdatedAt == nil {
			continue
		}
		if q.From != nil && remote.Compare(doc.UpdatedAt, q.From) < 0 {
			continue
		}
		if q.StartAfter != nil && !q.StartAfter.Before(doc.UpdatedAt, doc.ID) {
			continue
		}
		matched = append(matched, doc)
	}

	sort.Slice(matched, func(i, j int) bool {
		if c := remote.Compare(matched[i].UpdatedAt, matched[j].UpdatedAt); c != 0 {
			return c < 0
		}
		return matched[i].ID < matched[j].ID
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*remote.Document, len(matched))
	for i, doc := range matched {
		out[i] = copyDocument(doc)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, collection, id string, src remote.Source) (*remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == remote.Server {
		s.serverReads++
	}
	if err := s.enter(ctx, OpGet); err != nil {
		return nil, err
	}
	return copyDocument(s.collections[collection][id]), nil
}

func (s *Store) Commit(ctx context.Context, collection string, writes []remote.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCommit); err != nil {
		return err
	}
	if len(writes) > remote.MaxBatchWrites {
		return remote.ErrBatchTooLarge
	}

	docs := s.collection(collection)
	for _, w := range writes {
		doc, ok := docs[w.ID]
		if !ok {
			doc = &remote.Document{ID: w.ID, Fields: make(map[string]any)}
			docs[w.ID] = doc
		}
		v := w.Version
		doc.Version = &v
		doc.UpdatedAt = cloneTimestamp(w.UpdatedAt)
		for k, val := range w.Fields {
			doc.Fields[k] = copyValue(val)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDelete); err != nil {
		return err
	}
	if !s.DropDeletes {
		delete(s.collections[collection], id)
	}
	return nil
}

// enter counts the call and pops a queued fault. Callers hold mu.
func (s *Store) enter(ctx context.Context, op Op) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if q := s.faults[op]; len(q) > 0 {
		s.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Store) collection(name string) map[string]*remote.Document {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*remote.Document)
		s.collections[name] = c
	}
	return c
}

func copyDocument(doc *remote.Document) *remote.Document {
	if doc == nil {
		return nil
	}
	out := &remote.Document{
		ID:        doc.ID,
		UpdatedAt: cloneTimestamp(doc.UpdatedAt),
		Fields:    make(map[string]any, len(doc.Fields)),
	}
	if doc.Version != nil {
		v := *doc.Version
		out.Version = &v
	}
	for k, v := range doc.Fields {
		out.Fields[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case *timestamppb.Timestamp:
		return cloneTimestamp(t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = copyValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = copyValue(val)
		}
		return s
	default:
		return v
	}
}

func cloneTimestamp(ts *timestamppb.Timestamp) *timestamppb.Timestamp {
	if ts == nil {
		return nil
	}
	return proto.Clone(ts).(*timestamppb.Timestamp)
}
