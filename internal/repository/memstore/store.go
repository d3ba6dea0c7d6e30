// Package memstore is an in-process implementation of the article, chunk and
// job repositories. Each article's chunk set is an immutable generation that
// is swapped in with a single map write under the store lock.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/service"
)

type jobEntry struct {
	job domain.EmbeddingJob
	seq int64
}

type generation struct {
	orgID  string
	chunks []domain.Chunk
}

type state struct {
	articles map[string]domain.Article
	jobs     map[string]jobEntry
	chunks   map[string]*generation
	seq      int64
}

func (s *state) clone() state {
	return state{
		articles: maps.Clone(s.articles),
		jobs:     maps.Clone(s.jobs),
		chunks:   maps.Clone(s.chunks),
		seq:      s.seq,
	}
}

// Store holds all state behind one RWMutex.
type Store struct {
	mu  sync.RWMutex
	st  state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: state{
			articles: make(map[string]domain.Article),
			jobs:     make(map[string]jobEntry),
			chunks:   make(map[string]*generation),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Articles() *ArticleRepository {
	return &ArticleRepository{view{store: s}}
}

func (s *Store) Jobs() *JobRepository {
	return &JobRepository{view{store: s}}
}

func (s *Store) Chunks() *ChunkRepository {
	return &ChunkRepository{view{store: s}}
}

// WithTx runs fn with exclusive access; state is restored if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(txRepos{view{store: s, inTx: true}}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type txRepos struct {
	v view
}

func (t txRepos) Articles() service.ArticleRepositoryInterface {
	return &ArticleRepository{t.v}
}

func (t txRepos) EmbeddingJobs() service.EmbeddingJobRepositoryInterface {
	return &JobRepository{t.v}
}

func (t txRepos) Chunks() service.VectorStore {
	return &ChunkRepository{t.v}
}

// view is shared by the repositories. Inside WithTx the lock is already held.
type view struct {
	store *Store
	inTx  bool
}

func (v view) write(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	return fn(&v.store.st)
}

func (v view) read(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.RLock()
		defer v.store.mu.RUnlock()
	}
	return fn(&v.store.st)
}

func (v view) now() time.Time {
	return v.store.now()
}
