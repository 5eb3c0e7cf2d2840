// Package localindex is a search.Indexer backed by embedded bleve indexes,
// one per index name. Writes are searchable as soon as they return, so
// Refresh has nothing to do. Index creation bodies written for
// Elasticsearch are ignored and bleve's dynamic mapping is used instead.
package localindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/blevesearch/bleve/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

type Indexer struct {
	mu      sync.Mutex
	dir     string
	indexes map[string]bleve.Index
	closed  bool
	log     zerolog.Logger
}

// New keeps indexes in memory when dir is empty, else under dir/<index>.
func New(dir string, log zerolog.Logger) *Indexer {
	return &Indexer{
		dir:     dir,
		indexes: make(map[string]bleve.Index),
		log:     log,
	}
}

func (x *Indexer) open(index string) (bleve.Index, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if idx, ok := x.indexes[index]; ok {
		return idx, nil
	}

	var (
		idx bleve.Index
		err error
	)
	if x.dir == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		path := filepath.Join(x.dir, index)
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			if err := os.MkdirAll(x.dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", x.dir, err)
			}
			idx, err = bleve.New(path, bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", index, err)
	}

	x.indexes[index] = idx
	return idx, nil
}

func (x *Indexer) Index(_ context.Context, rec types.IndexRecord) error {
	idx, err := x.open(rec.Index)
	if err != nil {
		return err
	}
	return x.write(idx, rec.ID, rec.Data)
}

// write indexes data and keeps its JSON source for later partial updates.
func (x *Indexer) write(idx bleve.Index, id string, data map[string]any) error {
	source, err := json.Marshal(data)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	if err := batch.Index(id, data); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	batch.SetInternal(sourceKey(id), source)
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	return nil
}

// Update merges top-level fields into the stored source and re-indexes it.
func (x *Indexer) Update(_ context.Context, rec types.IndexRecord) error {
	idx, err := x.open(rec.Index)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	source, err := idx.GetInternal(sourceKey(rec.ID))
	if err != nil {
		return err
	}
	if source == nil {
		return fmt.Errorf("update %s/%s: %w", rec.Index, rec.ID, search.ErrNotFound)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(source, &doc); err != nil {
		return fmt.Errorf("corrupt source for %s: %w", rec.ID, err)
	}
	for k, v := range rec.Data {
		doc[k] = v
	}
	return x.write(idx, rec.ID, doc)
}

func (x *Indexer) Delete(_ context.Context, index, id string) error {
	idx, err := x.open(index)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	batch.Delete(id)
	batch.DeleteInternal(sourceKey(id))
	return idx.Batch(batch)
}

func sourceKey(id string) []byte {
	return []byte("_source/" + id)
}

func (x *Indexer) Refresh(_ context.Context, index string) error {
	_, err := x.open(index)
	return err
}

func (x *Indexer) EnsureIndex(_ context.Context, index string, _ []byte) error {
	if _, err := x.open(index); err != nil {
		return err
	}
	x.log.Debug().Str("index", index).Msg("local index ready")
	return nil
}

// Get returns the stored fields of a document.
func (x *Indexer) Get(ctx context.Context, index, id string) (map[string]any, bool, error) {
	idx, err := x.open(index)
	if err != nil {
		return nil, false, err
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{"*"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("search failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return nil, false, nil
	}
	return res.Hits[0].Fields, true, nil
}

func (x *Indexer) Count(index string) (uint64, error) {
	idx, err := x.open(index)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

func (x *Indexer) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	var result *multierror.Error
	for name, idx := range x.indexes {
		if err := idx.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", name, err))
		}
	}
	x.indexes = map[string]bleve.Index{}
	x.closed = true
	return result.ErrorOrNil()
}
