package search

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

var ErrClosed = errors.New("search engine closed")

type Engine interface {
	Index(ctx context.Context, doc Doc) error
	IndexBatch(ctx context.Context, docs []Doc) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	Suggest(ctx context.Context, field, prefix string, size int) ([]string, error)
	Count() (uint64, error)
	Close() error
}

type bleveEngine struct {
	cfg           Config
	index         bleve.Index
	defaultFields []string
	mu            sync.RWMutex
	closed        bool
}

// New 打开或创建索引；IndexPath 为空时建内存索引
func New(cfg Config, m mapping.IndexMapping) (Engine, error) {
	be := &bleveEngine{cfg: cfg, defaultFields: cfg.DefaultSearchFields}

	var idx bleve.Index
	if cfg.IndexPath == "" {
		i, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, err
		}
		idx = i
	} else if _, err := os.Stat(cfg.IndexPath); err == nil {
		i, e := bleve.Open(cfg.IndexPath)
		if e != nil {
			return nil, e
		}
		idx = i
	} else if os.IsNotExist(err) {
		i, e := bleve.New(cfg.IndexPath, m)
		if e != nil {
			return nil, e
		}
		idx = i
	} else {
		return nil, err
	}
	be.index = idx
	return be, nil
}

func (e *bleveEngine) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *bleveEngine) withDeadline(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	c, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	ch := make(chan error, 1)
	go func() { ch <- fn(c) }()
	select {
	case <-c.Done():
		return c.Err()
	case err := <-ch:
		return err
	}
}

func docData(doc Doc) map[string]any {
	data := make(map[string]any, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		data[k] = v
	}
	if doc.Type != "" {
		data["type"] = doc.Type
	}
	return data
}

func (e *bleveEngine) Index(ctx context.Context, doc Doc) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withDeadline(ctx, e.cfg.QueryTimeout, func(ctx context.Context) error {
		return e.index.Index(doc.ID, docData(doc))
	})
}

func (e *bleveEngine) IndexBatch(ctx context.Context, docs []Doc) error {
	if err := e.guard(); err != nil {
		return err
	}
	bs := e.cfg.BatchSize
	if bs <= 0 {
		bs = 200
	}
	for i := 0; i < len(docs); i += bs {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + bs
		if end > len(docs) {
			end = len(docs)
		}
		b := e.index.NewBatch()
		for _, d := range docs[i:end] {
			if err := b.Index(d.ID, docData(d)); err != nil {
				return err
			}
		}
		if err := e.index.Batch(b); err != nil {
			return err
		}
	}
	return nil
}

func (e *bleveEngine) Delete(ctx context.Context, id string) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withDeadline(ctx, e.cfg.QueryTimeout, func(ctx context.Context) error {
		return e.index.Delete(id)
	})
}

func (e *bleveEngine) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if err := e.guard(); err != nil {
		return SearchResult{}, err
	}

	sr := bleve.NewSearchRequest(buildQuery(req, e.defaultFields))

	// 分页
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	sr.Size = req.Size
	sr.From = req.From

	if len(req.SortBy) > 0 {
		sr.SortBy(req.SortBy)
	}

	if len(req.IncludeFields) == 0 {
		sr.Fields = []string{"*"}
	} else {
		sr.Fields = req.IncludeFields
	}

	if req.Highlight {
		sr.Highlight = bleve.NewHighlightWithStyle("html")
	}

	if len(req.Facets) > 0 {
		sr.Facets = make(map[string]*bleve.FacetRequest, len(req.Facets))
		for _, f := range req.Facets {
			size := f.Size
			if size <= 0 {
				size = 10
			}
			sr.Facets[f.Name] = bleve.NewFacetRequest(f.Field, size)
		}
	}

	var res *bleve.SearchResult
	err := e.withDeadline(ctx, e.cfg.QueryTimeout, func(ctx context.Context) error {
		r, e2 := e.index.SearchInContext(ctx, sr)
		if e2 != nil {
			return e2
		}
		res = r
		return nil
	})
	if err != nil {
		return SearchResult{}, err
	}

	out := SearchResult{
		Total:  res.Total,
		Took:   res.Took,
		Hits:   make([]Hit, 0, len(res.Hits)),
		Facets: map[string]FacetResult{},
	}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{
			ID:        h.ID,
			Score:     h.Score,
			Fields:    h.Fields,
			Fragments: h.Fragments,
		})
	}
	for name, fr := range res.Facets {
		ft := FacetResult{Total: fr.Total}
		if fr.Terms != nil {
			for _, t := range fr.Terms.Terms() {
				ft.Terms = append(ft.Terms, FacetTerm{Term: t.Term, Count: t.Count})
			}
		}
		out.Facets[name] = ft
	}
	return out, nil
}

// Suggest 按前缀返回 field 的存储值，去重
func (e *bleveEngine) Suggest(ctx context.Context, field, prefix string, size int) ([]string, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 5
	}
	pq := bleve.NewPrefixQuery(prefix)
	pq.SetField(field)
	sr := bleve.NewSearchRequest(pq)
	sr.Size = size
	sr.Fields = []string{field}

	res, err := e.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(res.Hits))
	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		v, ok := hit.Fields[field].(string)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func (e *bleveEngine) Count() (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	return e.index.DocCount()
}

func (e *bleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}
