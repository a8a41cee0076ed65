package search

import "time"

type Config struct {
	// IndexPath 为空时使用内存索引
	IndexPath           string
	DefaultAnalyzer     string
	DefaultSearchFields []string
	QueryTimeout        time.Duration
	BatchSize           int
}

type Doc struct {
	ID     string
	Type   string
	Fields map[string]any
}

// -------- 过滤器 --------
type NumericRangeFilter struct {
	Field   string
	GTE, GT *float64
	LTE, LT *float64
}

// Facet 聚合
type FacetRequest struct {
	Name  string // 返回名
	Field string // 字段
	Size  int    // Top N
}

type SearchRequest struct {
	// 关键字，按 SearchFields（或默认字段）匹配
	Keyword      string
	SearchFields []string

	// 结构化 Term
	MustTerms    map[string][]string
	MustNotTerms map[string][]string

	NumericRanges []NumericRangeFilter

	Facets []FacetRequest

	// 排序与分页
	SortBy []string
	From   int
	Size   int

	IncludeFields []string
	Highlight     bool
}

type Hit struct {
	ID        string
	Score     float64
	Fields    map[string]any
	Fragments map[string][]string
}

type FacetTerm struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type FacetResult struct {
	Total int
	Terms []FacetTerm
}

type SearchResult struct {
	Total  uint64
	Took   time.Duration
	Hits   []Hit
	Facets map[string]FacetResult
}
