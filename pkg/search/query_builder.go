package search

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	q "github.com/blevesearch/bleve/v2/search/query"
)

func buildQuery(req SearchRequest, defaultFields []string) q.Query {
	var must, mustNot []q.Query

	// 关键字按字段 OR；用 MatchQuery 避免用户输入被当作 query string 语法
	if kw := strings.TrimSpace(req.Keyword); kw != "" {
		fields := req.SearchFields
		if len(fields) == 0 {
			fields = defaultFields
		}
		if len(fields) == 0 {
			must = append(must, bleve.NewMatchQuery(kw))
		} else {
			alts := make([]q.Query, 0, len(fields))
			for _, f := range fields {
				mq := bleve.NewMatchQuery(kw)
				mq.SetField(f)
				alts = append(alts, mq)
			}
			must = append(must, bleve.NewDisjunctionQuery(alts...))
		}
	}

	// Term 等值过滤
	for f, vs := range req.MustTerms {
		if len(vs) == 1 {
			tq := bleve.NewTermQuery(vs[0])
			tq.SetField(f)
			must = append(must, tq)
		} else if len(vs) > 1 {
			qs := make([]q.Query, 0, len(vs))
			for _, v := range vs {
				tq := bleve.NewTermQuery(v)
				tq.SetField(f)
				qs = append(qs, tq)
			}
			must = append(must, bleve.NewDisjunctionQuery(qs...))
		}
	}
	for f, vs := range req.MustNotTerms {
		for _, v := range vs {
			tq := bleve.NewTermQuery(v)
			tq.SetField(f)
			mustNot = append(mustNot, tq)
		}
	}

	for _, r := range req.NumericRanges {
		rq := bleve.NewNumericRangeInclusiveQuery(rMin(r), rMax(r), boolPtr(r.GT == nil), boolPtr(r.LT == nil))
		rq.SetField(r.Field)
		must = append(must, rq)
	}

	if len(must) == 0 && len(mustNot) == 0 {
		return bleve.NewMatchAllQuery()
	}
	boolQ := bleve.NewBooleanQuery()
	if len(must) > 0 {
		boolQ.AddMust(must...)
	}
	if len(mustNot) > 0 {
		if len(must) == 0 {
			boolQ.AddMust(bleve.NewMatchAllQuery())
		}
		boolQ.AddMustNot(mustNot...)
	}
	return boolQ
}

func rMin(n NumericRangeFilter) *float64 {
	if n.GT != nil {
		return n.GT
	}
	return n.GTE
}

func rMax(n NumericRangeFilter) *float64 {
	if n.LT != nil {
		return n.LT
	}
	return n.LTE
}

func boolPtr(b bool) *bool { return &b }
