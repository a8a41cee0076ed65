package search

import (
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// DocTypeRecord 求救记录文档类型
const DocTypeRecord = "sos"

func BuildIndexMapping(defaultAnalyzer string) *mapping.IndexMappingImpl {
	if defaultAnalyzer == "" {
		defaultAnalyzer = standard.Name
	}
	idx := mapping.NewIndexMapping()
	idx.DefaultAnalyzer = defaultAnalyzer
	idx.TypeField = "type"

	// 文本
	text := mapping.NewTextFieldMapping()
	text.Store = true
	text.Index = true
	text.Analyzer = defaultAnalyzer
	text.IncludeInAll = true
	text.IncludeTermVectors = true // 高亮更精准

	// 关键词
	kw := mapping.NewTextFieldMapping()
	kw.Store = true
	kw.Index = true
	kw.Analyzer = keyword.Name

	num := mapping.NewNumericFieldMapping()
	num.Store = true
	num.Index = true

	record := mapping.NewDocumentMapping()
	record.Dynamic = false
	record.AddFieldMappingsAt("message", text)
	record.AddFieldMappingsAt("severity", kw)
	record.AddFieldMappingsAt("kind", kw)
	record.AddFieldMappingsAt("timestamp", num)
	idx.AddDocumentMapping(DocTypeRecord, record)

	def := mapping.NewDocumentMapping()
	def.Dynamic = false
	idx.DefaultMapping = def
	return idx
}
