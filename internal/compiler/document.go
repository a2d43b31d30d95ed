package compiler

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/arbor/internal/queryir"
)

// Document is a compiled CUE file of node types and named queries:
//
//	nodeTypes: { ... }
//	query: "by-title": { ... }
//
// Both sections are optional.
type Document struct {
	NodeTypes []queryir.NodeType
	Queries   []*Query
}

// CompileFile reads and compiles a CUE document.
func CompileFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return CompileBytes(path, data)
}

// CompileBytes compiles CUE source; filename is used in error positions.
func CompileBytes(filename string, data []byte) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{}

	if typesVal := v.LookupPath(cue.ParsePath("nodeTypes")); typesVal.Exists() {
		types, err := CompileNodeTypes(typesVal)
		if err != nil {
			return nil, err
		}
		doc.NodeTypes = types
	}

	if queriesVal := v.LookupPath(cue.ParsePath("query")); queriesVal.Exists() {
		iter, err := queriesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			q, err := CompileQuery(iter.Value())
			if err != nil {
				return nil, err
			}
			doc.Queries = append(doc.Queries, q)
		}
		sort.SliceStable(doc.Queries, func(i, j int) bool { return doc.Queries[i].Name < doc.Queries[j].Name })
	}

	return doc, nil
}

// Schemata returns base extended by the document's node types.
func (d *Document) Schemata(base *queryir.Schemata) *queryir.Schemata {
	if base == nil {
		base = queryir.DefaultSchemata()
	}
	return base.With(d.NodeTypes...)
}

// Query returns the named query.
func (d *Document) Query(name string) (*Query, bool) {
	for _, q := range d.Queries {
		if q.Name == name {
			return q, true
		}
	}
	return nil, false
}

// Validate checks node types against base and every query against the
// resulting schemata.
func (d *Document) Validate(base *queryir.Schemata) []ValidationError {
	if base == nil {
		base = queryir.DefaultSchemata()
	}
	errs := ValidateNodeTypes(d.NodeTypes, base)
	return append(errs, ValidateQueries(d.Queries, d.Schemata(base))...)
}
