package index

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("index is closed")

// Indexing is the index backend: it stores one Document per content node
// and answers type-scoped searches.
//
// Implementations must be safe for concurrent use. Writes submitted with a
// TransactionContext that reports InProgress are deferred until the
// transaction commits.
type Indexing interface {
	// UpdateIndex stores the current state of a node. The schemata supplies
	// the type closure recorded with the document.
	UpdateIndex(ctx context.Context, workspace string, key graph.NodeKey, path graph.Path,
		primaryType graph.Name, mixins []graph.Name, props map[graph.Name]ir.Value,
		schemata *queryir.Schemata, txn TransactionContext) error

	// RemoveFromIndex deletes a node's document. Removing an absent node is not an error.
	RemoveFromIndex(ctx context.Context, workspace string, key graph.NodeKey, txn TransactionContext) error

	// InitializedIndexes reports whether the index holds no documents, i.e.
	// it was freshly initialized and still needs a full reindex.
	InitializedIndexes() (bool, error)

	// Search returns the documents of the given workspaces whose type
	// closure contains nodeType, ordered by workspace then path.
	Search(ctx context.Context, workspaces []string, nodeType string) ([]Document, error)

	// Count returns the total number of documents.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Document is the indexed form of one content node.
type Document struct {
	Workspace   string
	Key         graph.NodeKey
	Path        graph.Path
	PrimaryType string
	Mixins      []string
	Types       []string // supertype closure of the primary type and mixins, sorted
	Properties  ir.Object
	Fingerprint string
}

// HasType reports whether the document's type closure contains nodeType.
func (d Document) HasType(nodeType string) bool {
	_, found := slices.BinarySearch(d.Types, nodeType)
	return found
}

// NewDocument assembles a document and computes its fingerprint.
func NewDocument(workspace string, key graph.NodeKey, path graph.Path, primaryType graph.Name,
	mixins []graph.Name, props map[graph.Name]ir.Value, schemata *queryir.Schemata) (Document, error) {

	if schemata == nil {
		schemata = queryir.DefaultSchemata()
	}

	doc := Document{
		Workspace:   workspace,
		Key:         key,
		Path:        path,
		PrimaryType: string(primaryType),
		Mixins:      make([]string, len(mixins)),
		Properties:  make(ir.Object, len(props)),
	}
	typeSet := map[string]bool{}
	for _, t := range schemata.Supertypes(string(primaryType)) {
		typeSet[t] = true
	}
	for i, m := range mixins {
		doc.Mixins[i] = string(m)
		for _, t := range schemata.Supertypes(string(m)) {
			typeSet[t] = true
		}
	}
	for t := range typeSet {
		doc.Types = append(doc.Types, t)
	}
	sort.Strings(doc.Types)

	for k, v := range props {
		doc.Properties[string(k)] = v
	}

	fp, err := ir.DocumentFingerprint(ir.Object{
		"workspace":   ir.String(workspace),
		"path":        ir.String(path.String()),
		"primaryType": ir.String(doc.PrimaryType),
		"mixins":      stringList(doc.Mixins),
		"properties":  doc.Properties,
	})
	if err != nil {
		return Document{}, err
	}
	doc.Fingerprint = fp
	return doc, nil
}

func stringList(ss []string) ir.List {
	out := make(ir.List, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Workspace != docs[j].Workspace {
			return docs[i].Workspace < docs[j].Workspace
		}
		return docs[i].Path.String() < docs[j].Path.String()
	})
}
