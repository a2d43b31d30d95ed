package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/arbor/internal/queryir"
)

// CompileNodeTypes parses a struct of node type definitions.
//
// Each field is one type, labelled with its name:
//
//	nodeTypes: {
//		"blog:post": {
//			supertypes: ["nt:hierarchyNode"]
//			properties: {
//				title:  string
//				rank:   int
//				author: "REFERENCE"
//			}
//		}
//		"mix:rated": {mixin: true, properties: stars: int}
//	}
//
// A property is declared either by a CUE kind (string, int, bool) or by a
// concrete property type name. Floats are rejected.
func CompileNodeTypes(v cue.Value) ([]queryir.NodeType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var types []queryir.NodeType
	for iter.Next() {
		nt, err := compileNodeType(unquote(iter.Selector().String()), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, nt)
	}
	return types, nil
}

func compileNodeType(name string, v cue.Value) (queryir.NodeType, error) {
	nt := queryir.NodeType{Name: name}

	supVal := v.LookupPath(cue.ParsePath("supertypes"))
	if supVal.Exists() {
		supIter, err := supVal.List()
		if err != nil {
			return nt, formatCUEError(err)
		}
		for supIter.Next() {
			sup, err := supIter.Value().String()
			if err != nil {
				return nt, formatCUEError(err)
			}
			nt.Supertypes = append(nt.Supertypes, sup)
		}
	}

	for field, dst := range map[string]*bool{"mixin": &nt.Mixin, "residual": &nt.Residual} {
		flag := v.LookupPath(cue.ParsePath(field))
		if !flag.Exists() {
			continue
		}
		b, err := flag.Bool()
		if err != nil {
			return nt, formatCUEError(err)
		}
		*dst = b
	}

	// Non-mixin types inherit from nt:base unless told otherwise.
	if !nt.Mixin && len(nt.Supertypes) == 0 {
		nt.Supertypes = []string{queryir.BaseTypeName}
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nt, nil
	}
	propIter, err := propsVal.Fields()
	if err != nil {
		return nt, formatCUEError(err)
	}
	nt.Properties = make(map[string]queryir.PropertyType)
	for propIter.Next() {
		prop := unquote(propIter.Selector().String())
		pt, err := extractPropertyType(propIter.Value())
		if err != nil {
			return nt, &CompileError{
				Field:   fmt.Sprintf("nodeTypes.%s.properties.%s", name, prop),
				Message: err.(*CompileError).Message,
				Pos:     propIter.Value().Pos(),
			}
		}
		nt.Properties[prop] = pt
	}
	return nt, nil
}

var propertyTypes = map[string]queryir.PropertyType{
	string(queryir.TypeString):    queryir.TypeString,
	string(queryir.TypeLong):      queryir.TypeLong,
	string(queryir.TypeBoolean):   queryir.TypeBoolean,
	string(queryir.TypeName):      queryir.TypeName,
	string(queryir.TypePath):      queryir.TypePath,
	string(queryir.TypeReference): queryir.TypeReference,
}

// extractPropertyType converts a CUE kind or type name to a property type.
func extractPropertyType(v cue.Value) (queryir.PropertyType, error) {
	if v.IsConcrete() && v.Kind() == cue.StringKind {
		s, _ := v.String()
		if pt, ok := propertyTypes[strings.ToUpper(s)]; ok {
			return pt, nil
		}
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unknown property type %q", s),
			Pos:     v.Pos(),
		}
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return queryir.TypeString, nil
	case cue.IntKind:
		return queryir.TypeLong, nil
	case cue.BoolKind:
		return queryir.TypeBoolean, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func unquote(label string) string {
	return strings.Trim(label, `"`)
}
