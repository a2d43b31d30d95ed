package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/arbor/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value passed to Validate

	// Node type errors (E101-E109)
	ErrTypeNameEmpty       = "E101" // type name is required
	ErrUnknownSupertype    = "E102" // supertype not defined anywhere
	ErrMixinSupertype      = "E103" // primary type inherits from a mixin
	ErrInvalidPropertyType = "E104" // property type not recognised
	ErrDuplicateName       = "E105" // type defined twice in one document
	ErrSupertypeCycle      = "E106" // supertype chain loops back

	// Query errors (E110-E119)
	ErrInvalidQuery  = "E110" // query command rejected by queryir.Validate
	ErrQueryNameDupe = "E111" // two queries share a name
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateNodeTypes checks node type definitions against base, the type
// system they extend. Returns all errors found (does not fail-fast).
func ValidateNodeTypes(types []queryir.NodeType, base *queryir.Schemata) []ValidationError {
	var errs []ValidationError

	defined := make(map[string]queryir.NodeType, len(types))
	for i, nt := range types {
		if strings.TrimSpace(nt.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("nodeTypes[%d].name", i),
				Message: "type name is required and must be non-empty",
				Code:    ErrTypeNameEmpty,
			})
			continue
		}
		if _, dup := defined[nt.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("nodeTypes.%s", nt.Name),
				Message: fmt.Sprintf("duplicate type name: %q", nt.Name),
				Code:    ErrDuplicateName,
			})
		}
		defined[nt.Name] = nt
	}

	lookup := func(name string) (queryir.NodeType, bool) {
		if nt, ok := defined[name]; ok {
			return nt, true
		}
		if base != nil {
			return base.NodeType(name)
		}
		return queryir.NodeType{}, false
	}

	for _, nt := range types {
		for _, sup := range nt.Supertypes {
			st, ok := lookup(sup)
			if !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("nodeTypes.%s.supertypes", nt.Name),
					Message: fmt.Sprintf("unknown supertype %q", sup),
					Code:    ErrUnknownSupertype,
				})
				continue
			}
			if st.Mixin && !nt.Mixin {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("nodeTypes.%s.supertypes", nt.Name),
					Message: fmt.Sprintf("primary type cannot inherit from mixin %q", sup),
					Code:    ErrMixinSupertype,
				})
			}
		}

		props := make([]string, 0, len(nt.Properties))
		for p := range nt.Properties {
			props = append(props, p)
		}
		sort.Strings(props)
		for _, p := range props {
			if _, ok := propertyTypes[string(nt.Properties[p])]; !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("nodeTypes.%s.properties.%s", nt.Name, p),
					Message: fmt.Sprintf("invalid property type %q", nt.Properties[p]),
					Code:    ErrInvalidPropertyType,
				})
			}
		}
	}

	for _, c := range AnalyzeSupertypes(types) {
		errs = append(errs, ValidationError{
			Field:   "nodeTypes",
			Message: c.Message,
			Code:    ErrSupertypeCycle,
		})
	}

	return errs
}

// ValidateQueries checks every query against schemata, each with its own
// default variables.
func ValidateQueries(queries []*Query, schemata *queryir.Schemata) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(queries))

	for _, q := range queries {
		if seen[q.Name] {
			errs = append(errs, ValidationError{
				Field:   "query." + q.Name,
				Message: fmt.Sprintf("duplicate query name: %q", q.Name),
				Code:    ErrQueryNameDupe,
			})
		}
		seen[q.Name] = true

		result := queryir.Validate(q.Command, schemata, q.Variables)
		for _, p := range result.Problems {
			errs = append(errs, ValidationError{
				Field:   "query." + q.Name,
				Message: p.String(),
				Code:    ErrInvalidQuery,
			})
		}
	}
	return errs
}
