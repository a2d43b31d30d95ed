package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
)

// Query is a compiled query document.
type Query struct {
	Name       string
	Command    queryir.QueryCommand
	Variables  map[string]ir.Value
	Workspaces []string
}

// CompileQuery parses a CUE value into a Query.
//
// The CUE value should be the query struct itself, e.g.:
//
//	query: "published": {
//		from: {type: "blog:post", as: "p"}
//		where: and: [
//			{compare: {property: "p.status", op: "=", value: "published"}},
//			{descendantOf: {selector: "p", path: "/posts"}},
//		]
//		columns: ["p.title", "p.rank"]
//		orderBy: [{property: "p.rank", order: "desc"}]
//		limit: 10
//	}
//
// Sources are {type, as} selectors or joins:
//
//	from: {
//		join:  "inner"
//		left:  {type: "blog:post", as: "p"}
//		right: {type: "blog:author", as: "a"}
//		on: equi: {left: "p.author", right: "a.id"}
//	}
func CompileQuery(v cue.Value) (*Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	q := &Query{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		q.Name = unquote(labels[len(labels)-1].String())
	}

	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return nil, &CompileError{
			Field:   "from",
			Message: "from is required",
			Pos:     v.Pos(),
		}
	}
	var err error
	q.Command.Source, err = parseSource(fromVal, "from")
	if err != nil {
		return nil, err
	}

	if whereVal := v.LookupPath(cue.ParsePath("where")); whereVal.Exists() {
		q.Command.Constraint, err = parseConstraint(whereVal, "where")
		if err != nil {
			return nil, err
		}
	}

	if colsVal := v.LookupPath(cue.ParsePath("columns")); colsVal.Exists() {
		q.Command.Columns, err = parseColumns(colsVal)
		if err != nil {
			return nil, err
		}
	}

	if orderVal := v.LookupPath(cue.ParsePath("orderBy")); orderVal.Exists() {
		q.Command.Orderings, err = parseOrderings(orderVal)
		if err != nil {
			return nil, err
		}
	}

	if q.Command.Limits.RowLimit, err = optionalInt(v, "limit"); err != nil {
		return nil, err
	}
	if q.Command.Limits.Offset, err = optionalInt(v, "offset"); err != nil {
		return nil, err
	}
	if distinct := v.LookupPath(cue.ParsePath("distinct")); distinct.Exists() {
		if q.Command.Distinct, err = distinct.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if varsVal := v.LookupPath(cue.ParsePath("variables")); varsVal.Exists() {
		obj, err := cueValue(varsVal, "variables")
		if err != nil {
			return nil, err
		}
		vars, ok := obj.(ir.Object)
		if !ok {
			return nil, &CompileError{Field: "variables", Message: "must be a struct", Pos: varsVal.Pos()}
		}
		q.Variables = vars
	}

	if wsVal := v.LookupPath(cue.ParsePath("workspaces")); wsVal.Exists() {
		q.Workspaces, err = stringList(wsVal)
		if err != nil {
			return nil, err
		}
	}

	return q, nil
}

var joinTypes = map[string]queryir.JoinType{
	"inner":       queryir.JoinInner,
	"left outer":  queryir.JoinLeftOuter,
	"right outer": queryir.JoinRightOuter,
	"cross":       queryir.JoinCross,
}

func parseSource(v cue.Value, field string) (queryir.Source, error) {
	if typeVal := v.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
		nodeType, err := typeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		sel := queryir.Selector{NodeType: nodeType}
		if asVal := v.LookupPath(cue.ParsePath("as")); asVal.Exists() {
			alias, err := asVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			sel.Alias = queryir.SelectorName(alias)
		}
		return sel, nil
	}

	joinVal := v.LookupPath(cue.ParsePath("join"))
	if !joinVal.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: "source needs either 'type' or 'join'",
			Pos:     v.Pos(),
		}
	}
	kind, err := joinVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	jt, ok := joinTypes[strings.ToLower(kind)]
	if !ok {
		return nil, &CompileError{
			Field:   field + ".join",
			Message: fmt.Sprintf("invalid join type %q, must be inner, left outer, right outer, or cross", kind),
			Pos:     joinVal.Pos(),
		}
	}

	join := queryir.Join{Type: jt}
	for side, dst := range map[string]*queryir.Source{"left": &join.Left, "right": &join.Right} {
		sideVal := v.LookupPath(cue.ParsePath(side))
		if !sideVal.Exists() {
			return nil, &CompileError{
				Field:   field + "." + side,
				Message: "join requires both sides",
				Pos:     v.Pos(),
			}
		}
		if *dst, err = parseSource(sideVal, field+"."+side); err != nil {
			return nil, err
		}
	}

	if onVal := v.LookupPath(cue.ParsePath("on")); onVal.Exists() {
		if join.Condition, err = parseJoinCondition(onVal, field+".on"); err != nil {
			return nil, err
		}
	}
	return join, nil
}

func parseJoinCondition(v cue.Value, field string) (queryir.JoinCondition, error) {
	kind, body, err := singleField(v, field)
	if err != nil {
		return nil, err
	}
	field += "." + kind

	switch kind {
	case "equi":
		left, err := requiredString(body, "left", field)
		if err != nil {
			return nil, err
		}
		right, err := requiredString(body, "right", field)
		if err != nil {
			return nil, err
		}
		s1, p1, err := splitProperty(left, field+".left", body.Pos())
		if err != nil {
			return nil, err
		}
		s2, p2, err := splitProperty(right, field+".right", body.Pos())
		if err != nil {
			return nil, err
		}
		return queryir.EquiJoinCondition{Selector1: s1, Property1: p1, Selector2: s2, Property2: p2}, nil

	case "sameNode":
		left, err := requiredString(body, "left", field)
		if err != nil {
			return nil, err
		}
		right, err := requiredString(body, "right", field)
		if err != nil {
			return nil, err
		}
		cond := queryir.SameNodeJoinCondition{Selector1: queryir.SelectorName(left), Selector2: queryir.SelectorName(right)}
		if pathVal := body.LookupPath(cue.ParsePath("path")); pathVal.Exists() {
			if cond.Path, err = pathVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		return cond, nil

	case "child":
		parent, err := requiredString(body, "parent", field)
		if err != nil {
			return nil, err
		}
		child, err := requiredString(body, "child", field)
		if err != nil {
			return nil, err
		}
		return queryir.ChildNodeJoinCondition{
			ParentSelector: queryir.SelectorName(parent),
			ChildSelector:  queryir.SelectorName(child),
		}, nil

	case "descendant":
		ancestor, err := requiredString(body, "ancestor", field)
		if err != nil {
			return nil, err
		}
		descendant, err := requiredString(body, "descendant", field)
		if err != nil {
			return nil, err
		}
		return queryir.DescendantNodeJoinCondition{
			AncestorSelector:   queryir.SelectorName(ancestor),
			DescendantSelector: queryir.SelectorName(descendant),
		}, nil
	}

	return nil, &CompileError{
		Field:   field,
		Message: "unknown join condition, must be equi, sameNode, child, or descendant",
		Pos:     v.Pos(),
	}
}

var operators = map[string]queryir.Operator{
	"=":    queryir.OpEqual,
	"!=":   queryir.OpNotEqual,
	"<":    queryir.OpLessThan,
	"<=":   queryir.OpLessOrEqual,
	">":    queryir.OpGreaterThan,
	">=":   queryir.OpGreaterOrEqual,
	"like": queryir.OpLike,
}

// parseConstraint parses a one-field struct naming the constraint kind.
// and/or take a list of two or more constraints, folded left.
func parseConstraint(v cue.Value, field string) (queryir.Constraint, error) {
	kind, body, err := singleField(v, field)
	if err != nil {
		return nil, err
	}
	field += "." + kind

	switch kind {
	case "and", "or":
		iter, err := body.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var parts []queryir.Constraint
		for i := 0; iter.Next(); i++ {
			c, err := parseConstraint(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			parts = append(parts, c)
		}
		if len(parts) < 2 {
			return nil, &CompileError{Field: field, Message: "needs at least two constraints", Pos: body.Pos()}
		}
		out := parts[0]
		for _, c := range parts[1:] {
			if kind == "and" {
				out = queryir.And{Left: out, Right: c}
			} else {
				out = queryir.Or{Left: out, Right: c}
			}
		}
		return out, nil

	case "not":
		inner, err := parseConstraint(body, field)
		if err != nil {
			return nil, err
		}
		return queryir.Not{Constraint: inner}, nil

	case "exists":
		ref, err := body.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		sel, prop, err := splitProperty(ref, field, body.Pos())
		if err != nil {
			return nil, err
		}
		return queryir.PropertyExistence{Selector: sel, Property: prop}, nil

	case "compare":
		operand, err := parseDynamicOperand(body, field)
		if err != nil {
			return nil, err
		}
		opStr, err := requiredString(body, "op", field)
		if err != nil {
			return nil, err
		}
		op, ok := operators[strings.ToLower(opStr)]
		if !ok {
			return nil, &CompileError{
				Field:   field + ".op",
				Message: fmt.Sprintf("unknown operator %q", opStr),
				Pos:     body.Pos(),
			}
		}
		value, err := parseStaticOperand(body, "value", field)
		if err != nil {
			return nil, err
		}
		return queryir.Comparison{Operand: operand, Operator: op, Value: value}, nil

	case "between":
		operand, err := parseDynamicOperand(body, field)
		if err != nil {
			return nil, err
		}
		lower, err := parseStaticOperand(body, "lower", field)
		if err != nil {
			return nil, err
		}
		upper, err := parseStaticOperand(body, "upper", field)
		if err != nil {
			return nil, err
		}
		b := queryir.Between{Operand: operand, Lower: lower, Upper: upper, LowerInclusive: true, UpperInclusive: true}
		for name, dst := range map[string]*bool{"lowerInclusive": &b.LowerInclusive, "upperInclusive": &b.UpperInclusive} {
			if flag := body.LookupPath(cue.ParsePath(name)); flag.Exists() {
				if *dst, err = flag.Bool(); err != nil {
					return nil, formatCUEError(err)
				}
			}
		}
		return b, nil

	case "childOf", "descendantOf":
		sel, err := requiredString(body, "selector", field)
		if err != nil {
			return nil, err
		}
		path, err := requiredString(body, "path", field)
		if err != nil {
			return nil, err
		}
		if kind == "childOf" {
			return queryir.ChildNode{Selector: queryir.SelectorName(sel), ParentPath: path}, nil
		}
		return queryir.DescendantNode{Selector: queryir.SelectorName(sel), AncestorPath: path}, nil
	}

	return nil, &CompileError{
		Field:   field,
		Message: "unknown constraint, must be and, or, not, exists, compare, between, childOf, or descendantOf",
		Pos:     v.Pos(),
	}
}

// parseDynamicOperand reads exactly one of property, name, path or depth.
func parseDynamicOperand(v cue.Value, field string) (queryir.DynamicOperand, error) {
	var found []queryir.DynamicOperand
	for _, kind := range []string{"property", "name", "path", "depth"} {
		val := v.LookupPath(cue.ParsePath(kind))
		if !val.Exists() {
			continue
		}
		ref, err := val.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch kind {
		case "property":
			sel, prop, err := splitProperty(ref, field+".property", val.Pos())
			if err != nil {
				return nil, err
			}
			found = append(found, queryir.PropertyValue{Selector: sel, Property: prop})
		case "name":
			found = append(found, queryir.NodeName{Selector: queryir.SelectorName(ref)})
		case "path":
			found = append(found, queryir.NodePath{Selector: queryir.SelectorName(ref)})
		case "depth":
			found = append(found, queryir.NodeDepth{Selector: queryir.SelectorName(ref)})
		}
	}
	if len(found) != 1 {
		return nil, &CompileError{
			Field:   field,
			Message: "exactly one of property, name, path, or depth is required",
			Pos:     v.Pos(),
		}
	}
	return found[0], nil
}

// parseStaticOperand reads a literal under key, or a bind variable from
// "variable" when key is absent.
func parseStaticOperand(v cue.Value, key, field string) (queryir.StaticOperand, error) {
	if val := v.LookupPath(cue.ParsePath(key)); val.Exists() {
		lit, err := cueValue(val, field+"."+key)
		if err != nil {
			return nil, err
		}
		return queryir.Literal{Value: lit}, nil
	}
	varKey := "variable"
	if key != "value" {
		varKey = key + "Variable"
	}
	if val := v.LookupPath(cue.ParsePath(varKey)); val.Exists() {
		name, err := val.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return queryir.BindVariable{Name: name}, nil
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("either %s or %s is required", key, varKey),
		Pos:     v.Pos(),
	}
}

func parseColumns(v cue.Value) ([]queryir.Column, error) {
	refs, err := stringList(v)
	if err != nil {
		return nil, err
	}
	cols := make([]queryir.Column, 0, len(refs))
	for i, ref := range refs {
		// "p.title AS heading" renames the output column.
		name := ""
		if before, after, ok := strings.Cut(ref, " AS "); ok {
			ref, name = strings.TrimSpace(before), strings.TrimSpace(after)
		}
		sel, prop, err := splitProperty(ref, fmt.Sprintf("columns[%d]", i), v.Pos())
		if err != nil {
			return nil, err
		}
		col := queryir.NewColumn(sel, prop, false)
		if name != "" {
			col.ColumnName = name
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func parseOrderings(v cue.Value) ([]queryir.Ordering, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.Ordering
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("orderBy[%d]", i)
		operand, err := parseDynamicOperand(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		ord := queryir.Ascending
		if orderVal := iter.Value().LookupPath(cue.ParsePath("order")); orderVal.Exists() {
			s, err := orderVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			switch strings.ToLower(s) {
			case "asc":
			case "desc":
				ord = queryir.Descending
			default:
				return nil, &CompileError{
					Field:   field + ".order",
					Message: fmt.Sprintf("invalid order %q, must be asc or desc", s),
					Pos:     orderVal.Pos(),
				}
			}
		}
		out = append(out, queryir.Ordering{Operand: operand, Order: ord})
	}
	return out, nil
}

// cueValue converts a concrete CUE value to an ir.Value. Floats are
// rejected.
func cueValue(v cue.Value, field string) (ir.Value, error) {
	if !v.IsConcrete() {
		return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	}
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var list ir.List
		for i := 0; iter.Next(); i++ {
			e, err := cueValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, e)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			label := unquote(iter.Selector().String())
			e, err := cueValue(iter.Value(), field+"."+label)
			if err != nil {
				return nil, err
			}
			obj[label] = e
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden, use int instead",
			Pos:     v.Pos(),
		}
	}
	return nil, &CompileError{
		Field:   field,
		Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
		Pos:     v.Pos(),
	}
}

// singleField returns the label and value of a struct with exactly one
// regular field.
func singleField(v cue.Value, field string) (string, cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, formatCUEError(err)
	}
	var (
		label string
		body  cue.Value
		count int
	)
	for iter.Next() {
		label, body = unquote(iter.Selector().String()), iter.Value()
		count++
	}
	if count != 1 {
		return "", cue.Value{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expected exactly one field, got %d", count),
			Pos:     v.Pos(),
		}
	}
	return label, body, nil
}

func splitProperty(ref, field string, pos token.Pos) (queryir.SelectorName, string, error) {
	sel, prop, ok := strings.Cut(ref, ".")
	if !ok || sel == "" || prop == "" {
		return "", "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%q must be selector.property", ref),
			Pos:     pos,
		}
	}
	return queryir.SelectorName(sel), prop, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return "", &CompileError{
			Field:   field + "." + key,
			Message: key + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalInt(v cue.Value, key string) (int, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return 0, nil
	}
	n, err := val.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	if n < 0 {
		return 0, &CompileError{Field: key, Message: "must not be negative", Pos: val.Pos()}
	}
	return int(n), nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
