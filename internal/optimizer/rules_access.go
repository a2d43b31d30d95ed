package optimizer

import (
	"slices"

	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// AddAccessNodes wraps every SOURCE node in an ACCESS node. The subtree
// below an ACCESS node is what the engine evaluates against the index.
// A source already under an ACCESS node, directly or through pushed
// PROJECT and SELECT nodes, is left alone.
type AddAccessNodes struct{}

func (AddAccessNodes) Name() string { return "AddAccessNodes" }

func (AddAccessNodes) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for _, src := range arena.FindAll(root, plan.TypeSource) {
		if _, wrapped := arena.Ancestor(src, plan.TypeAccess); wrapped {
			continue
		}
		access := arena.New(plan.TypeAccess)
		arena.InsertAbove(access, src)
		if src == root {
			root = access
		}
	}
	return root, nil
}

// PushSelectCriteria moves each SELECT whose criteria reference selectors
// of a single ACCESS node to just below that ACCESS node. Criteria that
// span access nodes stay where they are, as do criteria that would cross
// into the null-supplying side of an outer join.
//
// SELECT nodes are pushed bottom-up so a chain keeps its order.
type PushSelectCriteria struct{}

func (PushSelectCriteria) Name() string { return "PushSelectCriteria" }

func (PushSelectCriteria) Execute(_ *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	selects := arena.FindAll(root, plan.TypeSelect)
	for i := len(selects) - 1; i >= 0; i-- {
		sel := selects[i]
		if _, under := arena.Ancestor(sel, plan.TypeAccess); under {
			continue
		}
		target, ok := coveringAccess(arena, sel)
		if !ok || crossesOuterJoin(arena, sel, target) {
			continue
		}

		replacement, err := arena.Extract(sel)
		if err != nil {
			return root, err
		}
		if sel == root {
			root = replacement
		}
		arena.InsertAbove(sel, arena.FirstChild(target))
	}
	return root, nil
}

// coveringAccess returns the only ACCESS node below sel that resolves every
// selector the criteria reference.
func coveringAccess(arena *plan.Arena, sel plan.NodeID) (plan.NodeID, bool) {
	referenced := queryir.ConstraintSelectors(arena.Node(sel).Criteria())
	if len(referenced) == 0 {
		return plan.NoNode, false
	}

	found := plan.NoNode
	for _, access := range arena.FindAll(sel, plan.TypeAccess) {
		covers := true
		for _, s := range referenced {
			if !arena.Node(access).Selectors.Contains(s) {
				covers = false
				break
			}
		}
		if !covers {
			continue
		}
		if found != plan.NoNode {
			return plan.NoNode, false
		}
		found = access
	}
	return found, found != plan.NoNode
}

// crossesOuterJoin reports whether the path from access up to sel enters a
// LEFT OUTER join through its right child.
func crossesOuterJoin(arena *plan.Arena, sel, access plan.NodeID) bool {
	child := access
	for p := arena.Node(access).Parent; p != plan.NoNode && p != sel; p = arena.Node(p).Parent {
		n := arena.Node(p)
		if n.Type == plan.TypeJoin && len(n.Children) == 2 {
			switch n.JoinType() {
			case queryir.JoinLeftOuter:
				if n.Children[1] == child {
					return true
				}
			case queryir.JoinRightOuter:
				if n.Children[0] == child {
					return true
				}
			}
		}
		child = p
	}
	return false
}

// PushProjects puts a PROJECT node directly under every ACCESS node,
// listing the columns its selector must produce: the columns the nearest
// enclosing PROJECT takes from that selector plus the properties read by
// criteria that are evaluated above the access node.
type PushProjects struct{}

func (PushProjects) Name() string { return "PushProjects" }

func (PushProjects) Execute(qc *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	for _, access := range arena.FindAll(root, plan.TypeAccess) {
		first := arena.FirstChild(access)
		if first == plan.NoNode || arena.Node(first).Type == plan.TypeProject {
			continue
		}

		sourceType := accessSourceType(arena, access)
		project := arena.New(plan.TypeProject)
		pn := arena.Node(project)
		pn.SetProperty(plan.PropProjectColumns, []queryir.Column{})
		pn.SetProperty(plan.PropProjectColumnTypes, []queryir.PropertyType{})

		if top, ok := arena.Ancestor(access, plan.TypeProject); ok {
			cols, _ := arena.Node(top).ProjectColumns()
			types := arena.Node(top).ProjectColumnTypes()
			for i, col := range cols {
				if !arena.Node(access).Selectors.Contains(col.Selector) {
					continue
				}
				typ := queryir.DefaultType
				if i < len(types) {
					typ = types[i]
				}
				addColumnIfMissing(pn, col, typ)
			}
		}

		for _, sel := range arena.FindAll(root, plan.TypeSelect) {
			if _, under := arena.Ancestor(sel, plan.TypeAccess); under {
				continue
			}
			for _, pv := range queryir.ConstraintProperties(arena.Node(sel).Criteria()) {
				if !arena.Node(access).Selectors.Contains(pv.Selector) {
					continue
				}
				typ, _ := qc.Schemata.PropertyType(sourceType, pv.Property)
				addColumnIfMissing(pn, queryir.NewColumn(pv.Selector, pv.Property, qc.Hints.QualifyExpandedColumnNames), typ)
			}
		}

		arena.InsertAbove(project, first)
	}
	return root, nil
}

// accessSourceType returns the node type read by the SOURCE below access.
func accessSourceType(arena *plan.Arena, access plan.NodeID) string {
	src, ok := arena.FindFirst(access, plan.TypeSource)
	if !ok {
		return ""
	}
	return arena.Node(src).StringProperty(plan.PropSourceName)
}

// projectUnderAccess returns the PROJECT node directly below an ACCESS
// node, if PushProjects has placed one.
func projectUnderAccess(arena *plan.Arena, access plan.NodeID) (plan.NodeID, bool) {
	first := arena.FirstChild(access)
	if first != plan.NoNode && arena.Node(first).Type == plan.TypeProject {
		return first, true
	}
	return plan.NoNode, false
}

// AddOrderingColumnsToSources makes sure every property a SORT node orders
// by is projected by the access node that owns its selector.
type AddOrderingColumnsToSources struct{}

func (AddOrderingColumnsToSources) Name() string { return "AddOrderingColumnsToSources" }

func (AddOrderingColumnsToSources) Execute(qc *plan.Context, arena *plan.Arena, root plan.NodeID, _ *RuleStack) (plan.NodeID, error) {
	accesses := arena.FindAll(root, plan.TypeAccess)

	for _, sort := range arena.FindAll(root, plan.TypeSort) {
		for _, o := range arena.Node(sort).OrderBy() {
			pv, ok := o.Operand.(queryir.PropertyValue)
			if !ok {
				if p, isPtr := o.Operand.(*queryir.PropertyValue); isPtr && p != nil {
					pv, ok = *p, true
				}
			}
			if !ok {
				continue
			}

			idx := slices.IndexFunc(accesses, func(id plan.NodeID) bool {
				return arena.Node(id).Selectors.Contains(pv.Selector)
			})
			if idx < 0 {
				continue
			}
			project, ok := projectUnderAccess(arena, accesses[idx])
			if !ok {
				continue
			}
			typ, _ := qc.Schemata.PropertyType(accessSourceType(arena, accesses[idx]), pv.Property)
			addColumnIfMissing(arena.Node(project),
				queryir.NewColumn(pv.Selector, pv.Property, qc.Hints.QualifyExpandedColumnNames), typ)
		}
	}
	return root, nil
}
