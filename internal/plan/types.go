package plan

// Type is the operator kind of a plan node.
type Type int

const (
	TypeNull Type = iota
	TypeAccess
	TypeDupRemove
	TypeJoin
	TypeLimit
	TypeProject
	TypeSelect
	TypeSort
	TypeSource
)

var typeNames = [...]string{
	TypeNull:      "NULL",
	TypeAccess:    "ACCESS",
	TypeDupRemove: "DUP_REMOVE",
	TypeJoin:      "JOIN",
	TypeLimit:     "LIMIT",
	TypeProject:   "PROJECT",
	TypeSelect:    "SELECT",
	TypeSort:      "SORT",
	TypeSource:    "SOURCE",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "UNKNOWN"
}

// Property names a typed attribute of a plan node.
type Property int

// Properties, in the order explain output prints them.
const (
	PropSourceName Property = iota
	PropSourceAlias
	PropJoinType
	PropJoinCondition
	PropJoinAlgorithm
	PropSelectCriteria
	PropProjectColumns
	PropProjectColumnTypes
	PropSortOrderBy
	PropLimitCount
	PropLimitOffset
	numProperties
)

var propertyNames = [...]string{
	PropSourceName:         "SOURCE_NAME",
	PropSourceAlias:        "SOURCE_ALIAS",
	PropJoinType:           "JOIN_TYPE",
	PropJoinCondition:      "JOIN_CONDITION",
	PropJoinAlgorithm:      "JOIN_ALGORITHM",
	PropSelectCriteria:     "SELECT_CRITERIA",
	PropProjectColumns:     "PROJECT_COLUMNS",
	PropProjectColumnTypes: "PROJECT_COLUMN_TYPES",
	PropSortOrderBy:        "SORT_ORDER_BY",
	PropLimitCount:         "LIMIT_COUNT",
	PropLimitOffset:        "LIMIT_OFFSET",
}

func (p Property) String() string {
	if p >= 0 && p < numProperties {
		return propertyNames[p]
	}
	return "UNKNOWN"
}

// JoinAlgorithm is the physical join strategy chosen by the optimizer.
type JoinAlgorithm string

const (
	JoinNestedLoop JoinAlgorithm = "NESTED_LOOP"
	JoinMerge      JoinAlgorithm = "MERGE"
)
