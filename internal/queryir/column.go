package queryir

// Column identifies a projected value: owning selector, underlying property,
// and output name.
type Column struct {
	Selector   SelectorName
	Property   string
	ColumnName string
}

// NewColumn builds a column whose output name is the property name, or
// "selector.property" when qualify is set.
func NewColumn(selector SelectorName, property string, qualify bool) Column {
	name := property
	if qualify {
		name = string(selector) + "." + property
	}
	return Column{Selector: selector, Property: property, ColumnName: name}
}

// Name returns the output name, defaulting to the property name.
func (c Column) Name() string {
	if c.ColumnName != "" {
		return c.ColumnName
	}
	return c.Property
}

// Matches reports whether two columns are equivalent: same selector, and
// either name of one equals either name of the other.
func (c Column) Matches(other Column) bool {
	if c.Selector != other.Selector {
		return false
	}
	return c.Property == other.Property ||
		c.Property == other.Name() ||
		c.Name() == other.Property ||
		c.Name() == other.Name()
}

// String renders s.prop, with an AS clause when the output name differs.
func (c Column) String() string {
	base := string(c.Selector) + "." + c.Property
	if c.Name() != c.Property {
		return base + " AS " + c.Name()
	}
	return base
}

// ContainsColumn reports whether cols has a column matching col.
func ContainsColumn(cols []Column, col Column) bool {
	for _, c := range cols {
		if c.Matches(col) {
			return true
		}
	}
	return false
}
