// Package filter defines the declarative filter tree accepted by the compiler.
//
// Operands are a tagged variant decided when the tree is built: a Scalar is
// plain equality and Operators is an ordered list of comparisons. The compiler
// never inspects operand values to tell the two apart.
package filter

// Node is a filter tree node: Group, Not, Condition or RelationCondition.
// A nil Node means "no restriction".
type Node interface {
	isNode()
}

// Combinator joins the children of a Group.
type Combinator int

const (
	And Combinator = iota
	Or
)

func (c Combinator) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// Group combines one or more children.
type Group struct {
	Op       Combinator
	Children []Node
}

// Not negates its child.
type Not struct {
	Child Node
}

// Condition restricts a column of the current table.
type Condition struct {
	Field   string
	Operand Operand
}

// Quantifier selects how a relation sub-filter applies to the related rows.
type Quantifier int

const (
	// Is is the implicit quantifier for to-one relations. On a to-many
	// relation it behaves like Some.
	Is Quantifier = iota
	Some
	Every
	None
)

func (q Quantifier) String() string {
	switch q {
	case Is:
		return "is"
	case Some:
		return "some"
	case Every:
		return "every"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// RelationCondition restricts rows by their related rows. A nil Where matches
// every related row.
type RelationCondition struct {
	Relation   string
	Quantifier Quantifier
	Where      Node
}

func (Group) isNode()             {}
func (Not) isNode()               {}
func (Condition) isNode()         {}
func (RelationCondition) isNode() {}

// Operand is either Scalar or Operators.
type Operand interface {
	isOperand()
}

// Scalar compares the column for equality. A nil Value matches NULL.
type Scalar struct {
	Value any
}

// Operator names a comparison.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNot        Operator = "not"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "notIn"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// canonicalOrder is the order operators are emitted in.
var canonicalOrder = []Operator{
	OpEquals, OpNot, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains, OpStartsWith, OpEndsWith,
}

// Rank returns the canonical position of op, or -1 for an unknown operator.
func (op Operator) Rank() int {
	for i, known := range canonicalOrder {
		if known == op {
			return i
		}
	}
	return -1
}

// IsList reports whether op takes a list operand.
func (op Operator) IsList() bool {
	return op == OpIn || op == OpNotIn
}

// Comparison is one operator applied to a value. List operators carry a []any.
type Comparison struct {
	Op    Operator
	Value any
}

// Operators is an ordered set of comparisons ANDed together.
type Operators []Comparison

func (Scalar) isOperand()    {}
func (Operators) isOperand() {}

// AndOf joins nodes with AND, dropping nil nodes. It returns nil when
// nothing remains and the single node when only one does.
func AndOf(nodes ...Node) Node {
	return groupOf(And, nodes)
}

// OrOf joins nodes with OR. A nil child means "no restriction", which makes
// the whole disjunction unrestricted.
func OrOf(nodes ...Node) Node {
	for _, n := range nodes {
		if n == nil {
			return nil
		}
	}
	return groupOf(Or, nodes)
}

func groupOf(op Combinator, nodes []Node) Node {
	children := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	default:
		return Group{Op: op, Children: children}
	}
}

// Eq builds an equality condition.
func Eq(field string, value any) Condition {
	return Condition{Field: field, Operand: Scalar{Value: value}}
}

// Ops builds a condition from comparisons.
func Ops(field string, comparisons ...Comparison) Condition {
	return Condition{Field: field, Operand: Operators(comparisons)}
}
