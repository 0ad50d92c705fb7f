package join

import (
	"fmt"
	"strings"

	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Column names a projected value: "left.<property>", "right.<property>",
// "left.id" or "right.id". A property literally called "id" is shadowed by the
// entity identifier.
type Column string

// Left projects a property of the left entity.
func Left(property string) Column { return Column("left." + property) }

// Right projects a property of the right entity.
func Right(property string) Column { return Column("right." + property) }

// LeftID projects the left entity's identifier.
func LeftID() Column { return "left.id" }

// RightID projects the right entity's identifier.
func RightID() Column { return "right.id" }

// Row is one assembled (left, right) pair. Either side is nil when an outer
// join found no partner for the other side.
type Row struct {
	Left  *storage.Node
	Right *storage.Node
}

// Get resolves a column against the row. Unknown columns, missing properties
// and absent sides all resolve to the null marker.
func (r Row) Get(c Column) value.Value {
	side, prop, ok := strings.Cut(string(c), ".")
	if !ok {
		return value.Null()
	}
	var n *storage.Node
	switch side {
	case "left":
		n = r.Left
	case "right":
		n = r.Right
	default:
		return value.Null()
	}
	if n == nil {
		return value.Null()
	}
	if prop == "id" {
		return value.String(string(n.ID))
	}
	return n.Properties[prop]
}

func (r Row) key() [2]storage.NodeID {
	var k [2]storage.NodeID
	if r.Left != nil {
		k[0] = r.Left.ID
	}
	if r.Right != nil {
		k[1] = r.Right.ID
	}
	return k
}

// Predicate filters assembled rows. An error marks the row as not evaluable:
// it is dropped and counted in Result.Skipped.
type Predicate interface {
	Evaluate(r Row) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(r Row) (bool, error)

// Evaluate implements Predicate.
func (f PredicateFunc) Evaluate(r Row) (bool, error) { return f(r) }

// equality matches a column against a constant with value.Equal.
type equality struct {
	col    Column
	v      value.Value
	negate bool
}

// Equals matches rows whose column equals v. Values of different variants
// are never equal.
func Equals(c Column, v value.Value) Predicate { return equality{col: c, v: v} }

// NotEquals is the negation of Equals.
func NotEquals(c Column, v value.Value) Predicate {
	return equality{col: c, v: v, negate: true}
}

func (p equality) Evaluate(r Row) (bool, error) {
	return value.Equal(r.Get(p.col), p.v) != p.negate, nil
}

type comparison struct {
	col     Column
	v       value.Value
	greater bool
}

// GreaterThan matches rows whose column orders after v. A null column never
// matches; a column of another variant is an invalid property.
func GreaterThan(c Column, v value.Value) Predicate {
	return comparison{col: c, v: v, greater: true}
}

// LessThan matches rows whose column orders before v.
func LessThan(c Column, v value.Value) Predicate { return comparison{col: c, v: v} }

func (p comparison) Evaluate(r Row) (bool, error) {
	got := r.Get(p.col)
	if got.IsNull() {
		return false, nil
	}
	c, err := value.Compare(got, p.v)
	if err != nil {
		op := "<"
		if p.greater {
			op = ">"
		}
		return false, fmt.Errorf("%w: %s %s %s: %v", storage.ErrInvalidProperty, p.col, op, p.v, err)
	}
	if p.greater {
		return c > 0, nil
	}
	return c < 0, nil
}

type containment struct {
	col    Column
	substr string
}

// Contains matches rows whose string column contains substr.
func Contains(c Column, substr string) Predicate { return containment{col: c, substr: substr} }

func (p containment) Evaluate(r Row) (bool, error) {
	got := r.Get(p.col)
	if got.IsNull() {
		return false, nil
	}
	s, ok := got.AsString()
	if !ok {
		return false, fmt.Errorf("%w: %s is %s, not string", storage.ErrInvalidProperty, p.col, got.Kind())
	}
	return strings.Contains(s, p.substr), nil
}

type nullness struct {
	col      Column
	wantNull bool
}

// IsNull matches rows where the column is missing, null or on an absent side.
func IsNull(c Column) Predicate { return nullness{col: c, wantNull: true} }

// NotNull is the negation of IsNull.
func NotNull(c Column) Predicate { return nullness{col: c} }

func (p nullness) Evaluate(r Row) (bool, error) {
	return r.Get(p.col).IsNull() == p.wantNull, nil
}

// And matches when every predicate matches, stopping at the first that does not.
func And(ps ...Predicate) Predicate {
	return PredicateFunc(func(r Row) (bool, error) {
		for _, p := range ps {
			ok, err := p.Evaluate(r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Or matches when any predicate matches, stopping at the first that does.
func Or(ps ...Predicate) Predicate {
	return PredicateFunc(func(r Row) (bool, error) {
		for _, p := range ps {
			ok, err := p.Evaluate(r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not inverts p. Evaluation errors pass through unchanged.
func Not(p Predicate) Predicate {
	return PredicateFunc(func(r Row) (bool, error) {
		ok, err := p.Evaluate(r)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}
