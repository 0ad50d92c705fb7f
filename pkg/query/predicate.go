package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/orneryd/graphcore/pkg/index"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Op is a property comparison.
type Op int

const (
	Eq Op = iota
	Ne
	Gt
	Gte
	Lt
	Lte
	Contains
	StartsWith
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Ne:
		return "<>"
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// indexOp maps o to a property index operator, if the index can answer it.
func (o Op) indexOp() (index.Op, bool) {
	switch o {
	case Eq:
		return index.OpEq, true
	case Gt:
		return index.OpGt, true
	case Gte:
		return index.OpGte, true
	case Lt:
		return index.OpLt, true
	case Lte:
		return index.OpLte, true
	}
	return 0, false
}

// Predicate compares one property against a constant.
type Predicate struct {
	Key   string
	Op    Op
	Value value.Value
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Key, p.Op, p.Value)
}

// Match evaluates p against e.
//
// A missing or null property never matches, except Eq against Null which
// matches an explicit null marker. Eq and Ne compare across variants without
// error (Int(1) <> Float(1)). Ordering and string operators on an
// incompatible variant return storage.ErrInvalidProperty.
func (p Predicate) Match(e storage.Entity) (bool, error) {
	v, ok := e.Property(p.Key)
	if !ok {
		return false, nil
	}
	if v.IsNull() {
		return p.Op == Eq && p.Value.IsNull(), nil
	}

	switch p.Op {
	case Eq:
		return value.Equal(v, p.Value), nil
	case Ne:
		return !value.Equal(v, p.Value), nil
	case Gt, Gte, Lt, Lte:
		c, err := value.Compare(v, p.Value)
		if err != nil {
			return false, p.invalid(e, err)
		}
		switch p.Op {
		case Gt:
			return c > 0, nil
		case Gte:
			return c >= 0, nil
		case Lt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case Contains, StartsWith:
		s, ok := v.AsString()
		if !ok {
			return false, p.invalid(e, fmt.Errorf("%s is %s", p.Key, v.Kind()))
		}
		needle, ok := p.Value.AsString()
		if !ok {
			return false, p.invalid(e, fmt.Errorf("operand is %s", p.Value.Kind()))
		}
		if p.Op == Contains {
			return strings.Contains(s, needle), nil
		}
		return strings.HasPrefix(s, needle), nil
	}
	return false, fmt.Errorf("unknown operator %s", p.Op)
}

func (p Predicate) invalid(e storage.Entity, cause error) error {
	return fmt.Errorf("%w: %s on %s: %v", storage.ErrInvalidProperty, p, e.EntityID(), cause)
}

// IsInvalidProperty reports whether err is a row-level evaluation error.
func IsInvalidProperty(err error) bool {
	return errors.Is(err, storage.ErrInvalidProperty)
}
