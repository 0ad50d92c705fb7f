package join

import (
	"context"
	"fmt"

	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Aggregation reduces the right-side values of a group.
type Aggregation int

const (
	Sum Aggregation = iota
	Avg
	Count
	Max
	Min
)

func (a Aggregation) String() string {
	switch a {
	case Sum:
		return "sum"
	case Avg:
		return "avg"
	case Count:
		return "count"
	case Max:
		return "max"
	case Min:
		return "min"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// AggregateResult maps each left group key to its reduced value.
type AggregateResult struct {
	Groups map[value.Value]value.Value
	// Dropped counts rows whose right value was not numeric. Such a row is
	// left out of its group; the aggregation itself still succeeds.
	Dropped int
	// Skipped counts rows dropped by predicates that could not be evaluated.
	Skipped int
}

// Aggregate groups the joined rows by left.groupBy and reduces right.property
// with agg. Rows with a null right value contribute nothing; a group that
// receives no value is absent from the result. Rows without the group
// property fall in the null group.
//
// Sum, Max and Min of integers stay integers; once a float is seen the result
// is a float. An integer Sum that overflows int64 is returned as a float. Avg is always a float. Count counts non-null values of any
// variant. Ordering, offset and limit set on j do not apply.
func (j *Join) Aggregate(ctx context.Context, groupBy string, agg Aggregation, property string) (*AggregateResult, error) {
	rows, skipped, err := j.rows(ctx)
	if err != nil {
		return nil, err
	}

	accs := make(map[value.Value]*accumulator)
	res := &AggregateResult{Groups: make(map[value.Value]value.Value), Skipped: skipped}
	for _, r := range rows {
		v := r.Get(Right(property))
		if v.IsNull() {
			continue
		}
		if agg != Count && !v.IsNumeric() {
			res.Dropped++
			j.log.WithField("action", "aggregate").
				WithError(fmt.Errorf("%w: %s of %s", storage.ErrInvalidProperty, agg, v.Kind())).
				Debug("row dropped")
			continue
		}
		key := r.Get(Left(groupBy))
		a := accs[key]
		if a == nil {
			a = &accumulator{}
			accs[key] = a
		}
		a.add(v)
	}

	for k, a := range accs {
		res.Groups[k] = a.result(agg)
	}
	return res, nil
}

type accumulator struct {
	n        int64
	isum     int64
	fsum     float64
	float    bool
	overflow bool
	min      value.Value
	max      value.Value
	minNum   float64
	maxNum   float64
}

func (a *accumulator) add(v value.Value) {
	a.n++
	f, ok := v.Number()
	if !ok {
		return
	}
	if i, isInt := v.AsInt(); isInt {
		sum := a.isum + i
		if (i > 0 && sum < a.isum) || (i < 0 && sum > a.isum) {
			a.overflow = true
		}
		a.isum = sum
	} else {
		a.float = true
	}
	a.fsum += f
	if a.n == 1 || f < a.minNum {
		a.min, a.minNum = v, f
	}
	if a.n == 1 || f > a.maxNum {
		a.max, a.maxNum = v, f
	}
}

func (a *accumulator) result(agg Aggregation) value.Value {
	switch agg {
	case Count:
		return value.Int(a.n)
	case Avg:
		return value.Float(a.fsum / float64(a.n))
	case Sum:
		if a.float || a.overflow {
			return value.Float(a.fsum)
		}
		return value.Int(a.isum)
	case Max:
		return a.promote(a.max, a.maxNum)
	case Min:
		return a.promote(a.min, a.minNum)
	}
	return value.Null()
}

func (a *accumulator) promote(v value.Value, f float64) value.Value {
	if a.float {
		return value.Float(f)
	}
	return v
}
