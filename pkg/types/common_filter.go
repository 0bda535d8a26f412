package types

import (
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// FilterKind classifies a filterable donation or subscription column.
type FilterKind int

const (
	// FilterKindKey is an id, cause, state or currency.
	FilterKindKey FilterKind = iota
	FilterKindAmount
	FilterKindTime
	FilterKindFlag
)

var filterOperators = map[FilterKind][]CommonFilterOperator{
	FilterKindKey: {CommonFilterOperatorEq, CommonFilterOperatorNotEq, CommonFilterOperatorIn},
	FilterKindAmount: {
		CommonFilterOperatorEq, CommonFilterOperatorLt, CommonFilterOperatorLte,
		CommonFilterOperatorGt, CommonFilterOperatorGte, CommonFilterOperatorRange,
	},
	FilterKindTime: {
		CommonFilterOperatorLt, CommonFilterOperatorLte, CommonFilterOperatorGt,
		CommonFilterOperatorGte, CommonFilterOperatorDateRange,
	},
	FilterKindFlag: {CommonFilterOperatorEq},
}

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate checks the operator against the column kind and the number of
// values the operator takes.
func (f *CommonFilter) Validate(kind FilterKind) error {
	if !lo.Contains(filterOperators[kind], f.Operator) {
		return fmt.Errorf("operator %q not allowed on %s", f.Operator, f.Field)
	}
	switch f.Operator {
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) != 2 {
			return fmt.Errorf("%s on %s takes two values", f.Operator, f.Field)
		}
	case CommonFilterOperatorIn:
	default:
		if len(f.Values) != 1 {
			return fmt.Errorf("%s on %s takes one value", f.Operator, f.Field)
		}
	}
	return nil
}

// Build constructs a GORM expression. date_range is half-open so that
// consecutive days never count a donation twice.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lt{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	}
}
