package mongopager

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

// Direction defines the sort direction for the requested dataset.
type Direction string

const (
	DirectionASC  Direction = "ASC"
	DirectionDESC Direction = "DESC"
)

func (o Direction) Valid() bool {
	return o == DirectionASC || o == DirectionDESC
}

func (o Direction) ForOperator() Operator {
	switch o {
	case DirectionASC:
		return OperatorGT
	case DirectionDESC:
		return OperatorLT
	default:
		panic(fmt.Errorf("cannot map direction '%s' to operator", o))
	}
}

// inverted returns the opposite sort direction.
func (o Direction) inverted() Direction {
	switch o {
	case DirectionASC:
		return DirectionDESC
	case DirectionDESC:
		return DirectionASC
	default:
		panic(fmt.Errorf("cannot invert direction '%s'", o))
	}
}

type (
	Orderings []OrderBy
	OrderBy   struct {
		Field     string
		Direction Direction
	}

	FieldAlias = string

	// FieldMapping maps external field aliases to document field names.
	// Key is an external alias, value is an internal field name.
	FieldMapping = map[FieldAlias]string
)

var _availableFieldNameSymbols = append([]rune("_."), lo.AlphanumericCharset...)

func (o OrderBy) validate() error {
	if !o.Direction.Valid() {
		return fmt.Errorf("invalid ordering direction '%s'", o.Direction)
	}

	// Guard against operator injection by restricting allowed characters in
	// field names ("$"-prefixed names are rejected here).
	if o.Field == "" || !lo.Every(_availableFieldNameSymbols, []rune(o.Field)) {
		return fmt.Errorf("ordering field name contains forbidden symbols '%s'", o.Field)
	}

	return nil
}

// ToBSON converts Orderings to a sort document suitable for find options and
// $sort pipeline stages.
//
// Example: for [{"a", ASC}, {"b", DESC}] returns bson.D{{"a", 1}, {"b", -1}}.
func (o Orderings) ToBSON() bson.D {
	ret := make(bson.D, 0, len(o))
	for _, ordering := range o {
		ret = append(ret, bson.E{
			Key:   ordering.Field,
			Value: lo.Ternary(ordering.Direction == DirectionASC, 1, -1),
		})
	}

	return ret
}

// inverted returns the orderings with every direction flipped. Used for
// backward cursor pagination.
func (o Orderings) inverted() Orderings {
	return lo.Map(o, func(ordering OrderBy, _ int) OrderBy {
		ordering.Direction = ordering.Direction.inverted()
		return ordering
	})
}

// contains reports whether the orderings list has the given field.
func (o Orderings) contains(field string) bool {
	return lo.SomeBy(o, func(ordering OrderBy) bool {
		return ordering.Field == field
	})
}

func (o Orderings) validate() error {
	if len(o) == 0 {
		return fmt.Errorf("empty ordering list")
	}

	var err error
	for _, ordering := range o {
		err = ordering.validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// ParseSort builds Orderings from a list of strings in the format
// "field asc|desc". Field aliases are resolved via FieldMapping.
// Returns an error if an alias is not found in the mapping.
func ParseSort(stringsOrderings []string, fieldMapping FieldMapping) (Orderings, error) {
	ret := make([]OrderBy, 0, len(stringsOrderings))
	aliases := lo.Keys(fieldMapping)

	for _, stringOrdering := range stringsOrderings {
		cutStringOrdering := strings.Split(strings.TrimSpace(stringOrdering), " ")
		if len(cutStringOrdering) != 2 {
			return nil, fmt.Errorf("invalid ordering string format '%s'", stringOrdering)
		}

		fieldAlias := cutStringOrdering[0]
		direction := Direction(strings.ToUpper(cutStringOrdering[1]))
		fieldName := fieldMapping[fieldAlias]
		if fieldName == "" {
			return nil, fmt.Errorf("invalid field alias. closest: '%s'", closestAlias(fieldAlias, aliases))
		}

		ret = append(ret, OrderBy{
			Field:     fieldName,
			Direction: direction,
		})
	}

	return ret, nil
}

func closestAlias(input FieldAlias, dataSet []FieldAlias) FieldAlias {
	minDist := math.MaxInt
	closest := ""

	for _, dataSetAlias := range dataSet {
		dist := levenshtein([]rune(dataSetAlias), []rune(input))
		if dist < minDist {
			minDist = dist
			closest = dataSetAlias
		}
	}

	return closest
}
