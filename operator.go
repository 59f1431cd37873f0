package mongopager

import "fmt"

// Operator defines a comparison operator for filtering by field.
// Used in pagination filtering conditions.
type Operator string

func (o Operator) Valid() bool {
	return o == OperatorLT || o == OperatorGT
}

func (o Operator) ForOrdering() Direction {
	switch o {
	case OperatorGT:
		return DirectionASC
	case OperatorLT:
		return DirectionDESC
	default:
		panic(fmt.Errorf("cannot map operator '%s' to ordering", o))
	}
}

// mongo returns the document-store operator name for the comparison.
func (o Operator) mongo() string {
	switch o {
	case OperatorGT:
		return "$gt"
	case OperatorLT:
		return "$lt"
	case operatorEq:
		return "$eq"
	default:
		panic(fmt.Errorf("cannot map operator '%s' to mongo operator", o))
	}
}

// inverted returns the operator for traversing the same ordering in the
// opposite direction.
func (o Operator) inverted() Operator {
	switch o {
	case OperatorGT:
		return OperatorLT
	case OperatorLT:
		return OperatorGT
	default:
		panic(fmt.Errorf("cannot invert operator '%s'", o))
	}
}

const (
	OperatorGT Operator = ">"
	OperatorLT Operator = "<"

	// operatorEq is the equality operator. It is private because we use it
	// ONLY while building filtering conditions.
	operatorEq Operator = "="
)
