package mongopager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

var _encoder = base64.RawURLEncoding

// Cursor is an opaque pagination token defining the start position for the
// requested page of data. An empty cursor means the beginning of the dataset.
//
// IMPORTANT:
// The token MUST always contain a condition on a unique field!
//
// The token consists of a set of conditions of the following form:
//
//	[(F1, O1, V1), (F2, O2, V2)... (Fn, On, Vn)]
type Cursor struct {
	elements []CursorElement
}

func NewCursor(elements ...CursorElement) *Cursor {
	return &Cursor{
		elements: elements,
	}
}

// DecodeCursor attempts to parse a base64-encoded string into *Cursor.
// A malformed token yields ErrInvalidCursor.
func DecodeCursor(b64String string) (*Cursor, error) {
	if len(b64String) == 0 {
		return nil, nil
	}

	jsonData, err := _encoder.DecodeString(b64String)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode base64 encoded cursor: %v", ErrInvalidCursor, err)
	}

	var elems []CursorElement
	if err = json.Unmarshal(jsonData, &elems); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal json encoded cursor: %v", ErrInvalidCursor, err)
	}

	return &Cursor{
		elements: elems,
	}, nil
}

// String - implements fmt.Stringer.
func (c *Cursor) String() string {
	if c == nil || len(c.elements) == 0 {
		return ""
	}

	jTok, err := json.Marshal(c.elements)
	if err != nil {
		panic(fmt.Errorf("cannot marshal cursor value: %w", err))
	}

	var buf bytes.Buffer
	if err = json.Compact(&buf, jTok); err != nil {
		panic(fmt.Errorf("cannot compact cursor value: %w", err))
	}

	return _encoder.EncodeToString(buf.Bytes())
}

func (c *Cursor) IsEmpty() bool {
	return c == nil || len(c.elements) == 0
}

// GetElements returns the token elements. The elements are a compressed set
// of filtering conditions.
//
// IMPORTANT:
// These conditions cannot be applied to the dataset directly because they are
// not complete. During pagination they are expanded into the full set of
// filtering conditions.
func (c *Cursor) GetElements() []CursorElement {
	if c == nil {
		return nil
	}

	return c.elements
}

// WithElements sets the token elements manually.
func (c *Cursor) WithElements(elements []CursorElement) *Cursor {
	if c == nil {
		c = new(Cursor)
	}

	c.elements = elements

	return c
}

// ToBSON returns the expanded keyset condition of the cursor as a
// document-store filter. Returns nil for an empty cursor (no condition).
func (c *Cursor) ToBSON() bson.M {
	return c.toDNF().toBSON()
}

// inverted returns a cursor with every comparison operator flipped. Used for
// backward pagination over the same sort spec.
func (c *Cursor) inverted() *Cursor {
	if c.IsEmpty() {
		return c
	}

	return &Cursor{
		elements: lo.Map(c.elements, func(el CursorElement, _ int) CursorElement {
			el.Operator = el.Operator.inverted()
			return el
		}),
	}
}

// toDNF converts the Cursor into tDNF.
//
// IMPORTANT:
// The token MUST always contain a condition on a unique field!
//
// The token consists of a set of conditions of the following form:
//
//	[(F1, O1, V1), (F2, O2, V2)... (Fn, On, Vn)]
//
// Successively applying expansion to this set of conditions yields the filter:
//
//	(F1 O1 V1) or (F1 = V1 and F2 O2 V2)
//
// In this form the token is a DNF sufficient for filtering. This uniquely
// determines the position from which to continue fetching data.
func (c *Cursor) toDNF() tDNF {
	if c.IsEmpty() {
		return nil
	}

	dnf := make(tDNF, 0, len(c.elements))
	for i := range c.elements {
		previousElementsWithEqualityCondition := lo.Map(c.elements[:i], func(item CursorElement, _ int) tConjunct {
			return item.toConjunctWithEqualityCondition()
		})

		disjunct := make([]tConjunct, 0, len(previousElementsWithEqualityCondition)+1)
		disjunct = append(disjunct, previousElementsWithEqualityCondition...)
		disjunct = append(disjunct, tConjunct(c.elements[i]))

		dnf = append(dnf, disjunct)
	}

	return dnf
}

// validate checks the cursor against the exact sort spec it was generated
// from. A cursor is valid only for that spec.
func (c *Cursor) validate(orderings Orderings) error {
	if c.IsEmpty() {
		return nil
	}

	// Do not allow discrepancies between the number of fields in the token
	// and in the sort list.
	if len(c.elements) != len(orderings) && len(c.elements) != 0 {
		return fmt.Errorf("%w: cursor field number mismatch", ErrInvalidCursor)
	}

	// Check that sorting and filters agree. An empty element list is allowed.
	for i := range c.elements {
		cond := c.elements[i]
		orderBy := orderings[i]

		// Check that field names match.
		if cond.Field != orderBy.Field {
			return fmt.Errorf("%w: unexpected cursor field '%s'", ErrInvalidCursor, cond.Field)
		}

		// Check that the operator is allowed.
		if !cond.Operator.Valid() {
			return fmt.Errorf("%w: invalid cursor operator '%s'", ErrInvalidCursor, cond.Operator)
		} else if cond.Operator.ForOrdering() != orderBy.Direction {
			return fmt.Errorf("%w: unexpected cursor operator '%s'", ErrInvalidCursor, cond.Operator)
		}
	}

	return nil
}

var _ fmt.Stringer = (*Cursor)(nil)

// Getters is a dictionary of field getters for a record type. Declare the
// fields pagination is based on.
// Example:
//
//	mongopager.Getters[models.Article]{
//		"_id":        func(last models.Article) any { return last.ID },
//		"created_at": func(last models.Article) any { return last.CreatedAt },
//	}
type Getters[T any] map[string]func(T) any

// cursorFromRecord builds a cursor positioned at the given record for the
// given sort spec. Field values come from getters; bson.M records fall back
// to direct field access.
func cursorFromRecord[T any](record T, sort Orderings, getters Getters[T]) (*Cursor, error) {
	ret := Cursor{elements: nil}
	for _, orderBy := range sort {
		value, err := recordFieldValue(record, orderBy.Field, getters)
		if err != nil {
			return nil, err
		}

		ret.elements = append(ret.elements, CursorElement{
			Field:    orderBy.Field,
			Value:    value,
			Operator: orderBy.Direction.ForOperator(),
		})
	}

	return &ret, nil
}

func recordFieldValue[T any](record T, field string, getters Getters[T]) (any, error) {
	if getter, ok := getters[field]; ok {
		return getter(record), nil
	}

	if doc, ok := any(record).(bson.M); ok {
		return doc[field], nil
	}

	return nil, fmt.Errorf("cannot find getter for field '%s' met in ordering", field)
}

// NextPageCursor builds the cursor for the next page of the dataset from the
// last element of the (already trimmed) result set.
func NextPageCursor[T any](resultSet []T, sort Orderings, getters Getters[T]) (*Cursor, error) {
	if len(resultSet) == 0 {
		return nil, nil
	}

	return cursorFromRecord(lo.LastOrEmpty(resultSet), sort, getters)
}

// PrevPageCursor builds the cursor for the previous page of the dataset from
// the first element of the result set. It is applied with DirectionBackward.
func PrevPageCursor[T any](resultSet []T, sort Orderings, getters Getters[T]) (*Cursor, error) {
	if len(resultSet) == 0 {
		return nil, nil
	}

	return cursorFromRecord(resultSet[0], sort, getters)
}

// CursorElement represents a triple (f v o), where:
//
//   - "f" - field of the document.
//   - "v" - value the field is compared with.
//   - "o" - operator applied to the pair (f, v);
type CursorElement struct {
	Field    string   `json:"f"`
	Value    any      `json:"v"`
	Operator Operator `json:"o"`
}

func (c *CursorElement) toConjunctWithEqualityCondition() tConjunct {
	return tConjunct{
		Field:    c.Field,
		Value:    c.Value,
		Operator: operatorEq,
	}
}
