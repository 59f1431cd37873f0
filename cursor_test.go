package mongopager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func Test_Cursor_RoundTrip(t *testing.T) {
	original := NewCursor(
		CursorElement{Field: "created_at", Value: "2024-01-02T03:04:05Z", Operator: OperatorLT},
		CursorElement{Field: "_id", Value: "abc123", Operator: OperatorGT},
	)

	token := original.String()
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, original.GetElements(), decoded.GetElements())
}

func Test_DecodeCursor(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantNil bool
		wantErr bool
	}{
		{"empty token means beginning", "", true, false},
		{"not base64", "%%%not-base64%%%", false, true},
		{"base64 of not json", "bm90LWpzb24", false, true},
		{"valid token", NewCursor(CursorElement{Field: "_id", Value: "x", Operator: OperatorGT}).String(), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeCursor(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCursor), "expected ErrInvalidCursor, got %v", err)
				return
			}

			require.NoError(t, err)
			if tt.wantNil != (cursor == nil) {
				t.Errorf("%s: cursor nil=%v want %v", tt.name, cursor == nil, tt.wantNil)
			}
		})
	}
}

func Test_Cursor_String_Empty(t *testing.T) {
	var nilCursor *Cursor
	assert.Equal(t, "", nilCursor.String())
	assert.Equal(t, "", NewCursor().String())
	assert.True(t, nilCursor.IsEmpty())
}

func Test_Cursor_ToBSON(t *testing.T) {
	tests := []struct {
		name   string
		cursor *Cursor
		want   bson.M
	}{
		{
			name:   "empty cursor has no condition",
			cursor: NewCursor(),
			want:   nil,
		},
		{
			name: "single field is a strict comparison",
			cursor: NewCursor(
				CursorElement{Field: "_id", Value: 10, Operator: OperatorGT},
			),
			want: bson.M{"_id": bson.M{"$gt": 10}},
		},
		{
			name: "two fields expand to lexicographic DNF",
			cursor: NewCursor(
				CursorElement{Field: "created_at", Value: "2024-01-02", Operator: OperatorLT},
				CursorElement{Field: "_id", Value: 10, Operator: OperatorGT},
			),
			want: bson.M{"$or": []bson.M{
				{"created_at": bson.M{"$lt": "2024-01-02"}},
				{"$and": []bson.M{
					{"created_at": bson.M{"$eq": "2024-01-02"}},
					{"_id": bson.M{"$gt": 10}},
				}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cursor.ToBSON())
		})
	}
}

func Test_Cursor_inverted(t *testing.T) {
	cursor := NewCursor(
		CursorElement{Field: "created_at", Value: "2024-01-02", Operator: OperatorLT},
		CursorElement{Field: "_id", Value: 10, Operator: OperatorGT},
	)

	inverted := cursor.inverted()
	require.Len(t, inverted.GetElements(), 2)
	assert.Equal(t, OperatorGT, inverted.GetElements()[0].Operator)
	assert.Equal(t, OperatorLT, inverted.GetElements()[1].Operator)

	// Original is untouched.
	assert.Equal(t, OperatorLT, cursor.GetElements()[0].Operator)
}

func Test_Cursor_validate(t *testing.T) {
	orderings := Orderings{
		{Field: "created_at", Direction: DirectionDESC},
		{Field: "_id", Direction: DirectionASC},
	}

	tests := []struct {
		name    string
		cursor  *Cursor
		wantErr bool
	}{
		{
			name:    "empty cursor always valid",
			cursor:  nil,
			wantErr: false,
		},
		{
			name: "matching cursor",
			cursor: NewCursor(
				CursorElement{Field: "created_at", Value: "x", Operator: OperatorLT},
				CursorElement{Field: "_id", Value: 1, Operator: OperatorGT},
			),
			wantErr: false,
		},
		{
			name: "field number mismatch",
			cursor: NewCursor(
				CursorElement{Field: "created_at", Value: "x", Operator: OperatorLT},
			),
			wantErr: true,
		},
		{
			name: "field name mismatch",
			cursor: NewCursor(
				CursorElement{Field: "updated_at", Value: "x", Operator: OperatorLT},
				CursorElement{Field: "_id", Value: 1, Operator: OperatorGT},
			),
			wantErr: true,
		},
		{
			name: "operator disagrees with direction",
			cursor: NewCursor(
				CursorElement{Field: "created_at", Value: "x", Operator: OperatorGT},
				CursorElement{Field: "_id", Value: 1, Operator: OperatorGT},
			),
			wantErr: true,
		},
		{
			name: "invalid operator",
			cursor: NewCursor(
				CursorElement{Field: "created_at", Value: "x", Operator: Operator("!=")},
				CursorElement{Field: "_id", Value: 1, Operator: OperatorGT},
			),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cursor.validate(orderings)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s: err=%v wantErr=%v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidCursor) {
				t.Errorf("%s: expected ErrInvalidCursor, got %v", tt.name, err)
			}
		})
	}
}

type cursorTestArticle struct {
	ID        string
	CreatedAt string
}

func Test_NextPageCursor_WithGetters(t *testing.T) {
	sort := Orderings{
		{Field: "created_at", Direction: DirectionDESC},
		{Field: "_id", Direction: DirectionASC},
	}
	getters := Getters[cursorTestArticle]{
		"_id":        func(a cursorTestArticle) any { return a.ID },
		"created_at": func(a cursorTestArticle) any { return a.CreatedAt },
	}
	resultSet := []cursorTestArticle{
		{ID: "a", CreatedAt: "2024-01-03"},
		{ID: "b", CreatedAt: "2024-01-02"},
	}

	next, err := NextPageCursor(resultSet, sort, getters)
	require.NoError(t, err)
	require.Len(t, next.GetElements(), 2)
	assert.Equal(t, CursorElement{Field: "created_at", Value: "2024-01-02", Operator: OperatorLT}, next.GetElements()[0])
	assert.Equal(t, CursorElement{Field: "_id", Value: "b", Operator: OperatorGT}, next.GetElements()[1])

	prev, err := PrevPageCursor(resultSet, sort, getters)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", prev.GetElements()[0].Value)
}

func Test_NextPageCursor_RawDocuments(t *testing.T) {
	sort := Orderings{{Field: "_id", Direction: DirectionASC}}
	resultSet := []bson.M{
		{"_id": "a"},
		{"_id": "b"},
	}

	next, err := NextPageCursor(resultSet, sort, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", next.GetElements()[0].Value)
}

func Test_NextPageCursor_Empty(t *testing.T) {
	next, err := NextPageCursor([]bson.M{}, Orderings{{Field: "_id", Direction: DirectionASC}}, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func Test_NextPageCursor_MissingGetter(t *testing.T) {
	sort := Orderings{{Field: "created_at", Direction: DirectionDESC}}

	_, err := NextPageCursor([]cursorTestArticle{{ID: "a"}}, sort, Getters[cursorTestArticle]{})
	require.Error(t, err)
}
