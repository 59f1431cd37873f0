package mongopager

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Params_validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"ok", Params{Page: 1, Limit: 10}, false},
		{"zero page", Params{Page: 0, Limit: 10}, true},
		{"negative page", Params{Page: -3, Limit: 10}, true},
		{"bad sort field", Params{Page: 1, Limit: 10, Sort: Orderings{{Field: "$where", Direction: DirectionASC}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("%s: err=%v wantErr=%v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("%s: expected ErrInvalidParams, got %v", tt.name, err)
			}
		})
	}
}

func Test_Params_normalized(t *testing.T) {
	cfg := DefaultPagerConfig()

	assert.Equal(t, MinLimit, Params{Page: 1, Limit: -5}.normalized(cfg).Limit)
	assert.Equal(t, cfg.MaxLimit, Params{Page: 1, Limit: 10_000}.normalized(cfg).Limit)
	assert.Equal(t, 25, Params{Page: 1, Limit: 25}.normalized(cfg).Limit)
}

func Test_ParseQuery(t *testing.T) {
	cfg := DefaultPagerConfig()
	mapping := FieldMapping{
		"createdAt": "created_at",
		"id":        "_id",
	}

	tests := []struct {
		name    string
		query   string
		want    Params
		wantErr bool
	}{
		{
			name:  "defaults",
			query: "",
			want:  Params{Page: 1, Limit: cfg.DefaultLimit},
		},
		{
			name:  "page and limit",
			query: "page=3&limit=25",
			want:  Params{Page: 3, Limit: 25},
		},
		{
			name:  "limit clamped to max",
			query: "limit=100000",
			want:  Params{Page: 1, Limit: cfg.MaxLimit},
		},
		{
			name:  "sort entries resolve aliases",
			query: "sort=createdAt+desc&sort=id+asc",
			want: Params{
				Page:  1,
				Limit: cfg.DefaultLimit,
				Sort: Orderings{
					{Field: "created_at", Direction: DirectionDESC},
					{Field: "_id", Direction: DirectionASC},
				},
			},
		},
		{
			name:  "cursor passes through",
			query: "cursor=sometoken",
			want:  Params{Page: 1, Limit: cfg.DefaultLimit, Cursor: "sometoken"},
		},
		{
			name:    "non-numeric page",
			query:   "page=abc",
			wantErr: true,
		},
		{
			name:    "zero page",
			query:   "page=0",
			wantErr: true,
		},
		{
			name:    "non-numeric limit",
			query:   "limit=abc",
			wantErr: true,
		},
		{
			name:    "unknown sort alias",
			query:   "sort=nosuch+asc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseQuery(values, cfg, mapping)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidParams), "expected ErrInvalidParams, got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_RawCursorPager_Decode(t *testing.T) {
	token := NewCursor(
		CursorElement{Field: "_id", Value: "abc", Operator: OperatorGT},
	).String()

	pager, err := RawCursorPager{Limit: 20, StartToken: token}.Decode(
		OrderBy{Field: "_id", Direction: DirectionASC},
	)
	require.NoError(t, err)
	assert.Equal(t, 20, pager.GetLimit())
	assert.False(t, pager.GetCursor().IsEmpty())

	_, err = RawCursorPager{Limit: 20, StartToken: "###"}.Decode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCursor))
}
