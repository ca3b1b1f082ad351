package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/schema"
	"relquery/internal/testutil/fixture"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestParseScalarAndOperators(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	node, err := Parse(post, decode(t, `{"title": "a"}`))
	require.NoError(t, err)
	assert.Equal(t, Eq("title", "a"), node)

	node, err = Parse(post, decode(t, `{"id": {"lte": 10, "in": [1, 2.5, 3], "gt": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, Ops("id",
		Comparison{Op: OpGt, Value: int64(1)},
		Comparison{Op: OpLte, Value: int64(10)},
		Comparison{Op: OpIn, Value: []any{int64(1), 2.5, int64(3)}},
	), node)

	node, err = Parse(post, decode(t, `{"content": null}`))
	require.NoError(t, err)
	assert.Equal(t, Eq("content", nil), node)
}

func TestParseMultipleKeysSorted(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	node, err := Parse(post, decode(t, `{"title": "a", "id": 1}`))
	require.NoError(t, err)
	assert.Equal(t, Group{Op: And, Children: []Node{Eq("id", int64(1)), Eq("title", "a")}}, node)
}

func TestParseEmpty(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	node, err := Parse(post, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, node)

	node, err = ParseValue(post, nil)
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestParseCombinators(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	node, err := Parse(post, decode(t, `{"OR": [{"id": 2}, {"title": {"contains": "x"}}], "NOT": {"published": false}}`))
	require.NoError(t, err)
	assert.Equal(t, Group{Op: And, Children: []Node{
		Not{Child: Eq("published", false)},
		Group{Op: Or, Children: []Node{
			Eq("id", int64(2)),
			Ops("title", Comparison{Op: OpContains, Value: "x"}),
		}},
	}}, node)

	// An unrestricted branch makes the whole disjunction unrestricted.
	node, err = Parse(post, decode(t, `{"OR": [{"id": 2}, {}]}`))
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestParseRelations(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")
	user := fixture.Table(t, s, "user")

	node, err := Parse(post, decode(t, `{"user": {"name": {"equals": "a"}}}`))
	require.NoError(t, err)
	assert.Equal(t, RelationCondition{
		Relation:   "user",
		Quantifier: Is,
		Where:      Ops("name", Comparison{Op: OpEquals, Value: "a"}),
	}, node)

	node, err = Parse(user, decode(t, `{"posts": {"none": {"published": true}, "some": {}}}`))
	require.NoError(t, err)
	assert.Equal(t, Group{Op: And, Children: []Node{
		RelationCondition{Relation: "posts", Quantifier: None, Where: Eq("published", true)},
		RelationCondition{Relation: "posts", Quantifier: Some},
	}}, node)

	node, err = Parse(post, decode(t, `{"tags": {"name": "go"}}`))
	require.NoError(t, err)
	assert.Equal(t, RelationCondition{Relation: "tags", Quantifier: Some, Where: Eq("name", "go")}, node)
}

func TestParseErrors(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	tests := []struct {
		name string
		raw  string
		path string
	}{
		{"list without operator", `{"id": [1, 2]}`, "id"},
		{"unknown operator", `{"id": {"between": [1, 2]}}`, "id.between"},
		{"in needs array", `{"id": {"in": 1}}`, "id.in"},
		{"empty operator object", `{"id": {}}`, "id"},
		{"empty OR", `{"OR": []}`, "OR"},
		{"OR with scalar", `{"OR": [1]}`, "OR[0]"},
		{"empty NOT", `{"NOT": {}}`, "NOT"},
		{"relation scalar", `{"user": 1}`, "user"},
		{"mixed quantifiers", `{"tags": {"some": {}, "name": "x"}}`, "tags"},
		{"nested object value", `{"title": {"equals": {"a": 1}}}`, "title.equals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(post, decode(t, tt.raw))
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.path, parseErr.Path)
		})
	}
}

func TestParseUnknownField(t *testing.T) {
	s := fixture.BlogSchema(t)
	post := fixture.Table(t, s, "post")

	_, err := Parse(post, decode(t, `{"user": {"nickname": "x"}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrUnknownField)

	_, err = ParseValue(post, "title")
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestAndOrHelpers(t *testing.T) {
	assert.Nil(t, AndOf())
	assert.Nil(t, AndOf(nil, nil))
	assert.Equal(t, Eq("a", 1), AndOf(nil, Eq("a", 1)))
	assert.Nil(t, OrOf(Eq("a", 1), nil))
	assert.Equal(t, Group{Op: Or, Children: []Node{Eq("a", 1), Eq("b", 2)}}, OrOf(Eq("a", 1), Eq("b", 2)))
}
