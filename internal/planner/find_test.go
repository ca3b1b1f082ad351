package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/filter"
	"relquery/internal/sqlutil"
	"relquery/internal/testutil/fixture"
)

func TestBuildProjectionDefaultsToScalarColumns(t *testing.T) {
	s := fixture.BlogSchema(t)
	cols, err := BuildProjection(sqlutil.MySQL, fixture.Table(t, s, "profile"), "profile", nil)
	require.NoError(t, err)

	var aliases []string
	for _, col := range cols {
		aliases = append(aliases, col.Alias)
	}
	assert.Equal(t, []string{"id", "bio", "userId"}, aliases)
	assert.Equal(t, "`profile`.`user_id` AS `userId`", cols[2].SQL(sqlutil.MySQL))
}

func TestBuildProjectionAddsJoinKeysOnce(t *testing.T) {
	s := fixture.BlogSchema(t)

	tests := []struct {
		name    string
		table   string
		sel     Selection
		aliases []string
	}{
		{"many_to_many projects referenced key", "post", Selection{{Field: "title"}, {Field: "tags"}}, []string{"title", "id"}},
		{"many_to_one projects join column", "post", Selection{{Field: "user"}}, []string{"userId"}},
		{"one_to_many projects referenced key", "user", Selection{{Field: "posts"}, {Field: "profile"}, {Field: "id"}}, []string{"id"}},
		{"composite key", "order_line", Selection{{Field: "shipment"}}, []string{"orderId", "lineNo"}},
		{"embedded column can be selected", "profile", Selection{{Field: "settings"}}, []string{"settings"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, err := BuildProjection(sqlutil.MySQL, fixture.Table(t, s, tt.table), tt.table, tt.sel)
			require.NoError(t, err)
			var aliases []string
			for _, col := range cols {
				aliases = append(aliases, col.Alias)
			}
			assert.Equal(t, tt.aliases, aliases)
		})
	}

	_, err := BuildProjection(sqlutil.MySQL, fixture.Table(t, s, "post"), "post", Selection{{Field: "title", Relation: &RelationSelect{}}})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPlanFindSelectsTitleAndTagKey(t *testing.T) {
	s := fixture.BlogSchema(t)
	q, err := PlanFind(sqlutil.MySQL, fixture.Table(t, s, "post"), Query{
		Select: Selection{{Field: "title"}, {Field: "tags"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `post`.`title` AS `title`, `post`.`id` AS `id` FROM `post`", q.SQL)
	assert.Empty(t, q.Args)
	assert.Equal(t, []string{"title", "id"}, q.Columns)
}

func TestPlanFindWithRelationFilter(t *testing.T) {
	s := fixture.BlogSchema(t)
	where, err := filter.Parse(fixture.Table(t, s, "post"), map[string]any{
		"user": map[string]any{"name": map[string]any{"equals": "a"}},
	})
	require.NoError(t, err)

	q, err := PlanFind(sqlutil.MySQL, fixture.Table(t, s, "post"), Query{
		Select:  Selection{{Field: "id"}, {Field: "title"}},
		Where:   where,
		OrderBy: []OrderTerm{{Field: "id", Desc: true}},
		Limit:   intPtr(10),
		Offset:  intPtr(20),
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `post`.`id` AS `id`, `post`.`title` AS `title` FROM `post` "+
			"LEFT JOIN `user` AS `post__user` ON `post`.`user_id` = `post__user`.`id` "+
			"WHERE (`post__user`.`name` = ?) ORDER BY `post`.`id` DESC LIMIT ? OFFSET ?",
		q.SQL)
	assert.Equal(t, []any{"a", 10, 20}, q.Args)
}

func TestPlanFindOmitsWhereForEmptyFilter(t *testing.T) {
	s := fixture.BlogSchema(t)
	q, err := PlanFind(sqlutil.SQLite, fixture.Table(t, s, "tag"), Query{Where: filter.AndOf()})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "tag"."id" AS "id", "tag"."name" AS "name" FROM "tag"`, q.SQL)
	assert.NotContains(t, q.SQL, "WHERE")
}

func TestPlanFindPostgresPlaceholders(t *testing.T) {
	s := fixture.BlogSchema(t)
	q, err := PlanFind(sqlutil.Postgres, fixture.Table(t, s, "post"), Query{
		Select: Selection{{Field: "id"}},
		Where: filter.AndOf(
			filter.Ops("id", filter.Comparison{Op: filter.OpIn, Value: []any{1, 2}}),
			filter.RelationCondition{Relation: "tags", Quantifier: filter.Some, Where: filter.Eq("name", "go")},
		),
		Offset: intPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "post"."id" AS "id" FROM "post" WHERE "post"."id" IN ($1,$2) AND EXISTS `+
			`(SELECT 1 FROM "post_tags" AS "__post_tags_2" INNER JOIN "tag" AS "__tag_1" `+
			`ON "__post_tags_2"."tag_id" = "__tag_1"."id" WHERE "__post_tags_2"."post_id" = "post"."id" `+
			`AND ("__tag_1"."name" = $3)) OFFSET $4`,
		q.SQL)
	assert.Equal(t, []any{1, 2, "go", 5}, q.Args)
}

func TestPlanFindOffsetOnlySpelling(t *testing.T) {
	s := fixture.BlogSchema(t)
	tag := fixture.Table(t, s, "tag")

	q, err := PlanFind(sqlutil.MySQL, tag, Query{Select: Selection{{Field: "id"}}, Offset: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `tag`.`id` AS `id` FROM `tag` LIMIT 18446744073709551615 OFFSET ?", q.SQL)

	q, err = PlanFind(sqlutil.SQLite, tag, Query{Select: Selection{{Field: "id"}}, Offset: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "tag"."id" AS "id" FROM "tag" LIMIT -1 OFFSET ?`, q.SQL)

	_, err = PlanFind(sqlutil.SQLite, tag, Query{Limit: intPtr(-1)})
	assert.Error(t, err)
}

func TestPlanFindOrderByRelationIsUnsupported(t *testing.T) {
	s := fixture.BlogSchema(t)
	_, err := PlanFind(sqlutil.MySQL, fixture.Table(t, s, "post"), Query{OrderBy: []OrderTerm{{Field: "user"}}})
	assert.ErrorIs(t, err, ErrUnsupported)
}
