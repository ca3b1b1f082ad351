package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectByName(t *testing.T) {
	for name, want := range map[string]string{
		"":           "mysql",
		"TiDB":       "mysql",
		"postgresql": "postgres",
		"sqlite3":    "sqlite",
	} {
		d, err := DialectByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, d.Name)
	}

	_, err := DialectByName("oracle")
	assert.Error(t, err)
}

func TestDialectQuoting(t *testing.T) {
	assert.Equal(t, "`post`.`title`", MySQL.Qualify("post", "title"))
	assert.Equal(t, `"post"."title"`, Postgres.Qualify("post", "title"))
	assert.Equal(t, `"title"`, SQLite.Qualify("", "title"))
	assert.Equal(t, "`post` AS `p`", MySQL.TableAs("post", "p"))
	assert.Equal(t, `"post"`, Postgres.TableAs("post", ""))
	assert.Equal(t, "`post`", MySQL.TableAs("post", "post"))
}

func TestDialectFinalize(t *testing.T) {
	sql, err := Postgres.Finalize("SELECT 1 WHERE a = ? AND b IN (?,?)")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2,$3)", sql)

	sql, err = MySQL.Finalize("a = ?")
	require.NoError(t, err)
	assert.Equal(t, "a = ?", sql)
}

func TestOffsetOnlyLimit(t *testing.T) {
	assert.Equal(t, "18446744073709551615", MySQL.OffsetOnlyLimit())
	assert.Equal(t, "-1", SQLite.OffsetOnlyLimit())
	assert.Empty(t, Postgres.OffsetOnlyLimit())
}
