package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/testutil/fixture"
	"relquery/internal/testutil/sqlitedb"
)

func TestReadRequest(t *testing.T) {
	body, err := readRequest("@-", strings.NewReader(`{"table": "tag"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"table": "tag"}`, string(body))

	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"table": "post"}`), 0o600))
	body, err = readRequest(path, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"table": "post"}`, string(body))

	_, err = readRequest("-", strings.NewReader("  \n"))
	assert.Error(t, err)

	_, err = readRequest(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--version"}, nil, &out))
	assert.Equal(t, "relquery dev (none)\n", out.String())
}

func blogSchemaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture.BlogYAML), 0o600))
	return path
}

func TestRun_CompileOnly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	err := run([]string{
		"--compile-only",
		"--database.driver", "postgres",
		"--database.dsn", "postgres://localhost/blog",
		"--schema.file", blogSchemaFile(t),
	}, strings.NewReader(`{"table": "post", "select": {"title": true}, "take": 2}`), &out)
	require.NoError(t, err)

	var got compiledOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got.SQL, `FROM "post"`)
	assert.Contains(t, got.SQL, "LIMIT $1")
	assert.Equal(t, []string{"title"}, got.Columns)
	assert.Equal(t, []any{float64(2)}, got.Args)
}

func TestRun_ExecuteSQLite(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tdb := sqlitedb.NewBlogDB(t)
	requestPath := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(requestPath, []byte(`{
		"table": "tag",
		"select": {"name": true, "posts": {"select": {"title": true}}},
		"where": {"name": "sql"}
	}`), 0o600))

	var out bytes.Buffer
	err := run([]string{
		"--request", requestPath,
		"--database.driver", "sqlite",
		"--database.dsn", tdb.DSN,
		"--schema.file", blogSchemaFile(t),
		"--observability.logging.level", "error",
	}, nil, &out)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 2, "name": "sql", "posts": [{"title": "go tips"}]}]`, out.String())
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	err := run([]string{"--database.driver", "oracle"}, strings.NewReader(`{"table": "tag"}`), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
