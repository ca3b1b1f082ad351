package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("built from discrete fields", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "db.example.com",
			Port:     3306,
			User:     "admin",
			Password: "p@ss:w0rd!",
			Database: "mydb",
		}

		parsed, err := mysql.ParseDSN(cfg.DSN())
		require.NoError(t, err)
		assert.Equal(t, "admin", parsed.User)
		assert.Equal(t, "p@ss:w0rd!", parsed.Passwd)
		assert.Equal(t, "db.example.com:3306", parsed.Addr)
		assert.Equal(t, "mydb", parsed.DBName)
		assert.True(t, parsed.ParseTime)
		assert.Equal(t, time.UTC, parsed.Loc)
	})

	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name:     "explicit DSN without params",
			config:   DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/test"},
			expected: "root@tcp(localhost:4000)/test?parseTime=true&loc=UTC",
		},
		{
			name:     "explicit DSN keeps existing params",
			config:   DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/test?parseTime=false&loc=Local"},
			expected: "root@tcp(localhost:4000)/test?parseTime=false&loc=Local",
		},
		{
			name:     "explicit DSN with parseTime only",
			config:   DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/test?parseTime=true"},
			expected: "root@tcp(localhost:4000)/test?parseTime=true&loc=UTC",
		},
		{
			name: "explicit DSN gets TLS mode",
			config: DatabaseConfig{
				ConnectionString: "root@tcp(localhost:4000)/test",
				TLS:              DatabaseTLSConfig{Mode: "skip-verify"},
			},
			expected: "root@tcp(localhost:4000)/test?parseTime=true&loc=UTC&tls=skip-verify",
		},
		{
			name:     "postgres DSN passes through",
			config:   DatabaseConfig{Driver: "postgres", ConnectionString: "postgres://u@localhost/app?sslmode=disable"},
			expected: "postgres://u@localhost/app?sslmode=disable",
		},
		{
			name:     "sqlite DSN passes through",
			config:   DatabaseConfig{Driver: "sqlite3", ConnectionString: "file:blog.db"},
			expected: "file:blog.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestDatabaseConfig_DriverName(t *testing.T) {
	for input, expected := range map[string]string{
		"":           DriverMySQL,
		"TiDB":       DriverMySQL,
		"postgresql": DriverPostgres,
		"sqlite3":    DriverSQLite,
		"oracle":     "oracle",
	} {
		cfg := DatabaseConfig{Driver: input}
		assert.Equal(t, expected, cfg.DriverName(), input)
	}
}

func TestConfig_DialectName(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: "postgres"}}
	assert.Equal(t, "postgres", cfg.DialectName())

	cfg.Engine.Dialect = "sqlite"
	assert.Equal(t, "sqlite", cfg.DialectName())
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	t.Run("from DSN", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/shop"}
		name, err := cfg.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "shop", name)
	})

	t.Run("matching explicit name", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/shop", Database: "shop"}
		name, err := cfg.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "shop", name)
	})

	t.Run("mismatch", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "root@tcp(localhost:4000)/shop", Database: "blog"}
		_, err := cfg.EffectiveDatabaseName()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database mismatch")
	})

	t.Run("invalid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{ConnectionString: "not a dsn"}
		_, err := cfg.EffectiveDatabaseName()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.dsn is invalid")
	})
}

// newLoadFlags returns a parsed flag set with the configuration flags
// registered. HOME is redirected so no user config file is picked up.
func newLoadFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	fs := pflag.NewFlagSet("relquery", pflag.ContinueOnError)
	Flags(fs)
	fs.String("request", "", "request file")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newLoadFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.MaxLifetime)
	assert.Equal(t, 4, cfg.Engine.FanOut)
	assert.Equal(t, 1000, cfg.Engine.MaxInClause)
	assert.Equal(t, "relquery", cfg.Observability.ServiceName)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.Equal(t, 10*time.Second, cfg.Observability.OTLP.Timeout)
	assert.False(t, cfg.UsesStdin())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: filehost
  port: 3306
  user: fileuser
engine:
  fan_out: 2
schema:
  file: blog.yaml
  uuid_columns:
    users: [id, "*_uuid"]
naming:
  plural_overrides:
    staff: staff
`), 0o600))

	t.Setenv("RELQ_DATABASE_PORT", "5000")
	t.Setenv("RELQ_DATABASE_USER", "envuser")
	fs := newLoadFlags(t, "--config", path, "--database.user", "flaguser", "--engine.max_in_clause", "50", "--request", "q.json")

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "filehost", cfg.Database.Host)
	assert.Equal(t, 5000, cfg.Database.Port)
	assert.Equal(t, "flaguser", cfg.Database.User)
	assert.Equal(t, 2, cfg.Engine.FanOut)
	assert.Equal(t, 50, cfg.Engine.MaxInClause)
	assert.Equal(t, "blog.yaml", cfg.Schema.File)
	assert.Equal(t, []string{"id", "*_uuid"}, cfg.Schema.UUIDColumns["users"])
	assert.Equal(t, "staff", cfg.Naming.PluralOverrides["staff"])
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o600))

	_, err := Load(newLoadFlags(t, "--config", path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config")
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(newLoadFlags(t, "-c", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_SecretFiles(t *testing.T) {
	dir := t.TempDir()
	passwordPath := filepath.Join(dir, "password")
	dsnPath := filepath.Join(dir, "dsn")
	require.NoError(t, os.WriteFile(passwordPath, []byte("s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(dsnPath, []byte("  file:blog.db \n"), 0o600))

	cfg, err := Load(newLoadFlags(t,
		"--database.password_file", passwordPath,
		"--database.dsn_file", dsnPath,
	))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "file:blog.db", cfg.Database.ConnectionString)
}

func TestLoad_ExplicitPasswordWinsOverFile(t *testing.T) {
	cfg, err := Load(newLoadFlags(t,
		"--database.password", "inline",
		"--database.password_file", filepath.Join(t.TempDir(), "missing"),
	))
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Database.Password)
}

func TestLoad_TableFilters(t *testing.T) {
	t.Setenv("RELQ_SCHEMA_ALLOW_TABLES", "orders,customers")
	cfg, err := Load(newLoadFlags(t, "--schema.deny_tables", "audit_*,tmp_*"))
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "customers"}, cfg.Schema.AllowTables)
	assert.Equal(t, []string{"audit_*", "tmp_*"}, cfg.Schema.DenyTables)
	assert.Empty(t, cfg.Schema.DenyColumns)
}

func TestLoad_SignalSpecificOTLP(t *testing.T) {
	cfg, err := Load(newLoadFlags(t,
		"--observability.otlp.endpoint", "collector:4317",
		"--observability.traces.endpoint", "traces:4318",
		"--observability.traces.protocol", "http/protobuf",
	))
	require.NoError(t, err)

	traces := cfg.Observability.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.Equal(t, "gzip", traces.Compression)

	logs := cfg.Observability.GetLogsConfig()
	assert.Equal(t, "collector:4317", logs.Endpoint)
	assert.Equal(t, "grpc", logs.Protocol)
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "base:4317",
		Protocol:    "grpc",
		Insecure:    true,
		Headers:     map[string]string{"a": "1", "b": "2"},
		Timeout:     10 * time.Second,
		Compression: "gzip",
	}
	merged := mergeOTLPConfigs(base, OTLPConfig{
		Endpoint: "override:4317",
		Headers:  map[string]string{"b": "3"},
	})

	assert.Equal(t, "override:4317", merged.Endpoint)
	assert.Equal(t, "grpc", merged.Protocol)
	assert.False(t, merged.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, merged.Headers)
	assert.Equal(t, 10*time.Second, merged.Timeout)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, base.Headers)
}

func TestConfig_Validate(t *testing.T) {
	// Helper to create a valid base config
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Database: "test",
				TLS: DatabaseTLSConfig{
					Mode: "off",
				},
				Pool: PoolConfig{
					MaxOpen: 25,
					MaxIdle: 5,
				},
			},
			Engine: EngineConfig{
				FanOut:      4,
				MaxInClause: 1000,
			},
			Schema: SchemaConfig{
				File: "schema.yaml",
			},
			Observability: ObservabilityConfig{
				TraceSampleRatio: 1,
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
				OTLP: OTLPConfig{
					Protocol:    "grpc",
					Compression: "gzip",
				},
			},
		}
	}

	hasErrorFor := func(result *ValidationResult, field string) bool {
		for _, e := range result.Errors {
			if e.Field == field {
				return true
			}
		}
		return false
	}
	hasWarningFor := func(result *ValidationResult, field string) bool {
		for _, w := range result.Warnings {
			if w.Field == field {
				return true
			}
		}
		return false
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Empty(t, result.Warnings)
	})

	t.Run("invalid database port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		assert.True(t, hasErrorFor(cfg.Validate(), "database.port"))

		cfg.Database.Port = 70000
		assert.True(t, hasErrorFor(cfg.Validate(), "database.port"))
	})

	t.Run("port ignored with DSN", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		cfg.Database.Database = ""
		cfg.Database.ConnectionString = "root@tcp(localhost:4000)/test"
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "oracle"
		result := cfg.Validate()
		assert.True(t, hasErrorFor(result, "database.driver"))
		assert.True(t, hasErrorFor(result, "engine.dialect"))
	})

	t.Run("postgres requires DSN", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "postgres"
		cfg.Database.TLS.Mode = ""
		assert.True(t, hasErrorFor(cfg.Validate(), "database.dsn"))

		cfg.Database.ConnectionString = "postgres://localhost/app"
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("TLS ignored outside mysql warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "sqlite"
		cfg.Database.ConnectionString = "file:blog.db"
		assert.True(t, hasWarningFor(cfg.Validate(), "database.tls.mode"))
	})

	t.Run("database mismatch", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.ConnectionString = "root@tcp(localhost:4000)/other"
		assert.True(t, hasErrorFor(cfg.Validate(), "database.database"))
	})

	t.Run("invalid TLS mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "invalid"
		assert.True(t, hasErrorFor(cfg.Validate(), "database.tls.mode"))
	})

	t.Run("valid TLS modes", func(t *testing.T) {
		for _, mode := range []string{"", "off", "skip-verify", "verify-ca", "verify-full"} {
			cfg := validConfig()
			cfg.Database.TLS.Mode = mode
			cfg.Database.TLS.CAFile = "/path/to/ca.pem"
			assert.False(t, cfg.Validate().HasErrors(), "mode %q should be valid", mode)
		}
	})

	t.Run("verify mode requires CA file", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "verify-full"
		assert.True(t, hasErrorFor(cfg.Validate(), "database.tls.ca_file"))
	})

	t.Run("client cert requires key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.CertFile = "/path/to/cert.pem"
		assert.True(t, hasErrorFor(cfg.Validate(), "database.tls.cert_file"))
	})

	t.Run("skip-verify warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "skip-verify"
		assert.True(t, hasWarningFor(cfg.Validate(), "database.tls.mode"))
	})

	t.Run("max_idle greater than max_open warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Pool.MaxOpen = 5
		cfg.Database.Pool.MaxIdle = 10
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.True(t, hasWarningFor(result, "database.pool.max_idle"))
	})

	t.Run("negative pool sizes invalid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Pool.MaxOpen = -1
		cfg.Database.Pool.MaxIdle = -1
		result := cfg.Validate()
		assert.True(t, hasErrorFor(result, "database.pool.max_open"))
		assert.True(t, hasErrorFor(result, "database.pool.max_idle"))
	})

	t.Run("negative engine limits invalid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Engine.FanOut = -1
		cfg.Engine.MaxInClause = -1
		result := cfg.Validate()
		assert.True(t, hasErrorFor(result, "engine.fan_out"))
		assert.True(t, hasErrorFor(result, "engine.max_in_clause"))
	})

	t.Run("dialect override differing from driver warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Engine.Dialect = "postgres"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		assert.True(t, hasWarningFor(result, "engine.dialect"))
	})

	t.Run("schema source required", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.File = ""
		assert.True(t, hasErrorFor(cfg.Validate(), "schema.file"))
	})

	t.Run("schema sources are exclusive", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.Introspect = true
		assert.True(t, hasErrorFor(cfg.Validate(), "schema.introspect"))
	})

	t.Run("introspection requires mysql", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.File = ""
		cfg.Schema.Introspect = true
		assert.False(t, cfg.Validate().HasErrors())

		cfg.Database.Driver = "postgres"
		cfg.Database.ConnectionString = "postgres://localhost/app"
		cfg.Database.TLS.Mode = ""
		assert.True(t, hasErrorFor(cfg.Validate(), "schema.introspect"))
	})

	t.Run("invalid uuid column patterns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.File = ""
		cfg.Schema.Introspect = true
		cfg.Schema.UUIDColumns = map[string][]string{
			"users": {"["},
			" ":     {"id"},
			"posts": {""},
		}
		result := cfg.Validate()
		count := 0
		for _, e := range result.Errors {
			if e.Field == "schema.uuid_columns" {
				count++
			}
		}
		assert.Equal(t, 3, count)
	})

	t.Run("uuid columns without introspection warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.UUIDColumns = map[string][]string{"users": {"id"}}
		assert.True(t, hasWarningFor(cfg.Validate(), "schema.uuid_columns"))
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Logging.Level = "verbose"
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.logging.level"))
	})

	t.Run("invalid log format", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Logging.Format = "xml"
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.logging.format"))
	})

	t.Run("sample ratio out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.TraceSampleRatio = 1.5
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.trace_sample_ratio"))
	})

	t.Run("invalid OTLP protocol", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Protocol = "websocket"
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.otlp.protocol"))
	})

	t.Run("invalid OTLP http/protobuf endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "collector"}
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.traces.endpoint"))
	})

	t.Run("valid OTLP http/protobuf endpoint", func(t *testing.T) {
		for _, endpoint := range []string{"collector:4318", "https://collector.example.com/v1/traces"} {
			cfg := validConfig()
			cfg.Observability.Logs = &OTLPConfig{Protocol: "http/protobuf", Endpoint: endpoint}
			assert.False(t, cfg.Validate().HasErrors(), endpoint)
		}
	})

	t.Run("invalid OTLP compression", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTLP.Compression = "zstd"
		assert.True(t, hasErrorFor(cfg.Validate(), "observability.otlp.compression"))
	})

	t.Run("table filters without introspection warn", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.DenyTables = []string{"audit_*"}
		result := cfg.Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.True(t, hasWarningFor(result, "schema.allow_tables"))
	})

	t.Run("invalid table filter patterns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Schema.AllowTables = []string{"["}
		cfg.Schema.DenyTables = []string{" "}
		cfg.Schema.DenyColumns = map[string][]string{"*": {"["}}
		result := cfg.Validate()
		assert.True(t, hasErrorFor(result, "schema.allow_tables"))
		assert.True(t, hasErrorFor(result, "schema.deny_tables"))
		assert.True(t, hasErrorFor(result, "schema.deny_columns"))
	})

	t.Run("multiple errors collected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Port = 0
		cfg.Engine.FanOut = -1
		cfg.Observability.Logging.Level = "invalid"

		result := cfg.Validate()
		assert.Len(t, result.Errors, 3)
		assert.Contains(t, result.Error(), "database.port")
		assert.Contains(t, result.Error(), "engine.fan_out")
	})
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "database.port",
			Message: "port is invalid",
			Hint:    "use a port between 1 and 65535",
		}
		assert.Equal(t, "database.port: port is invalid (hint: use a port between 1 and 65535)", err.Error())
	})

	t.Run("without hint", func(t *testing.T) {
		err := ValidationError{
			Field:   "database.port",
			Message: "port is invalid",
		}
		assert.Equal(t, "database.port: port is invalid", err.Error())
	})
}

func TestConfig_ValidateIntrospectionNeedsDatabase(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "mysql", Port: 4000},
		Schema:   SchemaConfig{Introspect: true},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "introspection requires a database name")

	cfg.Database.ConnectionString = "root@tcp(localhost:4000)/shop"
	assert.False(t, cfg.Validate().HasErrors(), cfg.Validate().Error())
}
