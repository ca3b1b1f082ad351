package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"relquery/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.validateEngine(result)
	c.validateSchema(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	driver := d.DriverName()
	switch driver {
	case DriverMySQL:
		if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
		if _, err := d.EffectiveDatabaseName(); err != nil {
			field := "database.database"
			if strings.HasPrefix(err.Error(), "database.dsn") {
				field = "database.dsn"
			}
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: err.Error(),
				Hint:    "either remove database.database or set it to match the DSN database",
			})
		}
		d.TLS.validate(result)
	case DriverPostgres, DriverSQLite:
		if strings.TrimSpace(d.ConnectionString) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.dsn",
				Message: fmt.Sprintf("the %s driver requires a DSN", driver),
				Hint:    "set database.dsn or database.dsn_file",
			})
		}
		if d.TLS.Mode != "" {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "database.tls.mode",
				Message: fmt.Sprintf("TLS settings apply to mysql only and are ignored for %s", driver),
				Hint:    "configure TLS in the DSN instead",
			})
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unsupported database driver %q", d.Driver),
			Hint:    "valid values are: mysql, postgres, sqlite",
		})
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("invalid TLS mode %q", t.Mode),
			Hint:    "valid values are: off, skip-verify, verify-ca, verify-full",
		})
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.ca_file",
			Message: "CA file is required for verify-ca and verify-full modes",
		})
	}

	if (t.CertFile != "") != (t.KeyFile != "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.cert_file",
			Message: "both cert_file and key_file must be specified for client certificate authentication",
			Hint:    "provide both cert_file and key_file, or neither",
		})
	}

	if t.Mode == "skip-verify" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.mode",
			Message: "skip-verify mode does not verify server certificates",
			Hint:    "use verify-ca or verify-full in production",
		})
	}
}

func (c *Config) validateEngine(result *ValidationResult) {
	if _, err := sqlutil.DialectByName(c.DialectName()); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "engine.dialect",
			Message: err.Error(),
			Hint:    "valid values are: mysql, postgres, sqlite",
		})
	} else if c.Engine.Dialect != "" && c.Engine.Dialect != c.Database.DriverName() {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "engine.dialect",
			Message: fmt.Sprintf("dialect %q differs from database driver %q", c.Engine.Dialect, c.Database.DriverName()),
		})
	}

	if c.Engine.FanOut < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "engine.fan_out",
			Message: "fan_out cannot be negative",
		})
	}
	if c.Engine.MaxInClause < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "engine.max_in_clause",
			Message: "max_in_clause cannot be negative",
		})
	}
}

func (c *Config) validateSchema(result *ValidationResult) {
	s := c.Schema
	switch {
	case s.File == "" && !s.Introspect:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.file",
			Message: "no schema source configured",
			Hint:    "set schema.file or enable schema.introspect",
		})
	case s.File != "" && s.Introspect:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.introspect",
			Message: "schema.file and schema.introspect are mutually exclusive",
		})
	case s.Introspect && c.Database.DriverName() != DriverMySQL:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "schema.introspect",
			Message: "introspection reads MySQL/TiDB information_schema",
			Hint:    "use schema.file for postgres and sqlite",
		})
	case s.Introspect:
		if name, err := c.Database.EffectiveDatabaseName(); err == nil && name == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "schema.introspect",
				Message: "introspection requires a database name",
				Hint:    "set database.database or include the database in database.dsn",
			})
		}
	}

	if len(s.UUIDColumns) > 0 && !s.Introspect {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "schema.uuid_columns",
			Message: "uuid_columns only applies to introspected schemas",
			Hint:    "declare type: uuid on columns in the schema file",
		})
	}
	validatePatternMap(result, "schema.uuid_columns", s.UUIDColumns)

	if !s.Introspect && (len(s.AllowTables) > 0 || len(s.DenyTables) > 0 || len(s.AllowColumns) > 0 || len(s.DenyColumns) > 0) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "schema.allow_tables",
			Message: "table and column filters only apply to introspected schemas",
		})
	}
	validatePatternList(result, "schema.allow_tables", s.AllowTables)
	validatePatternList(result, "schema.deny_tables", s.DenyTables)
	validatePatternMap(result, "schema.allow_columns", s.AllowColumns)
	validatePatternMap(result, "schema.deny_columns", s.DenyColumns)
}

func validatePatternList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid glob pattern %q: %v", pattern, err),
			})
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	tablePatterns := make([]string, 0, len(patternMap))
	for tablePattern := range patternMap {
		tablePatterns = append(tablePatterns, tablePattern)
	}
	sort.Strings(tablePatterns)

	for _, tablePattern := range tablePatterns {
		if strings.TrimSpace(tablePattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "table pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err),
			})
		}
		for _, columnPattern := range patternMap[tablePattern] {
			if strings.TrimSpace(columnPattern) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern),
				})
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "probe"); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err),
				})
			}
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is out of range", o.TraceSampleRatio),
			Hint:    "use a value from 0.0 to 1.0",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
