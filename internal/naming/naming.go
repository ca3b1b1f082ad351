package naming

import (
	"log/slog"
	"strings"
)

// Namer converts SQL names to property names. It is used while building a
// schema and is not safe for concurrent use.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// PropertyName converts a column or table name to camelCase.
// Example: "user_name" -> "userName"
func (n *Namer) PropertyName(sqlName string) string {
	return toCamelCase(sqlName)
}

// ManyToOneName names a many-to-one relation after its FK column with common
// suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.PropertyName(name)
}

// OneToManyName names the inverse of a many-to-one relation.
// With a single FK from the source table the pluralized table name is used,
// otherwise it is prefixed with the FK name.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "posts" -> "authorPosts"
func (n *Namer) OneToManyName(sourceTable, fkColumn string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(n.PropertyName(sourceTable))
	if isOnlyFK {
		return tablePlural
	}

	prefix := n.ManyToOneName(fkColumn)
	if len(tablePlural) > 0 {
		return prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:]
	}
	return prefix
}

// OneToOneInverseName names the non-owning side of a one-to-one relation.
// Example: "user_profiles" -> "userProfile"
func (n *Namer) OneToOneInverseName(sourceTable string) string {
	return n.Singularize(n.PropertyName(sourceTable))
}

// ManyToManyName names a relation through a pure junction after its target.
// Example: "tag" -> "tags"
func (n *Namer) ManyToManyName(targetTable string) string {
	return n.Pluralize(n.PropertyName(targetTable))
}

// RegisterColumn registers a column property and returns the resolved name.
// Columns are registered first and win collisions.
func (n *Namer) RegisterColumn(table, columnName string) string {
	name := n.validateAndSuffix(n.PropertyName(columnName))
	return n.resolver.Register(table, name, "column:"+columnName)
}

// RegisterRelation registers a relation property and returns the resolved name.
// A collision with an existing property applies a Ref (to-one) or Rel (to-many) suffix.
func (n *Namer) RegisterRelation(table, name, source string, toOne bool) string {
	name = n.validateAndSuffix(name)
	if n.resolver.Exists(table, name) {
		if toOne {
			name += "Ref"
		} else {
			name += "Rel"
		}
	}
	return n.resolver.Register(table, name, "relation:"+source)
}

// RegisterManyToMany registers a many-to-many relation, falling back to a
// Via{Junction} suffix when the plain name is taken.
func (n *Namer) RegisterManyToMany(table, targetTable, junctionTable string) string {
	name := n.validateAndSuffix(n.ManyToManyName(targetTable))
	if n.resolver.Exists(table, name) {
		name += "Via" + toPascalCase(junctionTable)
	}
	return n.resolver.Register(table, name, "m2m:"+junctionTable+"->"+targetTable)
}

func (n *Namer) validateAndSuffix(name string) string {
	if isReservedPropertyName(name) {
		safeName := name + "_"
		n.logger.Warn("property name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
