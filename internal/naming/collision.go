package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered property names per table and resolves
// collisions by applying numeric suffixes.
type CollisionResolver struct {
	seen   map[string]map[string]string // table → property name → source
	logger *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seen:   make(map[string]map[string]string),
		logger: logger,
	}
}

// Register registers a property name within a table and returns the resolved name.
func (c *CollisionResolver) Register(table, name, source string) string {
	if c.seen[table] == nil {
		c.seen[table] = make(map[string]string)
	}
	return c.resolveCollision(name, c.seen[table], source)
}

// Exists checks if a property name is already taken on a table.
func (c *CollisionResolver) Exists(table, name string) bool {
	_, exists := c.seen[table][name]
	return exists
}

func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
