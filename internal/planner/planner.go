// Package planner lowers filter and selection trees into parameterized SQL.
// It compiles WHERE fragments, builds projections that carry relation join
// keys, and plans the primary and batched follow-up statements. Every literal
// reaches SQL through a Binder placeholder.
package planner
