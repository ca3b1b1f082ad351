// Package fixture provides the shared blog schema used across package tests.
package fixture

import (
	"testing"

	"relquery/internal/schema"
)

// BlogYAML declares users, posts, tags, profiles and a composite-key
// order_line/shipment pair.
const BlogYAML = `
tables:
  - name: user
    columns:
      - {name: id, type: number, primary_key: true}
      - {name: name}
      - {name: displayName, stored_name: display_name, nullable: true}
    relations:
      - {name: posts, kind: one_to_many, target: post, inverse: user}
      - {name: profile, kind: one_to_one_non_owner, target: profile, inverse: user}

  - name: post
    columns:
      - {name: id, type: number, primary_key: true}
      - {name: title}
      - {name: content, nullable: true}
      - {name: published, type: boolean}
      - {name: userId, stored_name: user_id, type: number, nullable: true}
    relations:
      - name: user
        kind: many_to_one
        target: user
        inverse: posts
        join_columns:
          - {column: userId, referenced_column: id}
      - name: tags
        kind: many_to_many
        target: tag
        inverse: posts
        junction:
          name: post_tags
          owner_columns:
            - {column: post_id, referenced_column: id}
          inverse_columns:
            - {column: tag_id, referenced_column: id}

  - name: tag
    columns:
      - {name: id, type: number, primary_key: true}
      - {name: name}
    relations:
      - {name: posts, kind: many_to_many, target: post, inverse: tags}

  - name: profile
    columns:
      - {name: id, type: uuid, primary_key: true}
      - {name: bio, nullable: true}
      - {name: settings, embedded: true, nullable: true}
      - {name: userId, stored_name: user_id, type: number}
    relations:
      - name: user
        kind: one_to_one_owner
        target: user
        inverse: profile
        join_columns:
          - {column: userId, referenced_column: id}

  - name: order_line
    columns:
      - {name: orderId, stored_name: order_id, type: number, primary_key: true}
      - {name: lineNo, stored_name: line_no, type: number, primary_key: true}
      - {name: sku}
    relations:
      - {name: shipment, kind: one_to_one_non_owner, target: shipment, inverse: line}

  - name: shipment
    columns:
      - {name: id, type: number, primary_key: true}
      - {name: orderId, stored_name: order_id, type: number}
      - {name: lineNo, stored_name: line_no, type: number}
      - {name: carrier}
    relations:
      - name: line
        kind: one_to_one_owner
        target: order_line
        inverse: shipment
        join_columns:
          - {column: orderId, referenced_column: orderId}
          - {column: lineNo, referenced_column: lineNo}
`

// BlogSchema parses BlogYAML, failing the test on error.
func BlogSchema(t testing.TB) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(BlogYAML))
	if err != nil {
		t.Fatalf("parse blog schema: %v", err)
	}
	return s
}

// Table returns a table of the blog schema.
func Table(t testing.TB, s *schema.Schema, name string) *schema.Table {
	t.Helper()
	table, err := s.Table(name)
	if err != nil {
		t.Fatalf("lookup table %s: %v", name, err)
	}
	return table
}
