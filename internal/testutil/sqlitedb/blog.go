package sqlitedb

// BlogDDL creates the tables described by fixture.BlogYAML.
const BlogDDL = `
CREATE TABLE "user" (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  display_name TEXT
);
CREATE TABLE post (
  id INTEGER PRIMARY KEY,
  title TEXT NOT NULL,
  content TEXT,
  published INTEGER NOT NULL,
  user_id INTEGER REFERENCES "user"(id)
);
CREATE TABLE tag (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE post_tags (
  post_id INTEGER NOT NULL REFERENCES post(id),
  tag_id INTEGER NOT NULL REFERENCES tag(id),
  PRIMARY KEY (post_id, tag_id)
);
CREATE TABLE profile (
  id TEXT PRIMARY KEY,
  bio TEXT,
  settings TEXT,
  user_id INTEGER NOT NULL REFERENCES "user"(id)
);
CREATE TABLE order_line (
  order_id INTEGER NOT NULL,
  line_no INTEGER NOT NULL,
  sku TEXT NOT NULL,
  PRIMARY KEY (order_id, line_no)
);
CREATE TABLE shipment (
  id INTEGER PRIMARY KEY,
  order_id INTEGER NOT NULL,
  line_no INTEGER NOT NULL,
  carrier TEXT NOT NULL
)
`

// BlogData seeds BlogDDL. Post 4 has no author, bob has no posts with tags,
// and cy has nothing at all.
const BlogData = `
INSERT INTO "user" (id, name, display_name) VALUES (1, 'ann', 'Ann'), (2, 'bob', NULL), (3, 'cy', NULL);
INSERT INTO post (id, title, content, published, user_id) VALUES
  (1, 'hello world', NULL, 1, 1),
  (2, 'go tips', 'use gofmt', 1, 1),
  (3, 'draft', NULL, 0, 2),
  (4, 'orphan', NULL, 1, NULL);
INSERT INTO tag (id, name) VALUES (1, 'go'), (2, 'sql'), (3, 'unused');
INSERT INTO post_tags (post_id, tag_id) VALUES (1, 1), (2, 1), (2, 2);
INSERT INTO profile (id, bio, settings, user_id) VALUES ('7b6f0c8e-3d4f-4f0a-9c55-1f2e3d4c5b6a', 'gopher', '{"theme":"dark"}', 1);
INSERT INTO order_line (order_id, line_no, sku) VALUES (10, 1, 'A-1'), (10, 2, 'B-2');
INSERT INTO shipment (id, order_id, line_no, carrier) VALUES (100, 10, 2, 'ups')
`
