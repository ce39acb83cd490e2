package store

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the few places where SQLite and Postgres disagree.
type dialect struct {
	name       string
	floatType  string
	bigintType string
	greatest   string
	lockClause string
	numbered   bool
}

var (
	sqliteDialect = dialect{
		name:       "sqlite",
		floatType:  "REAL",
		bigintType: "INTEGER",
		greatest:   "MAX",
		lockClause: "",
		numbered:   false,
	}
	postgresDialect = dialect{
		name:       "postgres",
		floatType:  "DOUBLE PRECISION",
		bigintType: "BIGINT",
		greatest:   "GREATEST",
		lockClause: " FOR UPDATE",
		numbered:   true,
	}
)

// rebind rewrites ? placeholders into $n for drivers that need numbered parameters.
// Queries in this package never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) schema() []string {
	ddl := fmt.Sprintf(schemaTemplate, d.floatType, d.bigintType)
	var stmts []string
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// %[1]s is the floating point column type, %[2]s the 64-bit integer type.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	last_seen_at %[2]s NOT NULL,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id TEXT,
	status TEXT NOT NULL,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

CREATE TABLE IF NOT EXISTS session_quiz (
	session_id TEXT PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
	occasion TEXT NOT NULL,
	style TEXT NOT NULL,
	drink_type TEXT NOT NULL,
	people_count INTEGER NOT NULL,
	budget TEXT NOT NULL,
	updated_at %[2]s NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
	sku TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price %[1]s,
	abv %[1]s,
	category_path TEXT NOT NULL DEFAULT '',
	category_norm TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	producer TEXT NOT NULL DEFAULT '',
	rating_value %[1]s,
	rating_count INTEGER NOT NULL DEFAULT 0,
	availability TEXT NOT NULL,
	volume_l %[1]s,
	image_url TEXT NOT NULL DEFAULT '',
	product_url TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	color_norm TEXT NOT NULL DEFAULT '',
	grape TEXT NOT NULL DEFAULT '',
	sugar TEXT NOT NULL DEFAULT '',
	updated_at %[2]s NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_price ON products(price) WHERE availability = 'in_stock';
CREATE INDEX IF NOT EXISTS idx_products_rating ON products(rating_value, rating_count) WHERE availability = 'in_stock';
CREATE INDEX IF NOT EXISTS idx_products_color ON products(color_norm) WHERE availability = 'in_stock';
CREATE INDEX IF NOT EXISTS idx_products_country_producer ON products(country, producer) WHERE availability = 'in_stock';

CREATE TABLE IF NOT EXISTS session_impressions (
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	sku TEXT NOT NULL,
	action TEXT,
	created_at %[2]s NOT NULL,
	reacted_at %[2]s,
	PRIMARY KEY (session_id, sku)
);
CREATE INDEX IF NOT EXISTS idx_impressions_action ON session_impressions(session_id, action);

CREATE TABLE IF NOT EXISTS session_cart (
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	sku TEXT NOT NULL,
	qty INTEGER NOT NULL CHECK (qty >= 1),
	price_at_add %[1]s NOT NULL,
	added_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL,
	PRIMARY KEY (session_id, sku)
)
`
