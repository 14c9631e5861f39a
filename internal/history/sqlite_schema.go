package history

// SQLite schema DDL. Users and queries are tables of their own so the
// relational layout mirrors the graph one: nodes plus two relationship tables.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
)`

const schemaQueries = `
CREATE TABLE IF NOT EXISTS queries (
    text TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
)`

// seq is a store-wide sequence bumped on every ask; it orders equal counts
// most-recent-first without depending on clock resolution.
const schemaAsks = `
CREATE TABLE IF NOT EXISTS asks (
    user_id TEXT NOT NULL REFERENCES users(id),
    query_text TEXT NOT NULL REFERENCES queries(text),
    ask_count INTEGER NOT NULL DEFAULT 1,
    first_asked INTEGER NOT NULL,
    last_asked INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    PRIMARY KEY (user_id, query_text)
)`

const schemaFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    user_id TEXT NOT NULL REFERENCES users(id),
    query_text TEXT NOT NULL REFERENCES queries(text),
    rating TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, query_text)
)`

const indexAsksRank = `
CREATE INDEX IF NOT EXISTS idx_asks_rank ON asks(user_id, ask_count DESC, seq DESC)`

func allSchemaStatements() []string {
	return []string{
		schemaUsers,
		schemaQueries,
		schemaAsks,
		schemaFeedback,
		indexAsksRank,
	}
}

func allPragmas() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
}
