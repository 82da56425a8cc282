// ABOUTME: SQLite database schema for MindAid storage
// ABOUTME: Creates all tables and indexes for users, sessions, memory, and the embedding cache
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Registered users with their latest diagnosis
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    disorder TEXT,
    severity TEXT,
    last_counseled_at DATETIME,
    archived INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Completed assessments, append-only, ordered by seq per user
CREATE TABLE IF NOT EXISTS diagnosis_history (
    user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    session_id TEXT NOT NULL,
    disorder TEXT NOT NULL,
    confidence REAL NOT NULL,
    answers TEXT NOT NULL,
    severity_score REAL NOT NULL,
    severity_band TEXT NOT NULL,
    started_at DATETIME,
    completed_at DATETIME,
    PRIMARY KEY (user_id, seq)
);

-- At most one in-flight assessment per user
CREATE TABLE IF NOT EXISTS diagnosis_sessions (
    user_id TEXT PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
    session_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    narrative_text TEXT,
    predicted_disorder TEXT,
    confidence REAL DEFAULT 0,
    input_truncated INTEGER DEFAULT 0,
    question_index INTEGER DEFAULT 0,
    answers TEXT,
    severity_score REAL,
    severity_band TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Counseling history and idempotency receipts per user
CREATE TABLE IF NOT EXISTS conversation_memory (
    user_id TEXT PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
    turns TEXT NOT NULL,
    receipts TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Corpus embedding cache keyed by model and content hash
CREATE TABLE IF NOT EXISTS corpus_embeddings (
    model TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (model, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_users_archived ON users(archived);
CREATE INDEX IF NOT EXISTS idx_sessions_stage ON diagnosis_sessions(stage);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1
