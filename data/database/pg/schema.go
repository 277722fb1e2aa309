package pg

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS conversation (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users_to_conversation (
	member_id       TEXT NOT NULL,
	conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
	joined_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (member_id, conversation_id)
);

CREATE TABLE IF NOT EXISTS file (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	size BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS message (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	attachment      TEXT REFERENCES file(id),
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS message_conversation_created ON message (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS member_conversation ON users_to_conversation (conversation_id);
`
