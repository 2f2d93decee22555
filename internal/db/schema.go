package db

// Schema creates the tables bill_agent reads and writes. The CLI never applies it;
// provision the database with it (psql -f, or a migration tool) before the first run.
// Without bill_runs every ledger write fails and is logged as a warning.
const Schema = `
CREATE TABLE IF NOT EXISTS mh_website_credentials (
	id BIGSERIAL PRIMARY KEY,
	login_name TEXT,
	password TEXT
);
CREATE TABLE IF NOT EXISTS mp_website_credentials (
	id BIGSERIAL PRIMARY KEY,
	ivrs_no TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS bill_runs (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL,
	site TEXT NOT NULL,
	record_key TEXT NOT NULL,
	outcome TEXT NOT NULL,
	artifact TEXT,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
