package sqlite

import "github.com/mohtion/mohtion/internal/storage/migrations"

// schema is the ordered list of bounty-store migrations
var schema = []migrations.Migration{
	{
		Version:     1,
		Description: "create bounties table",
		Up: `
			CREATE TABLE IF NOT EXISTS bounties (
				id             TEXT PRIMARY KEY,
				owner          TEXT NOT NULL,
				repo           TEXT NOT NULL,
				status         TEXT NOT NULL,
				branch_name    TEXT NOT NULL,
				file_path      TEXT NOT NULL,
				kind           TEXT NOT NULL,
				severity       REAL NOT NULL,
				target_json    TEXT NOT NULL,
				started_at     TEXT NOT NULL,
				completed_at   TEXT,
				pr_url         TEXT NOT NULL DEFAULT '',
				pr_number      INTEGER NOT NULL DEFAULT 0,
				original_code  TEXT NOT NULL DEFAULT '',
				candidate_code TEXT NOT NULL DEFAULT '',
				summary        TEXT NOT NULL DEFAULT '',
				test_passed    INTEGER NOT NULL DEFAULT 0,
				test_output    TEXT NOT NULL DEFAULT '',
				retry_count    INTEGER NOT NULL DEFAULT 0,
				error_message  TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_bounties_repo_started ON bounties(owner, repo, started_at);
			CREATE INDEX IF NOT EXISTS idx_bounties_status ON bounties(status);
		`,
		Down: `DROP TABLE IF EXISTS bounties;`,
	},
}
