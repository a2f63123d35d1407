package artifacts

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS artifacts (
			run_id       TEXT NOT NULL,
			stage        TEXT NOT NULL,
			created_at   DATETIME NOT NULL,
			content_type TEXT NOT NULL,
			payload      BLOB NOT NULL,
			PRIMARY KEY (run_id, stage)
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);

		INSERT INTO schema_version (version) VALUES (1);
		`,
	},
}
