package store

import "strings"

const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT NOT NULL,
	error_message TEXT,
	job_metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	artifact_type TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	checksum TEXT NOT NULL,
	artifact_metadata TEXT NOT NULL DEFAULT '{}',
	parent_artifact_id TEXT REFERENCES artifacts(id) ON DELETE SET NULL,
	ordinal INTEGER NOT NULL DEFAULT 0,
	relabeled_from TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_job_type ON artifacts(job_id, artifact_type, created_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_parent ON artifacts(parent_artifact_id);

-- A stage output is produced once per input; a redelivered task finds the existing row
CREATE UNIQUE INDEX IF NOT EXISTS idx_artifacts_derived_once
ON artifacts(job_id, artifact_type, parent_artifact_id, ordinal)
WHERE parent_artifact_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS artifact_lineage (
	id TEXT PRIMARY KEY,
	source_artifact_id TEXT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	derived_artifact_id TEXT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	transformation_type TEXT NOT NULL,
	transformation_version TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (source_artifact_id, derived_artifact_id)
);

CREATE INDEX IF NOT EXISTS idx_lineage_derived ON artifact_lineage(derived_artifact_id);

CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	data BLOB,
	expires_at TIMESTAMP
);
`

// SchemaFor adapts Schema to the column types of driver.
func SchemaFor(driver string) string {
	if driver == "postgres" {
		return strings.ReplaceAll(Schema, "BLOB", "BYTEA")
	}
	return Schema
}
