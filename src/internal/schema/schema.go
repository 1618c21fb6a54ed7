// Package schema declares the tables the job and dataset stores operate on, as a chain of
// migrations.
package schema

import (
	"context"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/migrations"
)

// DesiredState is the newest schema.  Apply it with migrations.ApplyMigrations.
var DesiredState = state_1_1

var state_1_0 = migrations.InitialState().
	Apply("create users and maps", execAll(
		`CREATE TABLE users (
			id BIGSERIAL PRIMARY KEY,
			display_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			privileges JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE UNIQUE INDEX users_display_name ON users (display_name)`,
		`CREATE TABLE maps (
			id BIGSERIAL PRIMARY KEY,
			display_name TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			tags JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX maps_display_name ON maps (display_name)`,
	)).
	Apply("create folders", execAll(
		`CREATE SEQUENCE folders_id_seq MINVALUE 0 START WITH 1`,
		`CREATE TABLE folders (
			id BIGINT PRIMARY KEY DEFAULT nextval('folders_id_seq'),
			display_name TEXT NOT NULL,
			parent_id BIGINT NOT NULL DEFAULT 0,
			user_id BIGINT NOT NULL,
			public BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (display_name, parent_id, user_id)
		)`,
		// The root folder; every top-level folder names it as parent.
		`INSERT INTO folders (id, display_name, parent_id, user_id, public) VALUES (0, 'root', 0, -1, TRUE)`,
		`CREATE TABLE folder_map_mappings (
			id BIGSERIAL PRIMARY KEY,
			map_id BIGINT NOT NULL UNIQUE,
			folder_id BIGINT NOT NULL
		)`,
		`CREATE INDEX folder_map_mappings_folder_id ON folder_map_mappings (folder_id)`,
	)).
	Apply("create job and command status", execAll(
		`CREATE TABLE job_status (
			job_id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'running',
			status_detail TEXT,
			percent_complete INT NOT NULL DEFAULT 0,
			trackable_command_count INT NOT NULL DEFAULT 0,
			start TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			tags JSONB NOT NULL DEFAULT '{}'::jsonb,
			resource_id BIGINT
		)`,
		`CREATE INDEX job_status_resource_id ON job_status (resource_id)`,
		`CREATE TABLE command_status (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			command TEXT NOT NULL DEFAULT '',
			stdout TEXT NOT NULL DEFAULT '',
			stderr TEXT NOT NULL DEFAULT '',
			percent_complete INT NOT NULL DEFAULT 0,
			exit_code INT,
			start TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finish TIMESTAMPTZ
		)`,
		`CREATE INDEX command_status_job_id ON command_status (job_id)`,
	))

var state_1_1 = state_1_0.
	Apply("create job parents", execAll(
		`CREATE TABLE job_parents (
			job_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			PRIMARY KEY (job_id, parent_id)
		)`,
		`CREATE INDEX job_parents_parent_id ON job_parents (parent_id)`,
		// Jobs written before the relation existed carry their parents in the parentId tag.
		`INSERT INTO job_parents (job_id, parent_id)
			SELECT job_id, trim(p)
			FROM job_status, unnest(string_to_array(tags->>'parentId', ',')) AS p
			WHERE trim(p) <> ''
			ON CONFLICT DO NOTHING`,
	))

func execAll(stmts ...string) migrations.Func {
	return func(ctx context.Context, env migrations.Env) error {
		for i, stmt := range stmts {
			if _, err := env.Tx.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "statement %d", i)
			}
		}
		return nil
	}
}
