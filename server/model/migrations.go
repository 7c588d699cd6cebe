package model

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE staff(
			id INTEGER PRIMARY KEY,
			file_id TEXT NOT NULL,
			name TEXT NOT NULL,
			password TEXT,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_staff_file_id ON staff (file_id);

		CREATE TABLE project(
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			created_at INT NOT NULL
		);
		CREATE UNIQUE INDEX idx_project_name ON project (name);

		CREATE TABLE project_assignment(
			staff_id INTEGER PRIMARY KEY,
			project_name TEXT NOT NULL,
			assigned_at INT NOT NULL
		);

		CREATE TABLE auth_session(
			key TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			staff_id INT,
			created_at INT NOT NULL,
			expires_at INT NOT NULL
		);
		CREATE INDEX idx_auth_session_expires_at ON auth_session (expires_at);

		CREATE TABLE login_attempt(
			identity TEXT PRIMARY KEY,
			attempt_count INT NOT NULL,
			last_attempt_at INT NOT NULL,
			locked_until INT
		);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE entry_record(
			id INTEGER PRIMARY KEY,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			company TEXT,
			contact_number TEXT NOT NULL,
			email TEXT,
			vehicle_number TEXT,
			number_of_persons INT,
			purpose TEXT,
			host TEXT,
			photo TEXT,
			entry_time INT NOT NULL,
			exit_time INT,
			duration_text TEXT,
			project_name TEXT,
			status TEXT NOT NULL,
			created_by TEXT
		);
		CREATE INDEX idx_entry_record_entry_time ON entry_record (entry_time);
		CREATE INDEX idx_entry_record_project_name ON entry_record (project_name);
		CREATE INDEX idx_entry_record_created_by ON entry_record (created_by);
	`))

	return migs
}
