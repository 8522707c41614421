package database

import "database/sql"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL DEFAULT 'citizen',
		organization VARCHAR(255) NOT NULL DEFAULT '',
		points INT NOT NULL DEFAULT 0,
		badges JSON,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_users_points (points)
	)`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id VARCHAR(64) PRIMARY KEY,
		reporter_id VARCHAR(64) NOT NULL,
		type VARCHAR(32) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		title VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		location_source VARCHAR(32) NOT NULL DEFAULT 'real',
		images JSON,
		prediction JSON,
		verification JSON,
		points_awarded INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_incidents_status (status),
		INDEX idx_incidents_reporter (reporter_id),
		INDEX idx_incidents_location (latitude, longitude),
		INDEX idx_incidents_created (created_at)
	)`,
}

// initializeSchema creates any missing tables.
func initializeSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
