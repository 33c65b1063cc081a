package db

import (
	"database/sql"
	"fmt"
	"log"

	"WaveFM/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// CloseDB closes the database connection.
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createStationsTable(); err != nil {
		return err
	}
	if err := createQueueEntriesTable(); err != nil {
		return err
	}
	if err := createPlayHistoryTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(512) NOT NULL,
		artist VARCHAR(255),
		album VARCHAR(255),
		duration DOUBLE NOT NULL DEFAULT 0,
		image_url VARCHAR(1024),
		source_type VARCHAR(32) NOT NULL,
		source_id VARCHAR(64) NOT NULL,
		source_url VARCHAR(1024) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_source UNIQUE (source_type, source_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createStationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS stations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		image_url VARCHAR(1024),
		is_public BOOLEAN NOT NULL DEFAULT TRUE,
		is_live BOOLEAN NOT NULL DEFAULT FALSE,
		live_started_at TIMESTAMP NULL DEFAULT NULL,
		current_position INT NOT NULL DEFAULT 0,
		listen_key CHAR(36) NOT NULL,
		play_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CONSTRAINT uq_listen_key UNIQUE (listen_key),
		INDEX idx_owner (owner_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create stations table: %w", err)
	}
	return nil
}

func createQueueEntriesTable() error {
	// No UNIQUE constraint on (station_id, position): position re-packs
	// update rows one by one and would transiently collide. Contiguity is
	// enforced by the queue repository inside its transaction.
	query := `
	CREATE TABLE IF NOT EXISTS queue_entries (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		station_id BIGINT NOT NULL,
		track_id BIGINT NOT NULL,
		position INT NOT NULL,
		status ENUM('pending','playing','played','skipped') NOT NULL DEFAULT 'pending',
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_queue_station FOREIGN KEY (station_id) REFERENCES stations(id) ON DELETE CASCADE,
		CONSTRAINT fk_queue_track FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE RESTRICT,
		INDEX idx_station_status (station_id, status),
		INDEX idx_station_position (station_id, position)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create queue_entries table: %w", err)
	}
	return nil
}

func createPlayHistoryTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS play_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		station_id BIGINT NOT NULL,
		track_id BIGINT NOT NULL,
		played_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_history_station FOREIGN KEY (station_id) REFERENCES stations(id) ON DELETE CASCADE,
		INDEX idx_history_station (station_id, played_at)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create play_history table: %w", err)
	}
	return nil
}
