package database

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	audio_url VARCHAR(1024) NOT NULL,
	send_start_time DATETIME NULL,
	send_end_time DATETIME NULL
);
CREATE TABLE IF NOT EXISTS calls (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	campaign_id BIGINT NOT NULL,
	number VARCHAR(64) NOT NULL,
	status TINYINT NOT NULL DEFAULT 0,
	call_id VARCHAR(64) NOT NULL UNIQUE,
	uniqueid VARCHAR(128) NULL,
	start_time DATETIME NULL,
	end_time DATETIME NULL,
	INDEX idx_calls_campaign (campaign_id)
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	audio_url TEXT NOT NULL,
	send_start_time DATETIME NULL,
	send_end_time DATETIME NULL
);
CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL,
	number TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	call_id TEXT NOT NULL UNIQUE,
	uniqueid TEXT NULL,
	start_time DATETIME NULL,
	end_time DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_campaign ON calls (campaign_id)`

// Migrate crea las tablas de campañas y llamadas si no existen
func Migrate(ctx context.Context, conn *Connection) error {
	schema := mysqlSchema
	if conn.Driver == "sqlite" {
		schema = sqliteSchema
	}

	for _, q := range strings.Split(schema, ";") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, err := conn.DB.ExecContext(ctx, q); err != nil {
			// MySQL no soporta IF NOT EXISTS en índices inline repetidos
			if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("error ejecutando migración: %w", err)
		}
	}
	log.Printf("[Database] Esquema verificado (%s)", conn.Driver)
	return nil
}
