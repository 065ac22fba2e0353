package database

import (
	"database/sql"
	"fmt"
	"time"

	"autodialer/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Connection maneja el pool de conexiones a la base de datos
type Connection struct {
	DB     *sql.DB
	Driver string
}

// NewConnection crea una nueva conexión a la base de datos
func NewConnection(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error abriendo conexión: %w", err)
	}

	// Configurar pool de conexiones
	if cfg.Driver == "sqlite" {
		// SQLite serializa escrituras; una sola conexión evita SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	// Verificar conectividad
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error conectando a la base de datos: %w", err)
	}

	if cfg.Driver == "sqlite" {
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error configurando sqlite: %w", err)
		}
	}

	return &Connection{DB: db, Driver: cfg.Driver}, nil
}

// Close cierra la conexión a la base de datos
func (c *Connection) Close() error {
	return c.DB.Close()
}
