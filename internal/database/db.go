package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "compass.db")

	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_paid BOOLEAN DEFAULT FALSE,
			stripe_customer_id TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			function TEXT,
			done BOOLEAN DEFAULT FALSE,
			impact REAL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted_at DATETIME,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS outputs (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			target REAL DEFAULT 0,
			unit TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			target_value REAL DEFAULT 0,
			current_value REAL DEFAULT 0,
			beginning_value REAL DEFAULT 0,
			points REAL DEFAULT 0, -- share of the tenant's 100-point mission budget
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS job_output_mappings (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			output_id TEXT NOT NULL,
			impact_value REAL NOT NULL,
			target REAL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (job_id) REFERENCES jobs(id),
			FOREIGN KEY (output_id) REFERENCES outputs(id)
		)`,

		`CREATE TABLE IF NOT EXISTS output_outcome_mappings (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			output_id TEXT NOT NULL,
			outcome_id TEXT NOT NULL,
			impact REAL NOT NULL, -- percentage of the outcome's movement
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (output_id) REFERENCES outputs(id),
			FOREIGN KEY (outcome_id) REFERENCES outcomes(id)
		)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			stripe_payment_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id, deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_impact ON jobs(tenant_id, impact DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_tenant ON outputs(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_tenant ON outcomes(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_output_tenant ON job_output_mappings(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_output_job ON job_output_mappings(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_output_outcome_tenant ON output_outcome_mappings(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_output_outcome_output ON output_outcome_mappings(output_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_tenant ON payments(tenant_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"get_job": `SELECT id, tenant_id, name, function, done, impact, created_at, updated_at
			FROM jobs WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,

		"list_jobs": `SELECT id, tenant_id, name, function, done, impact, created_at, updated_at
			FROM jobs WHERE tenant_id = ? AND deleted_at IS NULL ORDER BY impact DESC, created_at ASC`,

		"update_job_impact": `UPDATE jobs SET impact = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL`,

		"list_job_output_mappings": `SELECT id, tenant_id, job_id, output_id, impact_value, target, created_at
			FROM job_output_mappings WHERE tenant_id = ? ORDER BY created_at ASC`,

		"list_output_outcome_mappings": `SELECT id, tenant_id, output_id, outcome_id, impact, created_at
			FROM output_outcome_mappings WHERE tenant_id = ? ORDER BY created_at ASC`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
