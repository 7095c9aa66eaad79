package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"simple-chat/internal/config"
	"simple-chat/internal/logger"
	"simple-chat/internal/repository/db"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationsFS embed.FS

// Ensure Store implements db.Database interface
var _ db.Database = (*Store)(nil)

// Store implements db.Database on top of database/sql for SQLite and PostgreSQL
type Store struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured database and applies pending migrations
func Open(dbConfig config.DatabaseConfig) (*Store, error) {
	sqlDriver := "sqlite3"
	if dbConfig.Driver == config.DriverPostgres {
		sqlDriver = "postgres"
	}

	logger.Log.WithFields(logrus.Fields{
		"driver": dbConfig.Driver,
		"dsn":    dbConfig.RedactedDSN(),
	}).Info("Connecting to database")

	conn, err := sql.Open(sqlDriver, dbConfig.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	switch {
	case dbConfig.MaxOpenConns > 0:
		conn.SetMaxOpenConns(dbConfig.MaxOpenConns)
	case dbConfig.Driver != config.DriverPostgres:
		// SQLite serializes writers; one connection keeps them off SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	store := New(conn, dbConfig.Driver)

	if err = store.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Database ready")

	return store, nil
}

// New wraps an already opened connection. driver selects the SQL dialect.
func New(conn *sql.DB, driver string) *Store {
	if driver != config.DriverPostgres {
		driver = config.DriverSQLite
	}
	return &Store{
		conn:   conn,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RunMigrations applies the embedded migrations for the store's dialect
func (s *Store) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch s.driver {
	case config.DriverPostgres:
		driver, err = postgres.WithInstance(s.conn, &postgres.Config{})
	default:
		driver, err = sqlite3.WithInstance(s.conn, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("error loading migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.driver, driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.WithField("driver", s.driver).Info("Database migrations applied successfully")
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
