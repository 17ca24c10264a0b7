package database

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trezcool/darasa/core"
	appfs "github.com/trezcool/darasa/fs"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"
)

var (
	// goose keeps its FS and dialect globally
	gooseMu sync.Mutex

	pingMaxAttempts = 30
)

// DB is the persistence gateway: one connection pool shared by gorm (writes, lookups)
// and sqlx (reporting queries). Close it when the process stops.
type DB struct {
	Gorm   *gorm.DB
	Sqlx   *sqlx.DB
	SQL    *sql.DB
	Engine string
}

func dsn(dbName string, admin bool, conf *core.Config) string {
	if conf.Database.Engine == EngineSQLite {
		return dbName
	}

	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres, EngineSQLite:
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
	return sql.Open(conf.Database.Engine, dsn(dbName, admin, conf))
}

// Open connects to the configured database and checks it is reachable.
func Open(conf *core.Config) (*DB, error) {
	sqlDB, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if conf.Database.Engine == EngineSQLite {
		// one connection: in-memory databases live and die with it
		sqlDB.SetMaxOpenConns(1)
	} else {
		if conf.Database.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(conf.Database.MaxOpenConns)
		}
		if conf.Database.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(conf.Database.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err = ping(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var dialector gorm.Dialector
	if conf.Database.Engine == EngineSQLite {
		dialector = &sqlite.Dialector{DriverName: EngineSQLite, DSN: conf.Database.Name, Conn: sqlDB}
	} else {
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	}

	logLevel := gormlogger.Warn
	if conf.TestMode {
		logLevel = gormlogger.Silent
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(logLevel),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "opening gorm")
	}

	return &DB{
		Gorm:   gormDB,
		Sqlx:   sqlx.NewDb(sqlDB, conf.Database.Engine),
		SQL:    sqlDB,
		Engine: conf.Database.Engine,
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.SQL.Close()
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	for attempts := 1; attempts <= pingMaxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sql.DB, query string, args ...interface{}) (bool, error) {
	var found bool
	err := db.QueryRow(query, args...).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) +
			" CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app role and database on a Postgres server.
// SQLite databases are created on open, so there is nothing to do for them.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine == EngineSQLite {
		return nil
	}

	// connect as admin
	adminDB, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = adminDB.Close() }()

	if err = ping(adminDB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(adminDB, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// RunMigrations runs a goose command ("up", "down", "status", ...) over the embedded migrations.
func RunMigrations(ctx context.Context, db *DB, command string, args ...string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(db.Engine); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.RunContext(ctx, command, db.SQL, "migrations", args...); err != nil {
		return errors.Wrapf(err, "migrating database (%s)", command)
	}
	return nil
}

func Migrate(db *DB) error {
	return RunMigrations(context.Background(), db, "up")
}

// IsUniqueViolation reports whether err comes from a unique or primary key constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// sqlite3: "UNIQUE constraint failed: users.email"
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
