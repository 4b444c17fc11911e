package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kamusis/gemhub/internal/lockfile"
)

const schema = `
CREATE TABLE IF NOT EXISTS packages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id    INTEGER NOT NULL,
	number        TEXT NOT NULL,
	platform      TEXT NOT NULL,
	original_name TEXT NOT NULL UNIQUE,
	authors       TEXT NOT NULL,
	description   TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	digest        TEXT NOT NULL,
	size          INTEGER NOT NULL,
	UNIQUE (package_id, number)
);

CREATE TABLE IF NOT EXISTS dependencies (
	version_id   INTEGER NOT NULL,
	position     INTEGER NOT NULL,
	rubygem_name TEXT NOT NULL,
	requirements TEXT NOT NULL,
	type         TEXT NOT NULL,
	PRIMARY KEY (version_id, position)
);

CREATE TABLE IF NOT EXISTS linksets (
	package_id INTEGER PRIMARY KEY,
	home       TEXT NOT NULL
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the SQLite database file. Its directory must exist.
	Path string
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
	// LockTimeout bounds the wait for the database write lock when the
	// caller's context has no deadline. Zero means lockfile.DefaultTimeout.
	LockTimeout time.Duration
	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Store persists packages in SQLite. Safe for concurrent use.
type Store struct {
	pool        *sqlitex.Pool
	logger      *slog.Logger
	path        string
	lockTimeout time.Duration
}

// Open opens (creating if needed) the catalog database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("catalog: path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot open %s: %w", cfg.Path, err)
	}
	lockTimeout := cfg.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = lockfile.DefaultTimeout
	}
	s := &Store{pool: pool, logger: logger, path: cfg.Path, lockTimeout: lockTimeout}

	ctx, cancel := s.bounded(ctx)
	defer cancel()
	conn, err := pool.Take(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("catalog: cannot create schema: %w", err)
	}

	logger.Debug("catalog opened", "path", cfg.Path, "pool_size", size)
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA temp_store=MEMORY",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	// Lock waits end when the connection is interrupted, which the pool ties
	// to the context passed to Take.
	conn.SetBlockOnBusy()
	return nil
}

// bounded applies the store's lock timeout when ctx has no deadline.
func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.lockTimeout)
}

// Close waits for borrowed connections and closes the pool.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("catalog: cannot close %s: %w", s.path, err)
	}
	return nil
}

// Insert records v (already appended to pkg by Normalize) in one IMMEDIATE
// transaction: the package row on first use, the version, its dependencies in
// source order and the package's linkset. inTx runs inside the transaction
// after the rows are written; if it fails nothing is committed. On success
// v.Position and pkg.ID are set. A write-lock wait that outlasts ctx (or the
// store lock timeout) fails with lockfile.ErrBusy.
func (s *Store) Insert(ctx context.Context, pkg *Package, v *Version, inTx func() error) (err error) {
	lockCtx, cancel := s.bounded(ctx)
	defer cancel()
	conn, err := s.pool.Take(lockCtx)
	if err != nil {
		if lockCtx.Err() != nil {
			return fmt.Errorf("%w: catalog %s: %v", lockfile.ErrBusy, s.path, err)
		}
		return fmt.Errorf("catalog: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		switch sqlite.ErrCode(err).ToPrimary() {
		case sqlite.ResultBusy, sqlite.ResultInterrupt:
			return fmt.Errorf("%w: catalog %s: %v", lockfile.ErrBusy, s.path, err)
		}
		if lockCtx.Err() != nil {
			return fmt.Errorf("%w: catalog %s: %v", lockfile.ErrBusy, s.path, err)
		}
		return fmt.Errorf("catalog: cannot begin transaction: %w", err)
	}
	// The write lock is held; the rest of the transaction must not be cut
	// short by the lock deadline.
	conn.SetInterrupt(nil)
	defer endTransaction(&err)

	now := time.Now().UTC()
	err = sqlitex.Execute(conn,
		`INSERT INTO packages (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{pkg.Name, formatTime(now)}})
	if err != nil {
		return fmt.Errorf("catalog: cannot insert package %s: %w", pkg.Name, err)
	}
	pkgID, err := s.packageID(conn, pkg.Name)
	if err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO versions
			(package_id, number, platform, original_name, authors, description, created_at, digest, size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			pkgID, v.Number, v.Platform, v.OriginalName, v.Authors, v.Description,
			formatTime(v.CreatedAt), v.Digest, v.Size,
		}})
	if err != nil {
		if isUniqueViolation(err) {
			return &ValidationError{Package: pkg.Name, Version: v.Number, Err: ErrDuplicateVersion}
		}
		return fmt.Errorf("catalog: cannot insert version %s: %w", v.OriginalName, err)
	}
	position := conn.LastInsertRowID()

	for i, d := range v.Dependencies {
		err = sqlitex.Execute(conn,
			`INSERT INTO dependencies (version_id, position, rubygem_name, requirements, type)
				VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{position, i, d.Name, d.Requirements, d.Type}})
		if err != nil {
			return fmt.Errorf("catalog: cannot insert dependency %s of %s: %w", d.Name, v.OriginalName, err)
		}
	}

	home := ""
	if pkg.Linkset != nil {
		home = pkg.Linkset.Home
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO linksets (package_id, home) VALUES (?, ?)
			ON CONFLICT(package_id) DO UPDATE SET home = excluded.home`,
		&sqlitex.ExecOptions{Args: []any{pkgID, home}})
	if err != nil {
		return fmt.Errorf("catalog: cannot write linkset for %s: %w", pkg.Name, err)
	}

	if inTx != nil {
		if err = inTx(); err != nil {
			return err
		}
	}

	pkg.ID = pkgID
	v.Position = position
	return nil
}

func (s *Store) packageID(conn *sqlite.Conn, name string) (int64, error) {
	var (
		id    int64
		found bool
	)
	err := sqlitex.Execute(conn, `SELECT id FROM packages WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: cannot look up package %s: %w", name, err)
	}
	if !found {
		return 0, fmt.Errorf("catalog: package %s: %w", name, ErrNotFound)
	}
	return id, nil
}

// HasVersion reports whether (name, number) is already recorded.
func (s *Store) HasVersion(ctx context.Context, name, number string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("catalog: %w", err)
	}
	defer s.pool.Put(conn)

	var found bool
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM versions v JOIN packages p ON p.id = v.package_id
			WHERE p.name = ? AND v.number = ?`,
		&sqlitex.ExecOptions{
			Args: []any{name, number},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("catalog: cannot check %s %s: %w", name, number, err)
	}
	return found, nil
}

// FindPackage loads a package with its versions (insertion order), their
// dependencies (source order) and its linkset. Returns an error wrapping
// ErrNotFound when name is unknown.
func (s *Store) FindPackage(ctx context.Context, name string) (*Package, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer s.pool.Put(conn)

	var pkg *Package
	err = sqlitex.Execute(conn, `SELECT id, name, created_at FROM packages WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pkg = &Package{
				ID:        stmt.ColumnInt64(0),
				Name:      stmt.ColumnText(1),
				CreatedAt: parseTime(stmt.ColumnText(2)),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot load package %s: %w", name, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("catalog: package %s: %w", name, ErrNotFound)
	}

	byID := map[int64]*Version{}
	err = sqlitex.Execute(conn,
		`SELECT id, number, platform, original_name, authors, description, created_at, digest, size
			FROM versions WHERE package_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{pkg.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				v := &Version{
					Position:     stmt.ColumnInt64(0),
					Number:       stmt.ColumnText(1),
					Platform:     stmt.ColumnText(2),
					OriginalName: stmt.ColumnText(3),
					Authors:      stmt.ColumnText(4),
					Description:  stmt.ColumnText(5),
					CreatedAt:    parseTime(stmt.ColumnText(6)),
					Digest:       stmt.ColumnText(7),
					Size:         stmt.ColumnInt64(8),
				}
				pkg.Versions = append(pkg.Versions, v)
				byID[v.Position] = v
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot load versions of %s: %w", name, err)
	}

	err = sqlitex.Execute(conn,
		`SELECT d.version_id, d.rubygem_name, d.requirements, d.type
			FROM dependencies d JOIN versions v ON v.id = d.version_id
			WHERE v.package_id = ? ORDER BY d.version_id, d.position`,
		&sqlitex.ExecOptions{
			Args: []any{pkg.ID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if v := byID[stmt.ColumnInt64(0)]; v != nil {
					v.Dependencies = append(v.Dependencies, &Dependency{
						Name:         stmt.ColumnText(1),
						Requirements: stmt.ColumnText(2),
						Type:         stmt.ColumnText(3),
					})
				}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot load dependencies of %s: %w", name, err)
	}

	err = sqlitex.Execute(conn, `SELECT home FROM linksets WHERE package_id = ?`, &sqlitex.ExecOptions{
		Args: []any{pkg.ID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			pkg.Linkset = &Linkset{Home: stmt.ColumnText(0)}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot load linkset of %s: %w", name, err)
	}
	return pkg, nil
}

// ListPackages returns every package ordered by name.
func (s *Store) ListPackages(ctx context.Context) ([]Summary, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer s.pool.Put(conn)

	var out []Summary
	err = sqlitex.Execute(conn,
		`SELECT p.name,
			(SELECT number FROM versions WHERE package_id = p.id ORDER BY id DESC LIMIT 1),
			(SELECT COUNT(*) FROM versions WHERE package_id = p.id)
			FROM packages p ORDER BY p.name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, Summary{
					Name:           stmt.ColumnText(0),
					CurrentVersion: stmt.ColumnText(1),
					Versions:       stmt.ColumnInt(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: cannot list packages: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	code := sqlite.ErrCode(err)
	return code == sqlite.ResultConstraintUnique || code == sqlite.ResultConstraintPrimaryKey
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
