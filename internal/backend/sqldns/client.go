package sqldns

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/discourse/ddns-sd/internal/backend"
)

// Open opens a *sql.DB against a PostgreSQL-shaped domains/records store
// using lib/pq, grounded on provider/pdns.go's connection setup but
// swapping the pgo HTTP client for a direct database connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sql-dns connection: %v", backend.ErrFatal, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging sql-dns connection: %v", backend.ErrFatal, err)
	}
	return db, nil
}

func init() {
	backend.Register("sql-dns", func(cfg map[string]string) (backend.Backend, error) {
		dsn, ok := cfg["dsn"]
		if !ok || dsn == "" {
			return nil, fmt.Errorf("%w: sql-dns backend requires dsn", backend.ErrFatal)
		}
		baseDomain, ok := cfg["base_domain"]
		if !ok || baseDomain == "" {
			return nil, fmt.Errorf("%w: sql-dns backend requires base_domain", backend.ErrFatal)
		}
		db, err := Open(dsn)
		if err != nil {
			return nil, err
		}
		return New(db, baseDomain), nil
	})
}
