/*
Copyright 2018 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sqldns implements the backend.Backend contract over a relational
// store shaped like PowerDNS's native SQL schema (domains/records tables),
// grounded on provider/pdns.go's domain/changetype/retry-limit model but
// translated from pgo's HTTP calls to database/sql statements, per spec.md
// §4.1.2 and §6.
package sqldns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/discourse/ddns-sd/internal/backend"
	"github.com/discourse/ddns-sd/internal/record"
)

const retryLimit = 3
const retryAfterTime = 250 * time.Millisecond

// Backend implements backend.Backend over a database/sql connection
// against the domains(id, name) / records(domain_id, name, type, ttl,
// content, change_date) schema.
type Backend struct {
	db         *sql.DB
	baseDomain string

	// touched tracks the PTR/TXT rrset names this process has written,
	// mirroring clouddns.Backend.cache's role in scoping
	// SuppressSharedRecords to records this daemon would have created
	// rather than the whole table (spec.md §4.1).
	touched map[record.SetKey]bool
}

// New constructs a sqldns Backend. baseDomain must name a row already
// present in the domains table; publish_record on a missing base domain
// logs and no-ops per spec.md §4.1.2.
func New(db *sql.DB, baseDomain string) *Backend {
	return &Backend{
		db:         db,
		baseDomain: strings.ToLower(strings.TrimSuffix(baseDomain, ".")) + ".",
		touched:    map[record.SetKey]bool{},
	}
}

func (b *Backend) Name() string { return "sql-dns" }

func (b *Backend) DNSRecords(ctx context.Context) ([]record.Record, error) {
	rows, err := b.withRetry(ctx, func(ctx context.Context) (*sql.Rows, error) {
		return b.db.QueryContext(ctx, `
			SELECT r.name, r.type, r.ttl, r.content
			FROM records r
			JOIN domains d ON d.id = r.domain_id
			WHERE d.name = $1`, b.baseDomain)
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var name, typ, content string
		var ttl uint32
		if err := rows.Scan(&name, &typ, &ttl, &content); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", backend.ErrTransient, err)
		}
		data, err := parseContent(record.Type(typ), content)
		if err != nil {
			log.WithError(err).WithField("name", name).Debug("sql-dns: skipping unparsable row")
			continue
		}
		out = append(out, record.New(name, ttl, record.Type(typ), data))
	}
	return out, rows.Err()
}

// PublishRecord implements the per-type upsert/add semantics of spec.md
// §4.1. A/AAAA/CNAME/TXT upsert the single row at (name, type); SRV/PTR add
// a sibling row if the exact (name, type, content) row doesn't exist yet.
func (b *Backend) PublishRecord(ctx context.Context, r record.Record) error {
	if !b.domainExists(ctx) {
		log.WithField("base_domain", b.baseDomain).Warn("sql-dns: base domain missing, dropping publish")
		return nil
	}
	var err error
	switch r.Type {
	case record.A, record.AAAA, record.CNAME, record.TXT:
		err = b.upsert(ctx, r)
	default: // SRV, PTR: add-if-absent, preserving siblings
		err = b.add(ctx, r)
	}
	if err == nil && (r.Type == record.PTR || r.Type == record.TXT) {
		b.touched[r.SetKey()] = true
	}
	return err
}

// SuppressRecord deletes exactly the row matching (name, type, content).
// For SRV it also removes the sibling TXT row at the same name once no SRV
// rows remain there, and the PTR entry pointing at the SRV's name.
func (b *Backend) SuppressRecord(ctx context.Context, r record.Record) error {
	if err := b.removeExact(ctx, r); err != nil {
		return err
	}
	if r.Type == record.PTR || r.Type == record.TXT {
		delete(b.touched, r.SetKey())
	}
	if r.Type != record.SRV {
		return nil
	}
	remaining, err := b.countByNameType(ctx, r.Name, record.SRV)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := b.removeWith(ctx, r.Name, record.TXT, nil); err != nil {
			return err
		}
		delete(b.touched, record.SetKey{Name: strings.ToLower(r.Name), Type: record.TXT})
		target := record.New(r.Name, r.TTL, record.PTR, record.PTRData{Target: r.Name})
		if err := b.removeExact(ctx, target); err != nil {
			return err
		}
		delete(b.touched, target.SetKey())
	}
	return nil
}

// SuppressSharedRecords deletes the PTR/TXT rrsets this process published
// this run, scoped to the names recorded in touched rather than every
// PTR/TXT row under the base domain (spec.md §4.1 "records this daemon
// would have created"). Called only on graceful total shutdown.
func (b *Backend) SuppressSharedRecords(ctx context.Context) error {
	for key := range b.touched {
		if err := b.removeWith(ctx, key.Name, key.Type, nil); err != nil {
			return err
		}
		delete(b.touched, key)
	}
	return nil
}

func (b *Backend) Rest(ctx context.Context) {}

func (b *Backend) domainExists(ctx context.Context) bool {
	var id int64
	err := b.db.QueryRowContext(ctx, `SELECT id FROM domains WHERE name = $1`, b.baseDomain).Scan(&id)
	return err == nil
}

// add inserts rr if no row with identical (name, type, content) exists.
func (b *Backend) add(ctx context.Context, r record.Record) error {
	return b.withRetryExec(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return addTx(ctx, tx, b.baseDomain, r)
	})
}

func addTx(ctx context.Context, tx *sql.Tx, baseDomain string, r record.Record) error {
	var exists int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM records rec
		JOIN domains d ON d.id = rec.domain_id
		WHERE d.name = $1 AND rec.name = $2 AND rec.type = $3 AND rec.content = $4`,
		baseDomain, strings.ToLower(r.Name), string(r.Type), r.Value()).Scan(&exists)
	if err == nil {
		return nil // already present
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: checking existing row: %v", backend.ErrTransient, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (domain_id, name, type, ttl, content, change_date)
		SELECT d.id, $2, $3, $4, $5, $6 FROM domains d WHERE d.name = $1`,
		baseDomain, strings.ToLower(r.Name), string(r.Type), r.TTL, r.Value(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: inserting row: %v", backend.ErrTransient, err)
	}
	return nil
}

// upsert atomically replaces the rrset at (name, type) with exactly rr:
// BEGIN; remove_with(name, type); add(rr); COMMIT. Rolls back and
// re-raises on any error, per spec.md §4.1.2.
func (b *Backend) upsert(ctx context.Context, r record.Record) error {
	return b.withRetryExec(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := removeWithTx(ctx, tx, b.baseDomain, strings.ToLower(r.Name), r.Type, nil); err != nil {
			return err
		}
		return addTx(ctx, tx, b.baseDomain, r)
	})
}

// removeExact deletes the row matching (name, type, content) exactly.
func (b *Backend) removeExact(ctx context.Context, r record.Record) error {
	content := r.Value()
	return b.removeWith(ctx, r.Name, r.Type, &content)
}

// removeWith deletes rows matching the non-nil filters. An empty name
// matches every name.
func (b *Backend) removeWith(ctx context.Context, name string, typ record.Type, content *string) error {
	return b.withRetryExec(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return removeWithTx(ctx, tx, b.baseDomain, name, typ, content)
	})
}

func removeWithTx(ctx context.Context, tx *sql.Tx, baseDomain, name string, typ record.Type, content *string) error {
	query := `DELETE FROM records WHERE domain_id = (SELECT id FROM domains WHERE name = $1) AND type = $2`
	args := []interface{}{baseDomain, string(typ)}
	if name != "" {
		query += fmt.Sprintf(" AND name = $%d", len(args)+1)
		args = append(args, strings.ToLower(name))
	}
	if content != nil {
		query += fmt.Sprintf(" AND content = $%d", len(args)+1)
		args = append(args, *content)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: deleting rows: %v", backend.ErrTransient, err)
	}
	return nil
}

func (b *Backend) countByNameType(ctx context.Context, name string, typ record.Type) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `
		SELECT count(*) FROM records r
		JOIN domains d ON d.id = r.domain_id
		WHERE d.name = $1 AND r.name = $2 AND r.type = $3`,
		b.baseDomain, strings.ToLower(name), string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: counting rows: %v", backend.ErrTransient, err)
	}
	return n, nil
}

// withRetryExec runs fn inside a transaction, retrying the whole
// statement/transaction up to retryLimit times on a transient failure
// (deadlock, connection loss) — CONFLICT is not reachable here because
// every mutation is already transactional (spec.md §4.1.2).
func (b *Backend) withRetryExec(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < retryLimit; attempt++ {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = fmt.Errorf("%w: beginning transaction: %v", backend.ErrTransient, err)
			time.Sleep(retryAfterTime * (1 << uint(attempt)))
			continue
		}
		if err := fn(ctx, tx); err != nil {
			tx.Rollback()
			if errors.Is(err, backend.ErrFatal) {
				return err
			}
			lastErr = err
			time.Sleep(retryAfterTime * (1 << uint(attempt)))
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = fmt.Errorf("%w: committing: %v", backend.ErrTransient, err)
			time.Sleep(retryAfterTime * (1 << uint(attempt)))
			continue
		}
		return nil
	}
	return lastErr
}

func (b *Backend) withRetry(ctx context.Context, fn func(ctx context.Context) (*sql.Rows, error)) (*sql.Rows, error) {
	var lastErr error
	for attempt := 0; attempt < retryLimit; attempt++ {
		rows, err := fn(ctx)
		if err == nil {
			return rows, nil
		}
		lastErr = fmt.Errorf("%w: %v", backend.ErrTransient, err)
		time.Sleep(retryAfterTime * (1 << uint(attempt)))
	}
	return nil, lastErr
}
