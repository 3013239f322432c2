package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PGRecords is the production RecordStore, backed by the blobs table.
// Insertion order is tracked by a bigserial column so List can return
// records in the order they were committed.
type PGRecords struct {
	db *sql.DB
}

func NewPGRecords(db *sql.DB) *PGRecords {
	return &PGRecords{db: db}
}

func (p *PGRecords) Insert(ctx context.Context, rec Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blobs (id, owner, filename, content_type, size_bytes, label, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Owner, rec.Filename, rec.ContentType, rec.Size, rec.Label, rec.UploadedAt)
	return err
}

func (p *PGRecords) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var rec Record
	err := p.db.QueryRowContext(ctx, `
		SELECT id, owner, filename, content_type, size_bytes, label, uploaded_at
		FROM blobs
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Owner, &rec.Filename, &rec.ContentType, &rec.Size, &rec.Label, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get blob record: %w", err)
	}
	return rec, nil
}

func (p *PGRecords) List(ctx context.Context, f Filter) ([]Record, error) {
	order := "seq"
	if f.ByUploadTime {
		order = "uploaded_at"
	}

	query := `
		SELECT id, owner, filename, content_type, size_bytes, label, uploaded_at
		FROM blobs
		WHERE ($1::uuid IS NULL OR owner = $1)
		ORDER BY ` + order

	var owner any
	if f.Owner != uuid.Nil {
		owner = f.Owner
	}

	rows, err := p.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list blob records: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Filename, &rec.ContentType,
			&rec.Size, &rec.Label, &rec.UploadedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (p *PGRecords) Delete(ctx context.Context, id, owner uuid.UUID) error {
	var (
		res sql.Result
		err error
	)
	if owner == uuid.Nil {
		res, err = p.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	} else {
		res, err = p.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = $1 AND owner = $2`, id, owner)
	}
	if err != nil {
		return fmt.Errorf("delete blob record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGRecords) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
