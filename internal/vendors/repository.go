package vendors

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists vendors in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vendorColumns = `id, name, tax_id, contact_email, contact_phone, address, status,
	submitted_at, reviewed_by, reviewed_at, review_comment, created_by, created_at, updated_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(
		&v.ID, &v.Name, &v.TaxID, &v.ContactEmail, &v.ContactPhone, &v.Address, &v.Status,
		&v.SubmittedAt, &v.ReviewedBy, &v.ReviewedAt, &v.ReviewComment, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, ErrNotFound
	}
	return v, err
}

func (r *Repository) Get(ctx context.Context, id int64) (Vendor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	return scanVendor(row)
}

func (r *Repository) List(ctx context.Context, status *Status, limit, offset int) ([]Vendor, int, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM vendors WHERE 1=1`
	args := []any{}

	if status != nil {
		args = append(args, *status)
		clause := ` AND status = $` + strconv.Itoa(len(args))
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *Repository) Insert(ctx context.Context, v Vendor) (Vendor, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO vendors (name, tax_id, contact_email, contact_phone, address, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+vendorColumns,
		v.Name, v.TaxID, v.ContactEmail, v.ContactPhone, v.Address, v.Status, v.CreatedBy, time.Now())
	return scanVendor(row)
}

// UpdateStatus moves the vendor to a new lifecycle status with a guard on
// the expected current status so concurrent reviews cannot both win.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status, updates map[string]any) (Vendor, error) {
	set := `status = $1, updated_at = $2`
	args := []any{to, time.Now()}
	for col, val := range updates {
		args = append(args, val)
		set += `, ` + col + ` = $` + strconv.Itoa(len(args))
	}
	args = append(args, id)
	idPos := strconv.Itoa(len(args))
	args = append(args, from)
	fromPos := strconv.Itoa(len(args))

	row := r.pool.QueryRow(ctx,
		`UPDATE vendors SET `+set+` WHERE id = $`+idPos+` AND status = $`+fromPos+` RETURNING `+vendorColumns,
		args...)
	v, err := scanVendor(row)
	if errors.Is(err, ErrNotFound) {
		// Row exists but in another status, or is genuinely missing.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Vendor{}, getErr
		}
		return Vendor{}, ErrInvalidTransition
	}
	return v, err
}

func (r *Repository) UpdateDetails(ctx context.Context, v Vendor) (Vendor, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE vendors SET name = $1, tax_id = $2, contact_email = $3, contact_phone = $4, address = $5, updated_at = $6
		 WHERE id = $7 AND status IN ($8, $9)
		 RETURNING `+vendorColumns,
		v.Name, v.TaxID, v.ContactEmail, v.ContactPhone, v.Address, time.Now(), v.ID, StatusDraft, StatusRejected)
	out, err := scanVendor(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, v.ID); getErr != nil {
			return Vendor{}, getErr
		}
		return Vendor{}, ErrInvalidTransition
	}
	return out, err
}
