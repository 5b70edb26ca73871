package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures surface as ErrConcurrentModification so callers can
// re-read and resubmit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfer repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return translateConcurrency(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translateConcurrency(err)
	}
	return nil
}

// translateConcurrency maps SQLSTATE 40001 (serialization failure) and 40P01
// (deadlock detected) onto the domain concurrency error, so callers retry the
// unit of work instead of surfacing a raw database failure.
func translateConcurrency(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}

const transferColumns = `id, number, source_warehouse_id, target_warehouse_id, status,
	initiated_by, initiated_at, courier_name, tracking_number, expected_delivery,
	dispatched_by, dispatched_at, received_by, received_at, receipt_notes,
	return_courier_name, return_tracking_number, return_dispatched_by, return_dispatched_at,
	cancelled_by, cancelled_at, cancel_reason, revision, created_at, updated_at`

const itemColumns = `id, transfer_id, product_id, batch_number, expiry_date, unit_price, currency,
	quantity_sent, quantity_received, quantity_rejected, quantity_disposed, quantity_returned,
	status, rejection_reason, disposal_reason, condition_notes, revision, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(
		&t.ID, &t.Number, &t.SourceWarehouseID, &t.TargetWarehouseID, &t.Status,
		&t.InitiatedBy, &t.InitiatedAt, &t.CourierName, &t.TrackingNumber, &t.ExpectedDelivery,
		&t.DispatchedBy, &t.DispatchedAt, &t.ReceivedBy, &t.ReceivedAt, &t.ReceiptNotes,
		&t.ReturnCourierName, &t.ReturnTrackingNumber, &t.ReturnDispatchedBy, &t.ReturnDispatchedAt,
		&t.CancelledBy, &t.CancelledAt, &t.CancelReason, &t.Revision, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.TransferID, &it.ProductID, &it.BatchNumber, &it.ExpiryDate, &it.UnitPrice, &it.Currency,
		&it.QuantitySent, &it.QuantityReceived, &it.QuantityRejected, &it.QuantityDisposed, &it.QuantityReturned,
		&it.Status, &it.RejectionReason, &it.DisposalReason, &it.ConditionNotes, &it.Revision, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// GetTransfer loads the transfer and its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM warehouse_transfers WHERE id = $1`, id))
	if err != nil {
		return Transfer{}, err
	}
	items, err := queryItems(ctx, r.pool, `SELECT `+itemColumns+` FROM warehouse_transfer_items WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	t.Items = items
	return t, nil
}

// GetItem loads a single line.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM warehouse_transfer_items WHERE id = $1`, itemID))
}

// GetHistory joins the transfer, its items, and the full audit trail.
func (r *Repository) GetHistory(ctx context.Context, id int64) (WithHistory, error) {
	t, err := r.GetTransfer(ctx, id)
	if err != nil {
		return WithHistory{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, item_id, action, actor, prev_status, new_status, detail, notes, origin_addr, created_at
FROM warehouse_transfer_logs WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return WithHistory{}, err
	}
	defer rows.Close()
	logs := []Log{}
	for rows.Next() {
		var (
			entry  Log
			detail []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TransferID, &entry.ItemID, &entry.Action, &entry.Actor,
			&entry.PrevStatus, &entry.NewStatus, &detail, &entry.Notes, &entry.OriginAddr, &entry.CreatedAt); err != nil {
			return WithHistory{}, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &entry.Detail); err != nil {
				return WithHistory{}, fmt.Errorf("decode log detail: %w", err)
			}
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return WithHistory{}, err
	}
	items := t.Items
	t.Items = nil
	return WithHistory{Transfer: t, Items: items, Logs: logs}, nil
}

// List returns transfers matching the filter plus the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	where := []string{"1=1"}
	args := []any{}
	arg := 1
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", arg))
		args = append(args, *filter.Status)
		arg++
	}
	if filter.WarehouseID != nil {
		where = append(where, fmt.Sprintf("(source_warehouse_id = $%d OR target_warehouse_id = $%d)", arg, arg))
		args = append(args, *filter.WarehouseID)
		arg++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouse_transfers WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM warehouse_transfers WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transferColumns, clause, arg, arg+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

type itemQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q itemQuerier, sql string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// NextTransferNumber allocates the next immutable transfer number.
func (t *txRepository) NextTransferNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('warehouse_transfer_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("TRF-%d-%06d", time.Now().UTC().Year(), seq), nil
}

// InsertTransfer inserts the header row.
func (t *txRepository) InsertTransfer(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO warehouse_transfers (
			number, source_warehouse_id, target_warehouse_id, status,
			initiated_by, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		tr.Number, tr.SourceWarehouseID, tr.TargetWarehouseID, tr.Status,
		tr.InitiatedBy, tr.InitiatedAt,
	).Scan(&id)
	return id, err
}

// InsertItem inserts one line.
func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO warehouse_transfer_items (
			transfer_id, product_id, batch_number, expiry_date, unit_price, currency,
			quantity_sent, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		item.TransferID, item.ProductID, item.BatchNumber, item.ExpiryDate, item.UnitPrice, item.Currency,
		item.QuantitySent, item.Status,
	).Scan(&id)
	return id, err
}

// GetTransferForUpdate locks the transfer header and its lines for the
// duration of the unit of work.
func (t *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	tr, err := scanTransfer(t.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM warehouse_transfers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Transfer{}, err
	}
	items, err := queryItems(ctx, t.tx, `SELECT `+itemColumns+` FROM warehouse_transfer_items WHERE transfer_id = $1 ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return Transfer{}, err
	}
	tr.Items = items
	return tr, nil
}

// GetItemForUpdate locks a single line.
func (t *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM warehouse_transfer_items WHERE id = $1 FOR UPDATE`, itemID))
}

// UpdateTransfer applies a status change plus field updates, guarded by the
// revision read in this transaction.
func (t *txRepository) UpdateTransfer(ctx context.Context, id, revision int64, status Status, updates map[string]any) error {
	setClauses := []string{}
	args := []any{}
	arg := 1
	for field, value := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, arg))
		args = append(args, value)
		arg++
	}
	setClauses = append(setClauses,
		fmt.Sprintf("status = $%d", arg),
		fmt.Sprintf("updated_at = $%d", arg+1),
		"revision = revision + 1",
	)
	args = append(args, status, time.Now().UTC())
	arg += 2
	args = append(args, id, revision)

	query := fmt.Sprintf(`UPDATE warehouse_transfers SET %s WHERE id = $%d AND revision = $%d`,
		strings.Join(setClauses, ", "), arg, arg+1)
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return concurrentOrMissing(ctx, t.tx, `SELECT 1 FROM warehouse_transfers WHERE id = $1`, id)
	}
	return nil
}

// UpdateItem persists the post-action line snapshot, guarded by the revision
// carried on the snapshot.
func (t *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE warehouse_transfer_items SET
			quantity_received = $1, quantity_rejected = $2, quantity_disposed = $3,
			quantity_returned = $4, status = $5, rejection_reason = $6,
			disposal_reason = $7, condition_notes = $8,
			revision = revision + 1, updated_at = $9
		WHERE id = $10 AND revision = $11`,
		item.QuantityReceived, item.QuantityRejected, item.QuantityDisposed,
		item.QuantityReturned, item.Status, item.RejectionReason,
		item.DisposalReason, item.ConditionNotes,
		time.Now().UTC(), item.ID, item.Revision,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return concurrentOrMissing(ctx, t.tx, `SELECT 1 FROM warehouse_transfer_items WHERE id = $1`, item.ID)
	}
	return nil
}

// InsertLog appends one immutable audit row.
func (t *txRepository) InsertLog(ctx context.Context, entry Log) error {
	detail, err := json.Marshal(entry.Detail)
	if err != nil {
		return fmt.Errorf("encode log detail: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO warehouse_transfer_logs (
			transfer_id, item_id, action, actor, prev_status, new_status,
			detail, notes, origin_addr, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.TransferID, entry.ItemID, entry.Action, entry.Actor, entry.PrevStatus, entry.NewStatus,
		detail, entry.Notes, entry.OriginAddr, entry.CreatedAt,
	)
	return err
}

// concurrentOrMissing distinguishes a stale revision from a missing row.
func concurrentOrMissing(ctx context.Context, tx pgx.Tx, probe string, id int64) error {
	var one int
	if err := tx.QueryRow(ctx, probe, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConcurrentModification
}
