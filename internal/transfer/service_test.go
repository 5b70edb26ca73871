package transfer

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryRepo implements RepositoryPort and TxRepository against maps, with
// the same revision guards as the SQL repository. Mutations inside a failed
// unit of work are rolled back through an undo log.
type memoryRepo struct {
	transfers map[int64]Transfer
	items     map[int64]Item
	logs      []Log

	nextTransferID int64
	nextItemID     int64
	seq            int64

	// afterTransferRead fires once inside GetTransferForUpdate, letting a
	// test interleave a competing writer between snapshot and update.
	afterTransferRead func()

	// lockOrder records the sequence of row locks taken inside units of work.
	lockOrder []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		transfers: make(map[int64]Transfer),
		items:     make(map[int64]Item),
	}
}

type memoryTx struct {
	repo *memoryRepo
	undo []func()
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (r *memoryRepo) itemsOf(transferID int64) []Item {
	var out []Item
	for _, it := range r.items {
		if it.TransferID == transferID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	t, ok := r.transfers[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	t.Items = r.itemsOf(id)
	return t, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID int64) (Item, error) {
	it, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (r *memoryRepo) GetHistory(ctx context.Context, id int64) (WithHistory, error) {
	t, err := r.GetTransfer(ctx, id)
	if err != nil {
		return WithHistory{}, err
	}
	var logs []Log
	for _, l := range r.logs {
		if l.TransferID == id {
			logs = append(logs, l)
		}
	}
	return WithHistory{Transfer: t, Items: t.Items, Logs: logs}, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	var out []Transfer
	for _, t := range r.transfers {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.WarehouseID != nil && t.SourceWarehouseID != *filter.WarehouseID && t.TargetWarehouseID != *filter.WarehouseID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (tx *memoryTx) NextTransferNumber(ctx context.Context) (string, error) {
	tx.repo.seq++
	return fmt.Sprintf("TRF-2026-%06d", tx.repo.seq), nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	tx.repo.nextTransferID++
	id := tx.repo.nextTransferID
	t.ID = id
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	tx.repo.transfers[id] = t
	tx.undo = append(tx.undo, func() { delete(tx.repo.transfers, id) })
	return id, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	tx.repo.nextItemID++
	id := tx.repo.nextItemID
	item.ID = id
	tx.repo.items[id] = item
	tx.undo = append(tx.undo, func() { delete(tx.repo.items, id) })
	return id, nil
}

func (tx *memoryTx) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	tx.repo.lockOrder = append(tx.repo.lockOrder, "transfer")
	t, ok := tx.repo.transfers[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	t.Items = tx.repo.itemsOf(id)
	if hook := tx.repo.afterTransferRead; hook != nil {
		tx.repo.afterTransferRead = nil
		hook()
	}
	return t, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	tx.repo.lockOrder = append(tx.repo.lockOrder, "item")
	it, ok := tx.repo.items[itemID]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (tx *memoryTx) UpdateTransfer(ctx context.Context, id, revision int64, status Status, updates map[string]any) error {
	cur, ok := tx.repo.transfers[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != revision {
		return ErrConcurrentModification
	}
	prev := cur
	cur.Status = status
	cur.Revision++
	cur.UpdatedAt = time.Now()
	for col, val := range updates {
		applyTransferColumn(&cur, col, val)
	}
	tx.repo.transfers[id] = cur
	tx.undo = append(tx.undo, func() { tx.repo.transfers[id] = prev })
	return nil
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item Item) error {
	cur, ok := tx.repo.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != item.Revision {
		return ErrConcurrentModification
	}
	prev := cur
	item.Revision++
	item.UpdatedAt = time.Now()
	tx.repo.items[item.ID] = item
	tx.undo = append(tx.undo, func() { tx.repo.items[item.ID] = prev })
	return nil
}

func (tx *memoryTx) InsertLog(ctx context.Context, entry Log) error {
	entry.ID = int64(len(tx.repo.logs) + 1)
	tx.repo.logs = append(tx.repo.logs, entry)
	tx.undo = append(tx.undo, func() { tx.repo.logs = tx.repo.logs[:len(tx.repo.logs)-1] })
	return nil
}

func applyTransferColumn(t *Transfer, col string, val any) {
	switch col {
	case "dispatched_by":
		s := val.(string)
		t.DispatchedBy = &s
	case "dispatched_at":
		ts := val.(time.Time)
		t.DispatchedAt = &ts
	case "courier_name":
		s := val.(string)
		t.CourierName = &s
	case "tracking_number":
		s := val.(string)
		t.TrackingNumber = &s
	case "expected_delivery":
		ts := val.(time.Time)
		t.ExpectedDelivery = &ts
	case "received_by":
		s := val.(string)
		t.ReceivedBy = &s
	case "received_at":
		ts := val.(time.Time)
		t.ReceivedAt = &ts
	case "receipt_notes":
		s := val.(string)
		t.ReceiptNotes = &s
	case "return_dispatched_by":
		s := val.(string)
		t.ReturnDispatchedBy = &s
	case "return_dispatched_at":
		ts := val.(time.Time)
		t.ReturnDispatchedAt = &ts
	case "return_courier_name":
		s := val.(string)
		t.ReturnCourierName = &s
	case "return_tracking_number":
		s := val.(string)
		t.ReturnTrackingNumber = &s
	case "cancelled_by":
		s := val.(string)
		t.CancelledBy = &s
	case "cancelled_at":
		ts := val.(time.Time)
		t.CancelledAt = &ts
	case "cancel_reason":
		s := val.(string)
		t.CancelReason = &s
	}
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) TransferEvent(ctx context.Context, evt Event) {
	n.events = append(n.events, evt)
}

var testCaller = Caller{Actor: "user-17", Origin: "10.1.2.3:55110"}

func initiateTwoLines(t *testing.T, svc *Service, qty1, qty2 int64) Transfer {
	t.Helper()
	created, err := svc.InitiateTransfer(context.Background(), InitiateInput{
		SourceWarehouseID: 1,
		TargetWarehouseID: 2,
		Items: []ItemInput{
			{ProductID: 100, QuantitySent: qty1},
			{ProductID: 200, QuantitySent: qty2},
		},
	}, testCaller)
	require.NoError(t, err)
	return created
}

func dispatched(t *testing.T, svc *Service, id int64) Transfer {
	t.Helper()
	out, err := svc.DispatchTransfer(context.Background(), id, CourierInfo{CourierName: "Hermes Freight", TrackingNumber: "HF-99812"}, testCaller)
	require.NoError(t, err)
	return out
}

func TestInitiateTransfer(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier)

	created := initiateTwoLines(t, svc, 10, 4)
	require.Equal(t, StatusInitiated, created.Status)
	require.Equal(t, "TRF-2026-000001", created.Number)
	require.Len(t, created.Items, 2)
	for _, it := range created.Items {
		require.Equal(t, ItemStatusPending, it.Status)
	}

	history, err := svc.GetTransferWithHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history.Logs, 1)
	require.Equal(t, ActionInitiate, history.Logs[0].Action)
	require.Equal(t, "user-17", history.Logs[0].Actor)
	require.NotNil(t, history.Logs[0].OriginAddr)

	require.Len(t, notifier.events, 1)
	require.NotEmpty(t, notifier.events[0].ID)
}

func TestInitiateTransferValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.InitiateTransfer(ctx, InitiateInput{SourceWarehouseID: 1, TargetWarehouseID: 1, Items: []ItemInput{{ProductID: 1, QuantitySent: 1}}}, testCaller)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.InitiateTransfer(ctx, InitiateInput{SourceWarehouseID: 1, TargetWarehouseID: 2}, testCaller)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.InitiateTransfer(ctx, InitiateInput{SourceWarehouseID: 1, TargetWarehouseID: 2, Items: []ItemInput{{ProductID: 1, QuantitySent: 0}}}, testCaller)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.InitiateTransfer(ctx, InitiateInput{SourceWarehouseID: 1, TargetWarehouseID: 2, Items: []ItemInput{{ProductID: 1, QuantitySent: 1}}}, Caller{})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDispatchTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)

	out := dispatched(t, svc, created.ID)
	require.Equal(t, StatusInTransit, out.Status)
	require.NotNil(t, out.DispatchedAt)
	require.Equal(t, "Hermes Freight", *out.CourierName)

	// A second dispatch is not a legal transition.
	_, err := svc.DispatchTransfer(context.Background(), created.ID, CourierInfo{}, testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDispatchEmptyTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	// Seed a transfer whose lines were never created.
	repo.nextTransferID++
	repo.transfers[repo.nextTransferID] = Transfer{ID: repo.nextTransferID, Number: "TRF-2026-000099", Status: StatusInitiated}

	_, err := svc.DispatchTransfer(context.Background(), repo.nextTransferID, CourierInfo{}, testCaller)
	require.ErrorIs(t, err, ErrEmptyTransfer)
}

func TestReceiveItemsMixedOutcome(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)

	out, err := svc.ReceiveItems(context.Background(), created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{RejectedDelta: 4, RejectionReason: "water damage"}},
	}, testCaller, "dock 3")
	require.NoError(t, err)
	require.Equal(t, StatusPartialReceived, out.Status)
	require.Equal(t, ItemStatusAccepted, out.Items[0].Status)
	require.Equal(t, ItemStatusRejected, out.Items[1].Status)
	require.NotNil(t, out.ReceivedAt)
	require.Equal(t, "dock 3", *out.ReceiptNotes)

	// One log per state change: INITIATE, DISPATCH, two RECEIVE, STATUS_CHANGE.
	history, err := svc.GetTransferWithHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history.Logs, 5)
	actions := map[Action]int{}
	for _, l := range history.Logs {
		actions[l.Action]++
	}
	require.Equal(t, 2, actions[ActionReceive])
	require.Equal(t, 1, actions[ActionStatusChange])
}

func TestReceiveItemsFullAcceptance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)

	out, err := svc.ReceiveItems(context.Background(), created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{ReceivedDelta: 4}},
	}, testCaller, "")
	require.NoError(t, err)
	require.Equal(t, StatusReceived, out.Status)
}

func TestReceiveItemsPartialThenRemainder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	out, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 6}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{ReceivedDelta: 4}},
	}, testCaller, "")
	require.NoError(t, err)
	// First line still has outstanding units.
	require.Equal(t, StatusInTransit, out.Status)

	out, err = svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 4}},
	}, testCaller, "")
	require.NoError(t, err)
	require.Equal(t, StatusReceived, out.Status)
}

func TestReceiveItemsBatchIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	logsBefore := len(repo.logs)

	_, err := svc.ReceiveItems(context.Background(), created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{ReceivedDelta: 5}},
	}, testCaller, "")
	require.ErrorIs(t, err, ErrConservation)

	// The valid first action must not have been persisted.
	item, getErr := svc.repo.GetItem(context.Background(), created.Items[0].ID)
	require.NoError(t, getErr)
	require.EqualValues(t, 0, item.QuantityReceived)
	require.Equal(t, ItemStatusPending, item.Status)
	require.Len(t, repo.logs, logsBefore)
}

func TestReceiveItemsUnknownLine(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)

	_, err := svc.ReceiveItems(context.Background(), created.ID, []ReceiptRequest{
		{ItemID: 9999, Action: ReceiptAction{ReceivedDelta: 1}},
	}, testCaller, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestReceiveItemsBeforeDispatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)

	_, err := svc.ReceiveItems(context.Background(), created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 1}},
	}, testCaller, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReceiveItemsKeepsNotesWithoutStatusChange(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	out, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 2}},
	}, testCaller, "first pallet short")
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, out.Status)
	require.NotNil(t, out.ReceivedAt)
	require.Equal(t, "first pallet short", *out.ReceiptNotes)

	// A follow-up batch that leaves the derived status alone still records
	// its receipt metadata.
	out, err = svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 3}},
	}, testCaller, "second pallet damp but intact")
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, out.Status)
	require.Equal(t, "second pallet damp but intact", *out.ReceiptNotes)
}

func TestConcurrentReceiveSameItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 5, 5)
	dispatched(t, svc, created.ID)
	ctx := context.Background()
	itemID := created.Items[0].ID

	// Interleave a competing receipt of the same line after this call has
	// taken its snapshot but before it writes.
	repo.afterTransferRead = func() {
		_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
			{ItemID: itemID, Action: ReceiptAction{ReceivedDelta: 5}},
		}, Caller{Actor: "user-42"}, "")
		require.NoError(t, err)
	}

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: itemID, Action: ReceiptAction{ReceivedDelta: 5}},
	}, testCaller, "")
	require.ErrorIs(t, err, ErrConcurrentModification)

	// Exactly one receipt won: quantities counted once, one RECEIVE log.
	item, err := repo.GetItem(ctx, itemID)
	require.NoError(t, err)
	require.EqualValues(t, 5, item.QuantityReceived)
	receiveLogs := 0
	for _, l := range repo.logs {
		if l.Action == ActionReceive && l.ItemID != nil && *l.ItemID == itemID {
			receiveLogs++
		}
	}
	require.Equal(t, 1, receiveLogs)
}

func TestSettlementLocksTransferBeforeItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{RejectedDelta: 4, RejectionReason: "expired"}},
	}, testCaller, "")
	require.NoError(t, err)

	// Disposal must take row locks in the same order as the receipt path:
	// transfer first, then the line.
	repo.lockOrder = nil
	_, err = svc.DisposeRejectedItem(ctx, created.Items[1].ID, 0, "destroyed", testCaller)
	require.NoError(t, err)
	require.Equal(t, []string{"transfer", "item"}, repo.lockOrder)
}

func TestDisposeRejectedItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{RejectedDelta: 4, RejectionReason: "expired"}},
	}, testCaller, "")
	require.NoError(t, err)

	// Over-allocation is a conservation failure, not a silent clamp.
	_, err = svc.DisposeRejectedItem(ctx, created.Items[1].ID, 5, "destruction", testCaller)
	require.ErrorIs(t, err, ErrConservation)

	// Zero quantity consumes the full rejected remainder.
	item, err := svc.DisposeRejectedItem(ctx, created.Items[1].ID, 0, "regulatory destruction", testCaller)
	require.NoError(t, err)
	require.Equal(t, ItemStatusDisposed, item.Status)
	require.EqualValues(t, 4, item.QuantityDisposed)

	_, err = svc.DisposeRejectedItem(ctx, created.Items[1].ID, 1, "again", testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReturnFlowToReturnedTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{RejectedDelta: 4, RejectionReason: "crushed"}},
	}, testCaller, "")
	require.NoError(t, err)

	// Return dispatch is refused while rejected units are unallocated.
	_, err = svc.MarkReturnDispatched(ctx, created.ID, ReturnCourierInfo{CourierName: "Hermes Freight"}, testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)

	item, err := svc.ReturnRejectedItem(ctx, created.Items[1].ID, 0, testCaller)
	require.NoError(t, err)
	require.EqualValues(t, 4, item.QuantityReturned)

	out, err := svc.MarkReturnDispatched(ctx, created.ID, ReturnCourierInfo{CourierName: "Hermes Freight", TrackingNumber: "HF-RET-1"}, testCaller)
	require.NoError(t, err)
	require.Equal(t, StatusReturned, out.Status)
	require.NotNil(t, out.ReturnDispatchedAt)
}

func TestReturnDispatchWithoutReturnedUnits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 10}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{RejectedDelta: 4, RejectionReason: "expired"}},
	}, testCaller, "")
	require.NoError(t, err)

	_, err = svc.DisposeRejectedItem(ctx, created.Items[1].ID, 0, "destroyed", testCaller)
	require.NoError(t, err)

	// Everything rejected was disposed, nothing travels back.
	_, err = svc.MarkReturnDispatched(ctx, created.ID, ReturnCourierInfo{}, testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelTransfer(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created := initiateTwoLines(t, svc, 10, 4)
	out, err := svc.CancelTransfer(ctx, created.ID, "duplicate order", testCaller)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
	require.Equal(t, "duplicate order", *out.CancelReason)

	// No further actions on a cancelled transfer.
	_, err = svc.DispatchTransfer(ctx, created.ID, CourierInfo{}, testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CancelTransfer(ctx, created.ID, "again", testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRefusedAfterReceiptActivity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 2}},
	}, testCaller, "")
	require.NoError(t, err)

	_, err = svc.CancelTransfer(ctx, created.ID, "changed plans", testCaller)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CancelTransfer(ctx, created.ID, "", testCaller)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCancelAllowedWhileInTransit(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	created := initiateTwoLines(t, svc, 10, 4)
	dispatched(t, svc, created.ID)

	out, err := svc.CancelTransfer(context.Background(), created.ID, "courier lost shipment", testCaller)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
}

func TestNotifierReceivesCommittedEvents(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	svc := NewService(repo, notifier)
	created := initiateTwoLines(t, svc, 5, 5)
	dispatched(t, svc, created.ID)
	ctx := context.Background()

	before := len(notifier.events)
	_, err := svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 5}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{ReceivedDelta: 6}},
	}, testCaller, "")
	require.ErrorIs(t, err, ErrConservation)
	// Nothing committed, nothing emitted.
	require.Len(t, notifier.events, before)

	_, err = svc.ReceiveItems(ctx, created.ID, []ReceiptRequest{
		{ItemID: created.Items[0].ID, Action: ReceiptAction{ReceivedDelta: 5}},
		{ItemID: created.Items[1].ID, Action: ReceiptAction{ReceivedDelta: 5}},
	}, testCaller, "")
	require.NoError(t, err)
	require.Greater(t, len(notifier.events), before)
	last := notifier.events[len(notifier.events)-1]
	require.Equal(t, ActionStatusChange, last.Action)
	require.Equal(t, string(StatusReceived), last.NewStatus)
}

func TestListTransfers(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first := initiateTwoLines(t, svc, 10, 4)
	initiateTwoLines(t, svc, 3, 3)
	dispatched(t, svc, first.ID)

	status := StatusInTransit
	got, total, err := svc.ListTransfers(ctx, ListFilter{Status: &status})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, got, 1)
	require.Equal(t, first.ID, got[0].ID)
}

func TestGetTransferWithHistoryNotFound(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.GetTransferWithHistory(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}
