package fetcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/types"
)

// fakeDB serves canned rows keyed by "table/column=value" and counts every
// lookup it receives.
type fakeDB struct {
	mu      sync.Mutex
	rows    map[string]types.Row
	fetches []string
	fail    map[string]bool
}

func (f *fakeDB) FetchOne(_ context.Context, table string, keys map[string]any) (types.Row, error) {
	var key string
	for col, val := range keys {
		key = fmt.Sprintf("%s/%s=%v", table, col, val)
	}
	f.mu.Lock()
	f.fetches = append(f.fetches, key)
	f.mu.Unlock()

	if f.fail[key] {
		return nil, fmt.Errorf("connection reset")
	}
	return f.rows[key], nil
}

func ordersSchema() types.Schema {
	s := types.Schema{}
	s.Add(&types.SchemaTable{
		Name:       "orders",
		Columns:    []types.SchemaColumn{{Name: "id"}, {Name: "shipment_id"}},
		PrimaryKey: []string{"id"},
		ForeignKeys: []types.ForeignKey{
			{Column: "shipment_id", RefTable: "shipments", RefColumn: "id"},
		},
	})
	s.Add(&types.SchemaTable{
		Name:       "shipments",
		Columns:    []types.SchemaColumn{{Name: "id"}, {Name: "carrier_id"}},
		PrimaryKey: []string{"id"},
		ForeignKeys: []types.ForeignKey{
			{Column: "carrier_id", RefTable: "carriers", RefColumn: "id"},
		},
	})
	s.Add(&types.SchemaTable{
		Name:       "carriers",
		Columns:    []types.SchemaColumn{{Name: "id"}},
		PrimaryKey: []string{"id"},
	})
	return s
}

func TestFetchesMissingParentOnce(t *testing.T) {
	db := &fakeDB{rows: map[string]types.Row{
		"shipments/id=5": {"id": 5, "carrier_id": nil},
	}}
	rows := types.RowSet{
		"orders": {
			{"id": 1, "shipment_id": 5},
			{"id": 2, "shipment_id": 5}, // same triple, must not refetch
		},
	}

	f := New(db, ordersSchema(), report.Discard(), 10, 2)
	fetched := f.Close(context.Background(), rows)

	if fetched != 1 {
		t.Fatalf("expected exactly one fetched row, got %d", fetched)
	}
	if len(rows["shipments"]) != 1 || rows["shipments"][0]["id"] != 5 {
		t.Errorf("expected shipments row appended, got %v", rows["shipments"])
	}
	if len(db.fetches) != 1 || db.fetches[0] != "shipments/id=5" {
		t.Errorf("expected one lookup for shipments/id=5, got %v", db.fetches)
	}
}

func TestSkipsAlreadyPresentRows(t *testing.T) {
	db := &fakeDB{rows: map[string]types.Row{}}
	rows := types.RowSet{
		"orders":    {{"id": 1, "shipment_id": 5}},
		"shipments": {{"id": 5}},
	}

	f := New(db, ordersSchema(), report.Discard(), 10, 2)
	if fetched := f.Close(context.Background(), rows); fetched != 0 {
		t.Errorf("expected no fetches, got %d", fetched)
	}
	if len(db.fetches) != 0 {
		t.Errorf("expected no lookups, got %v", db.fetches)
	}
}

func TestFollowsTransitiveDependencies(t *testing.T) {
	db := &fakeDB{rows: map[string]types.Row{
		"shipments/id=5": {"id": 5, "carrier_id": 9},
		"carriers/id=9":  {"id": 9},
	}}
	rows := types.RowSet{
		"orders": {{"id": 1, "shipment_id": 5}},
	}

	f := New(db, ordersSchema(), report.Discard(), 10, 2)
	fetched := f.Close(context.Background(), rows)

	if fetched != 2 {
		t.Fatalf("expected shipment and carrier fetched, got %d", fetched)
	}
	if len(rows["carriers"]) != 1 {
		t.Errorf("expected carrier row appended, got %v", rows["carriers"])
	}
}

func TestFetchFailureIsNonFatal(t *testing.T) {
	db := &fakeDB{
		rows: map[string]types.Row{},
		fail: map[string]bool{"shipments/id=5": true},
	}
	rows := types.RowSet{
		"orders": {{"id": 1, "shipment_id": 5}},
	}

	rep := report.Discard()
	f := New(db, ordersSchema(), rep, 10, 2)
	if fetched := f.Close(context.Background(), rows); fetched != 0 {
		t.Errorf("expected no rows on failure, got %d", fetched)
	}
	if len(rep.Warnings()) == 0 {
		t.Error("expected a warning for the failed fetch")
	}
}

func TestDepthLimit(t *testing.T) {
	db := &fakeDB{rows: map[string]types.Row{
		"shipments/id=5": {"id": 5, "carrier_id": 9},
		"carriers/id=9":  {"id": 9},
	}}
	rows := types.RowSet{
		"orders": {{"id": 1, "shipment_id": 5}},
	}

	rep := report.Discard()
	f := New(db, ordersSchema(), rep, 1, 2)
	fetched := f.Close(context.Background(), rows)

	// Depth 1 allows the shipment but stops before the carrier.
	if fetched != 1 {
		t.Fatalf("expected one fetch under depth cap, got %d", fetched)
	}
	if len(rows["carriers"]) != 0 {
		t.Errorf("expected carrier fetch suppressed, got %v", rows["carriers"])
	}
	if len(rep.Warnings()) == 0 {
		t.Error("expected a depth-limit warning")
	}
}

func TestManyParentsPerRow(t *testing.T) {
	// A single row can produce one fetched parent per foreign key; the wave
	// must absorb all of them without blocking a worker.
	s := types.Schema{}
	s.Add(&types.SchemaTable{
		Name: "orders",
		Columns: []types.SchemaColumn{
			{Name: "id"}, {Name: "customer_id"}, {Name: "address_id"}, {Name: "coupon_id"},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []types.ForeignKey{
			{Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			{Column: "address_id", RefTable: "addresses", RefColumn: "id"},
			{Column: "coupon_id", RefTable: "coupons", RefColumn: "id"},
		},
	})
	s.Add(&types.SchemaTable{Name: "customers", Columns: []types.SchemaColumn{{Name: "id"}}, PrimaryKey: []string{"id"}})
	s.Add(&types.SchemaTable{Name: "addresses", Columns: []types.SchemaColumn{{Name: "id"}}, PrimaryKey: []string{"id"}})
	s.Add(&types.SchemaTable{Name: "coupons", Columns: []types.SchemaColumn{{Name: "id"}}, PrimaryKey: []string{"id"}})

	db := &fakeDB{rows: map[string]types.Row{
		"customers/id=1": {"id": 1},
		"addresses/id=2": {"id": 2},
		"coupons/id=3":   {"id": 3},
	}}
	rows := types.RowSet{
		"orders": {{"id": 10, "customer_id": 1, "address_id": 2, "coupon_id": 3}},
	}

	done := make(chan int, 1)
	go func() {
		f := New(db, s, report.Discard(), 10, 1)
		done <- f.Close(context.Background(), rows)
	}()

	select {
	case fetched := <-done:
		if fetched != 3 {
			t.Fatalf("expected all three parents fetched, got %d", fetched)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; a worker blocked reporting its results")
	}

	for _, table := range []string{"customers", "addresses", "coupons"} {
		if len(rows[table]) != 1 {
			t.Errorf("expected one %s row appended, got %v", table, rows[table])
		}
	}
}

func TestNumericNormalization(t *testing.T) {
	// Captured JSON carries float64, the live DB returns int64.
	db := &fakeDB{rows: map[string]types.Row{}}
	rows := types.RowSet{
		"orders":    {{"id": 1, "shipment_id": float64(5)}},
		"shipments": {{"id": int64(5)}},
	}

	f := New(db, ordersSchema(), report.Discard(), 10, 2)
	if fetched := f.Close(context.Background(), rows); fetched != 0 {
		t.Errorf("expected float64(5) to match int64(5), got %d fetches", fetched)
	}
}
