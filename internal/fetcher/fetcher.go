// Package fetcher closes transitive foreign-key gaps: for every FK value on
// a collected row that no collected row of the referenced table satisfies,
// it fetches the missing parent row from the live database, breadth-first
// up to a depth cap.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dsandi/seed-it/internal/database"
	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/types"
)

type visitKey struct {
	Table  string
	Column string
	Value  string
}

type item struct {
	table string
	row   types.Row
	depth int
}

type Fetcher struct {
	db       database.RowFetcher
	schema   types.Schema
	rep      *report.Reporter
	maxDepth int
	workers  int

	mu      sync.Mutex
	visited map[visitKey]bool
}

func New(db database.RowFetcher, schema types.Schema, rep *report.Reporter, maxDepth, workers int) *Fetcher {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	if workers <= 0 {
		workers = 4
	}
	return &Fetcher{
		db:       db,
		schema:   schema,
		rep:      rep,
		maxDepth: maxDepth,
		workers:  workers,
		visited:  make(map[visitKey]bool),
	}
}

// Close runs the dependency closure over every currently collected row,
// appending fetched parents to rows in place. Fetch failures are logged and
// skipped; they never abort the run.
func (f *Fetcher) Close(ctx context.Context, rows types.RowSet) int {
	if f.db == nil {
		return 0
	}

	var queue []item
	for table, list := range rows {
		for _, row := range list {
			queue = append(queue, item{table: table, row: row, depth: 0})
		}
	}

	fetched := 0
	for len(queue) > 0 {
		wave := queue
		queue = nil

		results := f.processWave(ctx, wave, rows)
		for _, r := range results {
			rows[r.table] = append(rows[r.table], r.row)
			queue = append(queue, r)
			fetched++
		}
	}
	return fetched
}

// processWave resolves the missing FK parents of one BFS wave on a bounded
// worker pool. Appends to the row set happen on the caller's goroutine only,
// after the wave completes.
func (f *Fetcher) processWave(ctx context.Context, wave []item, rows types.RowSet) []item {
	jobs := make(chan item, len(wave))
	results := make(chan item)

	// Drain as the workers produce: a single row can yield one result per
	// foreign key, so no fixed buffer is safe against blocking a worker.
	var out []item
	drained := make(chan struct{})
	go func() {
		for r := range results {
			out = append(out, r)
		}
		close(drained)
	}()

	var wg sync.WaitGroup
	for w := 0; w < f.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				f.resolveRow(ctx, it, rows, results)
			}
		}()
	}

	for _, it := range wave {
		jobs <- it
	}
	close(jobs)
	wg.Wait()
	close(results)
	<-drained

	return out
}

func (f *Fetcher) resolveRow(ctx context.Context, it item, rows types.RowSet, results chan<- item) {
	tbl := f.schema.Table(it.table)
	if tbl == nil {
		return
	}

	for _, fk := range tbl.ForeignKeys {
		value, ok := it.row[fk.Column]
		if !ok || value == nil {
			continue
		}

		refTable := strings.ToLower(fk.RefTable)
		key := visitKey{Table: refTable, Column: strings.ToLower(fk.RefColumn), Value: normalize(value)}

		f.mu.Lock()
		if f.visited[key] {
			f.mu.Unlock()
			continue
		}
		f.visited[key] = true
		f.mu.Unlock()

		if rowPresent(rows[refTable], fk.RefColumn, value) {
			continue
		}

		if it.depth >= f.maxDepth {
			f.rep.Warnf("dependency depth limit reached at %s.%s = %v", refTable, fk.RefColumn, value)
			continue
		}

		parent, err := f.db.FetchOne(ctx, refTable, map[string]any{fk.RefColumn: value})
		if err != nil {
			f.rep.Warnf("dependency fetch for %s.%s = %v failed: %v", refTable, fk.RefColumn, value, err)
			continue
		}
		if parent == nil {
			f.rep.Warnf("referenced row %s.%s = %v not found", refTable, fk.RefColumn, value)
			continue
		}

		results <- item{table: refTable, row: parent, depth: it.depth + 1}
	}
}

// rowPresent reports whether any already-collected row of the table carries
// the referenced value.
func rowPresent(list []types.Row, column string, value any) bool {
	want := normalize(value)
	for _, row := range list {
		if v, ok := row[column]; ok && v != nil && normalize(v) == want {
			return true
		}
	}
	return false
}

// normalize folds numeric representation differences (JSON float64 vs
// driver int64) into one comparable form.
func normalize(v any) string {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	case float32:
		if n == float32(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
	}
	return fmt.Sprintf("%v", v)
}
