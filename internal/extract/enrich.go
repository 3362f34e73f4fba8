package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/dsandi/seed-it/internal/types"
)

type enrichJob struct {
	table string
	index int
}

// enrichAll fetches the missing columns of every fragment from the live
// database, one SELECT ... LIMIT 1 per fragment, fanned out over a bounded
// worker pool. Each job owns exactly one fragment, so no locking is needed
// around the merge.
func (p *Pipeline) enrichAll(ctx context.Context) {
	if p.db == nil {
		return
	}

	var jobs []enrichJob
	for table, list := range p.rows {
		if p.schema.Table(table) == nil {
			continue
		}
		for i := range list {
			jobs = append(jobs, enrichJob{table: table, index: i})
		}
	}
	if len(jobs) == 0 {
		return
	}

	jobChan := make(chan enrichJob, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				p.enrichFragment(ctx, job)
			}
		}()
	}
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)
	wg.Wait()
}

func (p *Pipeline) enrichFragment(ctx context.Context, job enrichJob) {
	tbl := p.schema.Table(job.table)
	frag := p.rows[job.table][job.index]

	keys, heuristic := enrichmentKeys(tbl, frag)
	if len(keys) == 0 {
		return
	}
	if heuristic {
		p.rep.Debugf("enriching %s fragment by best-effort column match %v", job.table, keyNames(keys))
	}

	fetched, err := p.db.FetchOne(ctx, job.table, keys)
	if err != nil {
		p.rep.Warnf("enrichment lookup on %s failed: %v", job.table, err)
		return
	}
	if fetched == nil {
		p.rep.Warnf("no %s row matched %v; keeping partial fragment", job.table, keyNames(keys))
		return
	}

	// Fill only what the fragment lacks; its own values always win.
	for col, val := range fetched {
		if existing, ok := frag[col]; !ok || existing == nil {
			frag[col] = val
		}
	}
}

// enrichmentKeys picks the lookup key for a fragment, in order of
// preference: full primary key, first fully-present unique index, then a
// best-effort match over every non-null schema column the fragment already
// has. The last is a heuristic and is flagged as such.
func enrichmentKeys(tbl *types.SchemaTable, frag types.Row) (map[string]any, bool) {
	if keys := columnValues(frag, tbl.PrimaryKey); keys != nil {
		return keys, false
	}
	for _, idx := range tbl.UniqueIndexes {
		if keys := columnValues(frag, idx.Columns); keys != nil {
			return keys, false
		}
	}

	keys := make(map[string]any)
	for _, col := range tbl.Columns {
		if v := fragValue(frag, col.Name); v != nil {
			keys[col.Name] = v
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	return keys, true
}

// columnValues returns the fragment's values for the given columns, or nil
// unless every one is present and non-null.
func columnValues(frag types.Row, cols []string) map[string]any {
	if len(cols) == 0 {
		return nil
	}
	keys := make(map[string]any, len(cols))
	for _, col := range cols {
		v := fragValue(frag, col)
		if v == nil {
			return nil
		}
		keys[col] = v
	}
	return keys
}

func fragValue(frag types.Row, column string) any {
	if v, ok := frag[column]; ok {
		return v
	}
	lower := strings.ToLower(column)
	for k, v := range frag {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return nil
}

func keyNames(keys map[string]any) []string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	return names
}
