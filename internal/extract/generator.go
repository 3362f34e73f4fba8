package extract

import (
	"context"
	"fmt"

	"github.com/dsandi/seed-it/internal/capture"
	"github.com/dsandi/seed-it/internal/database"
	"github.com/dsandi/seed-it/internal/dedup"
	"github.com/dsandi/seed-it/internal/depgraph"
	"github.com/dsandi/seed-it/internal/fetcher"
	"github.com/dsandi/seed-it/internal/mapping"
	"github.com/dsandi/seed-it/internal/report"
	"github.com/dsandi/seed-it/internal/types"
)

type Options struct {
	CapturesPath  string
	OverridesPath string
	TableMapPath  string
	DatabaseURL   string
	Workers       int
	FetchDepth    int
}

// Result is the output contract handed to an emitter: deduplicated rows per
// table plus the insertion order and the constraint warnings (cycles) the
// loader needs.
type Result struct {
	Order           []string
	Rows            types.RowSet
	Schema          types.Schema
	Cycles          [][]string
	SelfReferencing []string
	QueryCount      int
	FetchedRows     int
	Warnings        []string
}

// Generate runs the whole pipeline: schema snapshot, captured queries,
// extraction, enrichment, dependency closure, dedup and ordering. Only
// failure to reach the database, read the schema or read the inputs is
// fatal; everything else degrades the output's completeness.
func Generate(ctx context.Context, opts Options, rep *report.Reporter) (*Result, error) {
	client, err := database.Connect(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer client.Close()

	rep.Stepf("📖 Reading live schema...")
	schema, err := client.LoadSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	rep.Successf("Found %d tables", len(schema))

	oidTables, err := client.TableOIDMap(ctx)
	if err != nil {
		rep.Warnf("could not read table OID map: %v", err)
		oidTables = nil
	}

	// A recorded map shipped with the captures takes precedence: the OIDs
	// in old captures may predate a dump/restore of the live database.
	recorded, err := capture.LoadTableMap(opts.TableMapPath)
	if err != nil {
		return nil, err
	}
	if len(recorded) > 0 {
		if oidTables == nil {
			oidTables = recorded
		} else {
			for oid, name := range recorded {
				oidTables[oid] = name
			}
		}
	}

	overrides, err := mapping.LoadOverrides(opts.OverridesPath)
	if err != nil {
		return nil, err
	}

	queries, err := capture.Load(opts.CapturesPath, rep)
	if err != nil {
		return nil, err
	}
	rep.Stepf("🔎 Extracting rows from %d captured queries...", len(queries))

	pipeline := NewPipeline(schema, client, overrides, oidTables, opts.Workers, rep)
	for _, q := range queries {
		pipeline.Process(q)
	}
	pipeline.Finalize(ctx)

	rep.Stepf("🔗 Closing foreign-key dependencies...")
	f := fetcher.New(client, schema, rep, opts.FetchDepth, opts.Workers)
	fetched := f.Close(ctx, pipeline.Rows())
	if fetched > 0 {
		rep.Successf("Fetched %d missing dependency rows", fetched)
	}

	rows := dedup.DeduplicateAll(pipeline.Rows(), schema)

	graph := depgraph.Build(schema)
	order := insertionOrder(graph, rows)
	cycles := graph.DetectCircularDependencies()
	for _, cycle := range cycles {
		rep.Warnf("circular foreign-key dependency: %v", cycle)
	}

	selfRef := depgraph.SelfReferencingTables(schema)
	for _, table := range selfRef {
		if list, ok := rows[table]; ok {
			rows[table] = depgraph.SortRows(schema.Table(table), list)
		}
	}

	return &Result{
		Order:           order,
		Rows:            rows,
		Schema:          schema,
		Cycles:          cycles,
		SelfReferencing: selfRef,
		QueryCount:      len(queries),
		FetchedRows:     fetched,
		Warnings:        rep.Warnings(),
	}, nil
}

// insertionOrder keeps only tables that actually have rows, in topological
// order.
func insertionOrder(graph *depgraph.Graph, rows types.RowSet) []string {
	var order []string
	for _, table := range graph.TopologicalSort() {
		if len(rows[table]) > 0 {
			order = append(order, table)
		}
	}
	return order
}
