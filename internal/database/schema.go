package database

import (
	"context"
	"fmt"

	"github.com/dsandi/seed-it/internal/types"
)

// LoadSchema reads the full live-schema snapshot: columns, primary keys,
// foreign keys and unique indexes for every base table in the public
// schema. Failure here is fatal to a generation run.
func (c *Client) LoadSchema(ctx context.Context) (types.Schema, error) {
	schema := types.Schema{}

	if err := c.loadColumns(ctx, schema); err != nil {
		return nil, err
	}
	if err := c.loadPrimaryKeys(ctx, schema); err != nil {
		return nil, err
	}
	if err := c.loadForeignKeys(ctx, schema); err != nil {
		return nil, err
	}
	if err := c.loadUniqueIndexes(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (c *Client) loadColumns(ctx context.Context, schema types.Schema) error {
	query := `
		SELECT c.table_name, c.column_name, c.udt_name, c.is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_name = c.table_name AND t.table_schema = c.table_schema
		WHERE c.table_schema = 'public'
		  AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read table columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, udtName, isNullable string
		if err := rows.Scan(&tableName, &columnName, &udtName, &isNullable); err != nil {
			return fmt.Errorf("failed to scan column row: %w", err)
		}

		tbl := schema.Table(tableName)
		if tbl == nil {
			tbl = &types.SchemaTable{Name: tableName}
			schema.Add(tbl)
		}
		tbl.Columns = append(tbl.Columns, types.SchemaColumn{
			Name:     columnName,
			Type:     udtName,
			Nullable: isNullable == "YES",
		})
	}
	return rows.Err()
}

func (c *Client) loadPrimaryKeys(ctx context.Context, schema types.Schema) error {
	query := `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.ordinal_position
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return fmt.Errorf("failed to scan primary key row: %w", err)
		}
		if tbl := schema.Table(tableName); tbl != nil {
			tbl.PrimaryKey = append(tbl.PrimaryKey, columnName)
		}
	}
	return rows.Err()
}

func (c *Client) loadForeignKeys(ctx context.Context, schema types.Schema) error {
	// Pairs conkey/confkey positionally so composite FKs come back as
	// individual column references.
	query := `
		SELECT cl.relname      AS table_name,
		       att.attname     AS column_name,
		       refcl.relname   AS ref_table,
		       refatt.attname  AS ref_column
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class cl ON cl.oid = con.conrelid
		JOIN pg_catalog.pg_class refcl ON refcl.oid = con.confrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = cl.relnamespace
		JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN unnest(con.confkey) WITH ORDINALITY AS fk(attnum, ord) ON fk.ord = k.ord
		JOIN pg_catalog.pg_attribute att
		  ON att.attrelid = con.conrelid AND att.attnum = k.attnum
		JOIN pg_catalog.pg_attribute refatt
		  ON refatt.attrelid = con.confrelid AND refatt.attnum = fk.attnum
		WHERE con.contype = 'f'
		  AND n.nspname = 'public'
		ORDER BY cl.relname, att.attname
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, columnName, refTable, refColumn string
		if err := rows.Scan(&tableName, &columnName, &refTable, &refColumn); err != nil {
			return fmt.Errorf("failed to scan foreign key row: %w", err)
		}
		if tbl := schema.Table(tableName); tbl != nil {
			tbl.ForeignKeys = append(tbl.ForeignKeys, types.ForeignKey{
				Column:    columnName,
				RefTable:  refTable,
				RefColumn: refColumn,
			})
		}
	}
	return rows.Err()
}

func (c *Client) loadUniqueIndexes(ctx context.Context, schema types.Schema) error {
	query := `
		SELECT t.relname AS table_name,
		       ix.relname AS index_name,
		       a.attname  AS column_name
		FROM pg_catalog.pg_index x
		JOIN pg_catalog.pg_class t ON t.oid = x.indrelid
		JOIN pg_catalog.pg_class ix ON ix.oid = x.indexrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_catalog.pg_attribute a
		  ON a.attrelid = t.oid AND a.attnum = ANY (x.indkey)
		WHERE x.indisunique
		  AND NOT x.indisprimary
		  AND n.nspname = 'public'
		ORDER BY t.relname, ix.relname, a.attnum
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read unique indexes: %w", err)
	}
	defer rows.Close()

	type indexKey struct{ table, index string }
	seen := make(map[indexKey]int)

	for rows.Next() {
		var tableName, indexName, columnName string
		if err := rows.Scan(&tableName, &indexName, &columnName); err != nil {
			return fmt.Errorf("failed to scan unique index row: %w", err)
		}
		tbl := schema.Table(tableName)
		if tbl == nil {
			continue
		}

		key := indexKey{tableName, indexName}
		if i, ok := seen[key]; ok {
			tbl.UniqueIndexes[i].Columns = append(tbl.UniqueIndexes[i].Columns, columnName)
			continue
		}
		seen[key] = len(tbl.UniqueIndexes)
		tbl.UniqueIndexes = append(tbl.UniqueIndexes, types.UniqueIndex{
			Name:    indexName,
			Columns: []string{columnName},
		})
	}
	return rows.Err()
}

// TableOIDMap builds the relation-OID→name map used to shortcut source
// table attribution for plain output columns.
func (c *Client) TableOIDMap(ctx context.Context) (map[uint32]string, error) {
	query := `
		SELECT cl.oid, cl.relname
		FROM pg_catalog.pg_class cl
		JOIN pg_catalog.pg_namespace n ON n.oid = cl.relnamespace
		WHERE cl.relkind = 'r' AND n.nspname = 'public'
	`
	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read table OIDs: %w", err)
	}
	defer rows.Close()

	out := make(map[uint32]string)
	for rows.Next() {
		var oid uint32
		var name string
		if err := rows.Scan(&oid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan table OID row: %w", err)
		}
		out[oid] = name
	}
	return out, rows.Err()
}
