package shapefile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civicdata/internal/storage"
)

var metaColumns = []string{"table_name", "column_name", "srid", "geometry_type"}

// writeMeta replaces the layer's row in MetaTable, creating the table on
// first use.
func writeMeta(ctx context.Context, tx *sql.Tx, d storage.Dialect, layer Layer) error {
	_, err := d.DescribeTable(ctx, tx, MetaTable)
	switch {
	case errors.Is(err, storage.ErrNoSuchTable):
		cols := []storage.Column{
			{Name: "table_name", Type: d.ColumnType(storage.KindText)},
			{Name: "column_name", Type: d.ColumnType(storage.KindText)},
			{Name: "srid", Type: d.ColumnType(storage.KindInteger)},
			{Name: "geometry_type", Type: d.ColumnType(storage.KindText)},
		}
		if _, err := tx.ExecContext(ctx, storage.CreateTableSQL(d, MetaTable, cols)); err != nil {
			return fmt.Errorf("create %s: %w", MetaTable, err)
		}
	case err != nil:
		return err
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.QuoteTable(MetaTable), d.QuoteIdent("table_name"), d.Placeholder(1))
	if _, err := tx.ExecContext(ctx, del, layer.Table); err != nil {
		return fmt.Errorf("clear %s: %w", MetaTable, err)
	}
	if _, err := tx.ExecContext(ctx, storage.InsertSQL(d, MetaTable, metaColumns),
		layer.Table, GeometryColumn, int64(layer.SRID), layer.GeometryType); err != nil {
		return fmt.Errorf("record %s: %w", MetaTable, err)
	}
	return nil
}
