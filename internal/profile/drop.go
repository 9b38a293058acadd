package profile

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"civicdata/internal/storage"
)

// DropColumns removes columns from table by rebuilding it: the retained
// columns are copied into a new table which then replaces the original.
//
// All names are checked first; an absent one yields *ColumnNotFoundError
// and no statement is run. Removing every column yields ErrNoColumnsLeft.
// The rebuild runs in one transaction, so any failure leaves the original
// table as it was. Indexes and constraints are not carried over.
// An empty columns list is a no-op.
func (p *Profiler) DropColumns(ctx context.Context, table string, columns []string) (err error) {
	defer p.track("drop_columns", time.Now(), &err)

	if len(columns) == 0 {
		return nil
	}

	tx, err := p.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cols, err := p.describe(ctx, tx, table)
	if err != nil {
		return err
	}
	keep, dropped, err := partitionColumns(table, cols, columns)
	if err != nil {
		return err
	}

	// The rebuilt table takes the stored name, not the spelling given.
	stored, err := p.store.Dialect().StoredName(ctx, tx, table)
	if errors.Is(err, storage.ErrNoSuchTable) {
		return &NotFoundError{Table: table}
	}
	if err != nil {
		return storeErr("lookup "+table, err)
	}

	tmp := p.rebuildName(stored)
	for _, stmt := range p.store.Dialect().RebuildTable(stored, tmp, keep) {
		if err = exec(ctx, tx, stmt); err != nil {
			return storeErr("rebuild "+stored, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return storeErr("commit", err)
	}

	p.log.Info("dropped columns",
		zap.String("table", stored),
		zap.Strings("dropped", dropped),
		zap.Int("kept", len(keep)),
	)
	return nil
}

// ColumnsWithout returns table's columns minus drop, checked the way
// DropColumns checks them. The table is not modified.
func (p *Profiler) ColumnsWithout(ctx context.Context, table string, drop []string) (keep []storage.Column, err error) {
	defer p.track("columns_without", time.Now(), &err)

	cols, err := p.describe(ctx, p.store.DB(), table)
	if err != nil {
		return nil, err
	}
	keep, _, err = partitionColumns(table, cols, drop)
	return keep, err
}

// partitionColumns splits cols into retained and dropped (schema names),
// failing on the first requested name that does not resolve.
func partitionColumns(table string, cols []storage.Column, drop []string) (keep []storage.Column, dropped []string, err error) {
	gone := make(map[string]bool, len(drop))
	for _, name := range drop {
		c, err := resolveColumn(table, cols, name)
		if err != nil {
			return nil, nil, err
		}
		if !gone[c.Name] {
			gone[c.Name] = true
			dropped = append(dropped, c.Name)
		}
	}
	for _, c := range cols {
		if !gone[c.Name] {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return nil, nil, ErrNoColumnsLeft
	}
	return keep, dropped, nil
}

// rebuildName returns the intermediate table name, in the same schema as
// table.
func (p *Profiler) rebuildName(table string) string {
	schema, bare := storage.SplitQualified(table)
	name := bare + "__rebuild_" + p.tmpTag()
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func exec(ctx context.Context, tx *sql.Tx, stmt string) error {
	_, err := tx.ExecContext(ctx, stmt)
	return err
}
