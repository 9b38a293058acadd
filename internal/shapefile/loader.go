// Package shapefile loads ESRI shapefiles into a relational store, one table
// per .shp file, with geometry kept as WKT text.
package shapefile

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"

	"civicdata/internal/logging"
	"civicdata/internal/metrics"
	"civicdata/internal/storage"
)

const (
	// GeometryColumn holds each feature's WKT.
	GeometryColumn = "geometry"
	// MetaTable records table, geometry column, SRID and geometry type
	// for every loaded layer.
	MetaTable = "geometry_columns_meta"
)

// Options controls decoding of layers that carry no sidecar metadata.
type Options struct {
	// Charset is used when a layer has no .cpg file.
	Charset string
	// DefaultEPSG is used when a layer has no usable .prj file.
	DefaultEPSG int
}

// Layer describes one loaded table.
type Layer struct {
	Table        string           `json:"table"`
	Source       string           `json:"source"`
	Rows         int64            `json:"rows"`
	SRID         int              `json:"srid"`
	GeometryType string           `json:"geometry_type"`
	Columns      []storage.Column `json:"columns"`
}

// Loader writes shapefiles into a store, replacing existing tables of the
// same name.
type Loader struct {
	store *storage.Store
	opts  Options
	log   *zap.Logger
}

func NewLoader(s *storage.Store, opts Options, log *zap.Logger) *Loader {
	if opts.DefaultEPSG <= 0 {
		opts.DefaultEPSG = 4326
	}
	return &Loader{store: s, opts: opts, log: logging.OrNop(log)}
}

// FindShapefiles returns every .shp under dir, sorted.
func FindShapefiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// LoadDir loads every shapefile under dir. It stops at the first failing
// layer and returns the layers loaded so far.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]Layer, error) {
	paths, err := FindShapefiles(dir)
	if err != nil {
		return nil, err
	}
	var layers []Layer
	for _, p := range paths {
		layer, err := l.LoadFile(ctx, p)
		if err != nil {
			return layers, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// LoadFile loads one shapefile into a table named after the file.
func (l *Loader) LoadFile(ctx context.Context, path string) (layer Layer, err error) {
	started := time.Now()
	defer func() { metrics.RecordOp("load_shapefile", started, err) }()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	layer = Layer{Table: TableName(base), Source: path}

	charset := l.opts.Charset
	if cpg, err := readCPG(stem + ".cpg"); err != nil {
		return layer, err
	} else if cpg != "" {
		charset = cpg
	}
	enc, err := lookupCharset(charset)
	if err != nil {
		return layer, fmt.Errorf("%s: %w", path, err)
	}
	if layer.SRID, err = epsgFromPRJ(stem+".prj", l.opts.DefaultEPSG); err != nil {
		return layer, err
	}

	r, err := shp.Open(path)
	if err != nil {
		return layer, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	layer.GeometryType = GeometryName(r.GeometryType)
	fields := r.Fields()
	attrs := attributeColumns(fields)
	layer.Columns = l.columnDefs(fields, attrs)

	n, err := l.write(ctx, layer, r, fields, newDecoder(enc))
	if err != nil {
		return layer, err
	}
	layer.Rows = n
	metrics.RecordRows("loaded", layer.Table, n)
	l.log.Info("layer loaded",
		zap.String("table", layer.Table),
		zap.String("source", path),
		zap.Int64("rows", n),
		zap.Int("srid", layer.SRID),
		zap.String("geometry_type", layer.GeometryType))
	return layer, nil
}

// TableName lowercases a file stem and replaces characters that would
// need quoting.
func TableName(stem string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "layer"
	}
	return b.String()
}

// attributeColumns names the DBF fields, making them unique
// case-insensitively and keeping clear of the geometry column.
func attributeColumns(fields []shp.Field) []string {
	seen := map[string]bool{GeometryColumn: true}
	out := make([]string, len(fields))
	for i, f := range fields {
		name := strings.Trim(f.String(), " \x00")
		if name == "" {
			name = "field_" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; seen[strings.ToLower(candidate)]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[strings.ToLower(candidate)] = true
		out[i] = candidate
	}
	return out
}

// fieldKind maps DBF field types: integral numerics become integers,
// other numerics reals, and everything else text.
func fieldKind(f shp.Field) storage.ValueKind {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 && f.Size <= 18 {
			return storage.KindInteger
		}
		return storage.KindReal
	case 'F', 'O':
		return storage.KindReal
	case 'I', '+':
		return storage.KindInteger
	default:
		return storage.KindText
	}
}

func (l *Loader) columnDefs(fields []shp.Field, names []string) []storage.Column {
	d := l.store.Dialect()
	cols := make([]storage.Column, 0, len(fields)+1)
	for i, f := range fields {
		cols = append(cols, storage.Column{Name: names[i], Type: d.ColumnType(fieldKind(f))})
	}
	return append(cols, storage.Column{Name: GeometryColumn, Type: d.ColumnType(storage.KindText)})
}

func (l *Loader) write(ctx context.Context, layer Layer, r *shp.Reader, fields []shp.Field, dec decoder) (n int64, err error) {
	d := l.store.Dialect()
	tx, err := l.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+d.QuoteTable(layer.Table)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", layer.Table, err)
	}
	if _, err = tx.ExecContext(ctx, storage.CreateTableSQL(d, layer.Table, layer.Columns)); err != nil {
		return 0, fmt.Errorf("create %s: %w", layer.Table, err)
	}

	names := make([]string, len(layer.Columns))
	for i, c := range layer.Columns {
		names[i] = c.Name
	}
	stmt, err := tx.PrepareContext(ctx, storage.InsertSQL(d, layer.Table, names))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	args := make([]any, len(layer.Columns))
	for r.Next() {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		row, shape := r.Shape()
		for i, f := range fields {
			args[i] = attributeValue(f, dec.String(r.ReadAttribute(row, i)))
		}
		if wkt, ok := WKT(shape); ok {
			args[len(fields)] = wkt
		} else {
			args[len(fields)] = nil
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("insert %s row %d: %w", layer.Table, row, err)
		}
		n++
	}
	if err = r.Err(); err != nil {
		return n, fmt.Errorf("read %s: %w", layer.Source, err)
	}

	if err = writeMeta(ctx, tx, d, layer); err != nil {
		return n, err
	}
	return n, tx.Commit()
}

// attributeValue converts a decoded DBF value. Blank and overflow ("***")
// numerics become NULL.
func attributeValue(f shp.Field, s string) any {
	switch fieldKind(f) {
	case storage.KindInteger:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(v)
		}
		return nil
	case storage.KindReal:
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return nil
	default:
		if s == "" {
			return nil
		}
		return s
	}
}
