package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"civicdata/internal/logging"
	"civicdata/internal/metrics"
	"civicdata/internal/parser/csv"
)

// SheetName is the worksheet the converted rows land on.
const SheetName = "Sheet1"

// CSVToXLSX copies every CSV record of in onto SheetName of a new workbook
// saved at out. Fields are written as strings, one record per row, in file
// order. It returns the number of rows written, header included.
func CSVToXLSX(ctx context.Context, in io.Reader, out string, opt csv.Options, log *zap.Logger) (n int64, err error) {
	started := time.Now()
	defer func() { metrics.RecordOp("convert_xlsx", started, err) }()
	log = logging.OrNop(log)

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan csv.Record, 64)
	parseErr := make(chan error, 1)
	go func() {
		defer close(records)
		parseErr <- csv.StreamRecords(ctx, in, opt, records, nil)
	}()

	for rec := range records {
		row := make([]any, len(rec.Fields))
		for i, v := range rec.Fields {
			row[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, int(n)+1)
		if err != nil {
			cancel()
			drain(records)
			return n, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			cancel()
			drain(records)
			return n, fmt.Errorf("write row %d: %w", rec.Line, err)
		}
		n++
	}
	if err := <-parseErr; err != nil {
		return n, err
	}

	if err := sw.Flush(); err != nil {
		return n, err
	}
	if err := f.SaveAs(out); err != nil {
		return n, fmt.Errorf("save %s: %w", out, err)
	}
	log.Info("converted csv", zap.String("out", out), zap.Int64("rows", n))
	return n, nil
}

func drain(ch <-chan csv.Record) {
	for range ch {
	}
}
