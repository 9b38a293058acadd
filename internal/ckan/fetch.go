package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"civicdata/internal/archive"
	"civicdata/internal/logging"
	"civicdata/internal/metrics"
)

// FetchResult lists what Fetch wrote for one package.
type FetchResult struct {
	Package    string   `json:"package" yaml:"package"`
	Dir        string   `json:"dir" yaml:"dir"`
	Downloaded []string `json:"downloaded" yaml:"downloaded"`
	Extracted  []string `json:"extracted" yaml:"extracted"`
}

// Fetcher downloads whole packages into DataDir/<package-id>/.
type Fetcher struct {
	client  *Client
	dataDir string
	log     *zap.Logger
}

// NewFetcher returns a Fetcher writing below dataDir.
func NewFetcher(c *Client, dataDir string, log *zap.Logger) *Fetcher {
	return &Fetcher{client: c, dataDir: dataDir, log: logging.OrNop(log)}
}

// Fetch saves the package_show response as package.json, the notes as
// notes.txt, downloads every resource as "<name>.<format>" and unpacks zip
// resources next to them. Resources are fetched one after another.
func (f *Fetcher) Fetch(ctx context.Context, id string) (res *FetchResult, err error) {
	defer func(start time.Time) { metrics.RecordOp("fetch", start, err) }(time.Now())

	dir := filepath.Join(f.dataDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	pkg, raw, err := f.client.PackageShow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := writePretty(filepath.Join(dir, "package.json"), raw); err != nil {
		return nil, err
	}
	if notes, err := NotesText(pkg.Notes); err == nil && notes != "" {
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(notes+"\n"), 0o644); err != nil {
			return nil, err
		}
	}

	res = &FetchResult{Package: id, Dir: dir, Downloaded: []string{}, Extracted: []string{}}
	for _, r := range pkg.Resources {
		if r.URL == "" {
			f.log.Warn("resource without url", zap.String("package", id), zap.String("resource", r.Name))
			continue
		}
		dst := filepath.Join(dir, r.FileName())
		n, err := f.client.Download(ctx, r.URL, dst)
		if err != nil {
			return res, fmt.Errorf("resource %q: %w", r.Name, err)
		}
		res.Downloaded = append(res.Downloaded, dst)
		f.log.Info("resource saved", zap.String("file", dst), zap.Int64("bytes", n))

		// Office formats are zip containers too, so only sniff when the
		// catalog gives no format.
		isZip := r.IsZip()
		if !isZip && r.Format == "" {
			if isZip, err = archive.IsZip(dst); err != nil {
				return res, err
			}
		}
		if !isZip {
			continue
		}
		files, err := archive.Extract(dst, dir)
		if err != nil {
			return res, fmt.Errorf("resource %q: %w", r.Name, err)
		}
		res.Extracted = append(res.Extracted, files...)
		f.log.Info("archive extracted", zap.String("file", dst), zap.Int("entries", len(files)))
	}
	return res, nil
}

func writePretty(path string, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
