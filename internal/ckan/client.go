// Package ckan talks to a CKAN open-data catalog: package metadata via the
// action API and plain downloads of resource files.
package ckan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"civicdata/internal/logging"
	"civicdata/internal/metrics"
)

const userAgent = "civicdata-ingest/1.0"

// Package is the subset of a CKAN package the tools use.
type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	Resources []Resource `json:"resources"`
}

// Resource is one downloadable file of a package.
type Resource struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Format          string `json:"format"`
	URL             string `json:"url"`
	DatastoreActive bool   `json:"datastore_active"`
}

// FileName is "<name>.<format>" with the format lowercased. Resources
// served as .zip keep a .zip extension whatever their declared format
// (catalogs list zipped shapefiles as "SHP"). Path separators in the name
// are replaced so the result is a single path element.
func (r Resource) FileName() string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = r.ID
	}
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	ext := strings.ToLower(strings.TrimSpace(r.Format))
	if strings.HasSuffix(strings.ToLower(r.URL), ".zip") {
		ext = "zip"
	}
	if ext != "" {
		return name + "." + ext
	}
	return name
}

// IsZip reports whether the resource is declared as a zip archive.
func (r Resource) IsZip() bool {
	return strings.EqualFold(r.Format, "zip") || strings.HasSuffix(strings.ToLower(r.URL), ".zip")
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a CKAN action API client.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

// NewClient returns a client for the catalog at baseURL. If hc is nil a
// client with the given timeout is used.
func NewClient(baseURL string, hc *http.Client, timeout time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ckan: invalid base url %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, http: hc, log: logging.OrNop(log)}, nil
}

// PackageShow calls package_show for id. It returns the decoded package and
// the raw response body, which callers persist as-is.
func (c *Client) PackageShow(ctx context.Context, id string) (*Package, []byte, error) {
	u := *c.base
	u.Path += "/api/3/action/package_show"
	u.RawQuery = url.Values{"id": {id}}.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, nil, fmt.Errorf("package_show %s: %w", id, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("package_show %s: decode: %w", id, err)
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, nil, fmt.Errorf("package_show %s: %s", id, msg)
	}

	var pkg Package
	if err := json.Unmarshal(env.Result, &pkg); err != nil {
		return nil, nil, fmt.Errorf("package_show %s: decode result: %w", id, err)
	}
	c.log.Info("package metadata", zap.String("package", id), zap.Int("resources", len(pkg.Resources)))
	return &pkg, body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	start := time.Now()
	b, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(start), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

// do issues a GET and returns the response for 2xx statuses. Other
// statuses become errors carrying up to 4KB of the body.
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start), 0)
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start), int64(len(body)))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Download streams rawURL into dst. The file is written under a temporary
// name and renamed on success, so dst is never left half-written.
func (c *Client) Download(ctx context.Context, rawURL, dst string) (int64, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	start := time.Now()
	n, err := io.Copy(tmp, resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(start), n)
	if err != nil {
		_ = tmp.Close()
		return n, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return n, err
	}
	c.log.Debug("downloaded", zap.String("url", rawURL), zap.String("file", dst), zap.Int64("bytes", n))
	return n, nil
}
