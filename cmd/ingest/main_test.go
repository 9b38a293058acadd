package main

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"civicdata/internal/cli"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// shapefileZip builds a zipped point layer "Bike_Racks" with NAME and
// CAPACITY attributes.
func shapefileZip(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	w, err := shp.Create(filepath.Join(dir, "Bike_Racks.shp"), shp.POINT)
	require.NoError(t, err)
	w.SetFields([]shp.Field{shp.StringField("NAME", 20), shp.NumberField("CAPACITY", 5)})
	for i, name := range []string{"Union", "Spadina", "Bloor"} {
		w.Write(&shp.Point{X: -79.4 + float64(i)/10, Y: 43.6})
		w.WriteAttribute(i, 0, name)
		w.WriteAttribute(i, 1, (i+1)*4)
	}
	w.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		b, err := os.ReadFile(filepath.Join(dir, "Bike_Racks"+ext))
		require.NoError(t, err)
		fw, err := zw.Create("Bike_Racks" + ext)
		require.NoError(t, err)
		_, err = fw.Write(b)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func catalog(t *testing.T) *httptest.Server {
	t.Helper()
	archive := shapefileZip(t)
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/3/action/package_show", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "bicycle-parking" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"success":false}`)
			return
		}
		fmt.Fprintf(w, `{"success":true,"result":{"id":"p1","name":"bicycle-parking","notes":"<p>Racks</p>",
			"resources":[{"id":"r1","name":"bike racks","format":"SHP","url":"%s/files/racks.zip"}]}}`, srv.URL)
	})
	mux.HandleFunc("/files/racks.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, ckanURL string) (dataDir string) {
	t.Helper()
	t.Chdir(t.TempDir())
	dataDir = t.TempDir()
	t.Setenv("CIVIC_CKAN_URL", ckanURL)
	t.Setenv("CIVIC_PACKAGES", "bicycle-parking")
	t.Setenv("CIVIC_DATA_DIR", dataDir)
	t.Setenv("CIVIC_STORE", "sqlite")
	t.Setenv("CIVIC_DSN", filepath.Join(t.TempDir(), "civic.db"))
	t.Setenv("CIVIC_METRICS", "none")
	t.Setenv("CIVIC_LOG_LEVEL", "error")
	return dataDir
}

func runCmd(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, deps{Stdout: &out, Stderr: &errOut})
	return code, out.String(), errOut.String()
}

func TestFetchLoadExportConvert(t *testing.T) {
	srv := catalog(t)
	dataDir := setEnv(t, srv.URL)
	pkgDir := filepath.Join(dataDir, "bicycle-parking")

	// Resource format is SHP, so the archive is recognised by its URL.
	code, out, errOut := runCmd(t, "fetch")
	require.Equal(t, cli.ExitOK, code, errOut)
	assert.Contains(t, out, "bicycle-parking")
	assert.FileExists(t, filepath.Join(pkgDir, "package.json"))
	assert.FileExists(t, filepath.Join(pkgDir, "notes.txt"))
	assert.FileExists(t, filepath.Join(pkgDir, "Bike_Racks.dbf"))

	code, out, errOut = runCmd(t, "load", "--format", "json")
	require.Equal(t, cli.ExitOK, code, errOut)
	assert.Contains(t, out, `"table": "bike_racks"`)
	assert.Contains(t, out, `"rows": 3`)
	assert.Contains(t, out, `"srid": 4326`)

	csvPath := filepath.Join(t.TempDir(), "test.csv")
	code, out, errOut = runCmd(t, "export", "bike_racks", csvPath, "--drop", "geometry")
	require.Equal(t, cli.ExitOK, code, errOut)
	assert.Equal(t, fmt.Sprintf("wrote 3 rows to %s\n", csvPath), out)
	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "NAME,CAPACITY\nUnion,4\nSpadina,8\nBloor,12\n", string(b))

	xlsxPath := filepath.Join(t.TempDir(), "test.xlsx")
	code, out, errOut = runCmd(t, "convert", csvPath, xlsxPath)
	require.Equal(t, cli.ExitOK, code, errOut)
	assert.Equal(t, fmt.Sprintf("wrote 4 rows to %s\n", xlsxPath), out)

	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, []string{"NAME", "CAPACITY"}, rows[0])
	assert.Equal(t, []string{"Bloor", "12"}, rows[3])
}

func TestErrors(t *testing.T) {
	srv := catalog(t)
	setEnv(t, srv.URL)

	code, _, errOut := runCmd(t, "fetch", "no-such-package")
	assert.Equal(t, cli.ExitError, code)
	assert.Contains(t, errOut, "error: fetch no-such-package")

	code, _, errOut = runCmd(t, "load", "bicycle-parking")
	assert.Equal(t, cli.ExitError, code)
	assert.Contains(t, errOut, "run fetch first")

	out := filepath.Join(t.TempDir(), "missing.csv")
	code, _, _ = runCmd(t, "export", "missing", out)
	assert.Equal(t, cli.ExitNotFound, code)
	assert.NoFileExists(t, out)

	code, _, _ = runCmd(t, "convert", "a.csv")
	assert.Equal(t, cli.ExitUsage, code)

	code, _, _ = runCmd(t, "convert", "a.csv", "b.xlsx", "--comma", ";;")
	assert.Equal(t, cli.ExitUsage, code)
}
