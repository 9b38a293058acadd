package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.Store.Kind)
	assert.Equal(t, "https://ckan0.cf.opendata.inter.prod-toronto.ca", s.CKAN.BaseURL)
	assert.Equal(t, DefaultPackages, s.CKAN.Packages)
	assert.Equal(t, 2*time.Minute, s.CKAN.Timeout)
	assert.Equal(t, "data", s.Data.Dir)
	assert.Equal(t, 4326, s.Data.DefaultEPSG)
	assert.Equal(t, "none", s.Metrics.Backend)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "civic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  kind: postgresql
  dsn: postgresql://yaml@db/civic
ckan:
  packages: [lobbyist-registry]
data:
  dir: /srv/civic
  charset: windows-1252
`), 0o644))

	t.Setenv("CIVIC_DATA_DIR", "/tmp/override")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", s.Store.Kind)
	assert.Equal(t, "postgresql://yaml@db/civic", s.Store.DSN)
	assert.Equal(t, []string{"lobbyist-registry"}, s.CKAN.Packages)
	assert.Equal(t, "/tmp/override", s.Data.Dir)
	assert.Equal(t, "windows-1252", s.Data.Charset)
}

func TestLoad_PackagesFromEnv(t *testing.T) {
	t.Setenv("CIVIC_PACKAGES", "a,b")
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.CKAN.Packages)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CIVIC_STORE", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported store kind")

	t.Setenv("CIVIC_STORE", "sqlite")
	t.Setenv("CIVIC_METRICS", "statsd")
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported metrics backend")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStoreConfig_FlagsWin(t *testing.T) {
	s := Settings{Store: StoreSettings{Kind: "sqlite", DSN: "file:cfg.sqlite"}}

	cfg, err := s.StoreConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Kind)
	assert.Equal(t, "file:cfg.sqlite", cfg.DSN)

	cfg, err = s.StoreConfig("pg", "postgresql://flag@h/db")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Kind)
	assert.Equal(t, "postgresql://flag@h/db", cfg.DSN)
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		flag    string
		cfg     string
		env     map[string]string
		want    string
		wantErr bool
	}{
		{name: "flag_wins", kind: "sqlite", flag: "file:a.db", cfg: "file:b.db", want: "file:a.db"},
		{name: "config_over_components", kind: "postgres", cfg: "postgresql://cfg", env: map[string]string{"DSN_HOST": "h"}, want: "postgresql://cfg"},
		{name: "sqlite_default", kind: "sqlite", want: ""},
		{name: "sqlite_path", kind: "sqlite", env: map[string]string{"DSN_SQLITE": "x.sqlite"}, want: "file:x.sqlite"},
		{name: "sqlite_full_with_params", kind: "sqlite", env: map[string]string{"DSN_SQLITE": "file:x.db?mode=ro", "DSN_PARAMS": "_pragma=foreign_keys(1)"}, want: "file:x.db?mode=ro&_pragma=foreign_keys(1)"},
		{
			name: "postgres_components",
			kind: "postgres",
			env:  map[string]string{"DSN_HOST": "db", "DSN_USER": "civic", "DSN_PASSWORD": "p w", "DSN_DB": "civic"},
			want: "postgresql://civic:p%20w@db:5432/civic?sslmode=disable",
		},
		{
			name: "mssql_components",
			kind: "mssql",
			env:  map[string]string{"DSN_HOST": "sql", "DSN_USER": "sa", "DSN_PASSWORD": "pw", "DSN_DB": "civic", "DSN_PARAMS": "app+name=tabprof"},
			want: "sqlserver://sa:pw@sql:1433?app+name=tabprof&database=civic&encrypt=disable",
		},
		{name: "postgres_nothing", kind: "postgres", wantErr: true},
		{name: "mssql_nothing", kind: "mssql", wantErr: true},
		{name: "unknown_kind", kind: "oracle", env: map[string]string{"DSN_HOST": "x"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolveDSN(tt.kind, tt.flag, tt.cfg, envMap(tt.env))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
