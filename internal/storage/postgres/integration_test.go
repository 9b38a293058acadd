//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"civicdata/internal/storage"
)

// startPostgres runs a throwaway PostgreSQL container and returns a DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "civic",
			"POSTGRES_USER":     "civic",
			"POSTGRES_PASSWORD": "civic",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgresql://civic:civic@%s:%s/civic?sslmode=disable", host, port.Port())
}

func TestIntegration_DescribeAndRebuild(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(ctx, storage.Config{Kind: "postgresql", DSN: startPostgres(t)})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DB().ExecContext(ctx, `CREATE TABLE parcels (id integer, f_type varchar(20), area double precision)`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `INSERT INTO parcels VALUES (1, 'COMMON', 1.5), (2, 'COMMON', 2.5)`)
	require.NoError(t, err)

	d := s.Dialect()
	cols, err := d.DescribeTable(ctx, s.DB(), "parcels")
	require.NoError(t, err)
	assert.Equal(t, []storage.Column{
		{Name: "id", Type: "integer"},
		{Name: "f_type", Type: "character varying(20)"},
		{Name: "area", Type: "double precision"},
	}, cols)

	_, err = d.DescribeTable(ctx, s.DB(), "public.nope")
	assert.ErrorIs(t, err, storage.ErrNoSuchTable)

	tx, err := s.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	for _, stmt := range d.RebuildTable("parcels", "parcels__tmp", []storage.Column{cols[0], cols[2]}) {
		_, err := tx.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, tx.Commit())

	cols, err = d.DescribeTable(ctx, s.DB(), "parcels")
	require.NoError(t, err)
	assert.Equal(t, []storage.Column{{Name: "id", Type: "integer"}, {Name: "area", Type: "double precision"}}, cols)

	tables, err := d.ListTables(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"parcels"}, tables)
}
