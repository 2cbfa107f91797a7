package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accordsai/negotiation/pkg/config"
	"github.com/accordsai/negotiation/pkg/db"
)

func TestPostgresLive(t *testing.T) {
	if os.Getenv("NEG_INTEGRATION") != "1" {
		t.Skip("set NEG_INTEGRATION=1 to run live integration")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("set DATABASE_URL to run the postgres store against a live database")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn, config.Default().Store.Pool)
	require.NoError(t, err)
	s := NewPostgres(pool)
	defer s.Close()
	require.NoError(t, s.EnsureSchema(ctx))

	_, err = pool.Exec(ctx, `DELETE FROM negotiation_private_values WHERE negotiation_id LIKE 'neg-%'`)
	require.NoError(t, err)
	runSuite(t, s)
}
