package testutil

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/storefront/internal/db"
)

const postgresImage = "postgres:17-alpine"

// Free tcp port on loopback, used for the storefront listener and the postgres container
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

// Postgres with the order ledger schema already migrated
type PostgresContainer struct {
	DSN       string
	Pool      *pgxpool.Pool
	Terminate func()
}

func requireDocker(t *testing.T) {
	t.Helper()

	out, err := exec.Command("docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput()
	if err != nil {
		t.Fatalf("order ledger tests need a running docker daemon: %s", out)
	}
}

// StartPostgresContainer runs the ledger database for a test package.
// Callers own Terminate, usually through t.Cleanup.
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()
	requireDocker(t)

	port, err := RandomPort()
	require.NoError(t, err, "no free port for postgres")

	container, err := postgres.Run(t.Context(),
		postgresImage,
		postgres.WithDatabase("storefront-test"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
			req.ExposedPorts = []string{fmt.Sprintf("%d:5432", port)}
			return nil
		}),
	)
	require.NoError(t, err, "postgres container did not start")

	dsn, err := container.ConnectionString(t.Context())
	require.NoError(t, err)
	t.Logf("order ledger at %v", dsn)

	// Same migrations the server applies on boot
	pool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "orders and payment_callbacks migrations failed")

	return PostgresContainer{
		DSN:  dsn,
		Pool: pool,
		Terminate: func() {
			pool.Close()
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type beginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// WithTx hands the test a transaction that is always rolled back.
// Orders and recorded callbacks never leak between tests sharing one container.
func WithTx(conn beginner, t *testing.T, testFunc func(tx pgx.Tx)) {
	tx, err := conn.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		require.NoError(t, tx.Rollback(t.Context()))
	}()

	testFunc(tx)
}
