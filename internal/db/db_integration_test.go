package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"pdf-rag/internal/config"
)

func startPgvector(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "rag",
			"POSTGRES_PASSWORD": "rag",
			"POSTGRES_DB":       "rag",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(90 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start pgvector: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://rag:rag@%s:%s/rag?sslmode=disable", host, port.Port())
}

func TestPgvectorIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	dsn := startPgvector(t, ctx)

	for _, driver := range []string{config.DriverPgdriver, config.DriverPq} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.DatabaseConfig{Driver: driver, DSN: dsn}
			s, err := Open(ctx, cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if !s.Clear(ctx) {
				t.Fatal("Clear failed")
			}

			s.SetFullText("The sky is blue. Water is wet.")
			ok := s.Store(ctx,
				[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
				[]string{"sky", "water", "grass"},
				[]string{"doc", "doc", "doc"},
			)
			if !ok {
				t.Fatal("Store failed")
			}

			res := s.Search(ctx, []float32{0, 1, 0}, 2)
			if !res.Success || len(res.Matches) != 2 || res.Matches[0].Chunk != "water" || res.Matches[0].Distance > 1e-6 {
				t.Fatalf("unexpected search result %+v", res)
			}

			reopened, err := Open(ctx, cfg)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer reopened.Close()
			if reopened.Len() != 3 || reopened.FullText() != "The sky is blue. Water is wet." {
				t.Fatalf("reopened Len=%d FullText=%q", reopened.Len(), reopened.FullText())
			}
			if res := reopened.Search(ctx, []float32{1, 0, 0}, 10); len(res.Matches) != 3 {
				t.Fatalf("k not capped: %+v", res)
			}

			if err := DropDocuments(ctx, s.db); err != nil {
				t.Fatalf("DropDocuments: %v", err)
			}
		})
	}
}
