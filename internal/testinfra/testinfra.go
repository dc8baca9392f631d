package testinfra

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/internal/infra/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var Pool *pgxpool.Pool

func init() {
	Pool = SetupDB()
}

func SetupDB() *pgxpool.Pool {

	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:17.2-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	if err != nil {
		log.Panicf("start postgres: %v", err)
	}

	pgHostPort, err := pgC.Endpoint(ctx, "")
	if err != nil {
		log.Panicf("postgres endpoint: %v", err)
	}
	pgDSN := fmt.Sprintf("postgres://postgres:password@%s/testdb?sslmode=disable", pgHostPort)

	pool, err := pgxpool.New(ctx, pgDSN)
	if err != nil {
		log.Panicf("pgxpool connect: %v", err)
	}

	ok := false
	for i := 0; i < 20; i++ {
		slog.Info("ping db", "try", i)
		ctxPing, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		err = pool.Ping(ctxPing)
		cancel()
		if err == nil {
			ok = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ok {
		log.Panic("db did not respond after 20 attempts")
	}

	migrator, err := db.NewMigrator(pool)
	if err != nil {
		log.Panicf("migrator: %v", err)
	}
	if err := migrator.Up(ctx); err != nil {
		log.Panicf("migrate: %v", err)
	}

	return pool
}

// SeedProject inserts a project with the given provider config JSON and returns its id.
func SeedProject(ctx context.Context, name, providerConfig string) int64 {
	var id int64
	err := Pool.QueryRow(ctx, `INSERT INTO provisioner.projects (name, provider_config) VALUES ($1, $2::jsonb) RETURNING id`,
		name, providerConfig).Scan(&id)
	if err != nil {
		log.Panicf("seed project: %v", err)
	}
	return id
}

func SeedClient(ctx context.Context, name string) int64 {
	var id int64
	err := Pool.QueryRow(ctx, `INSERT INTO provisioner.clients (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		log.Panicf("seed client: %v", err)
	}
	return id
}

// Truncate empties every provisioner table.
func Truncate(ctx context.Context) {
	_, err := Pool.Exec(ctx, `TRUNCATE provisioner.install_steps, provisioner.installations,
		provisioner.clients, provisioner.projects RESTART IDENTITY CASCADE`)
	if err != nil {
		log.Panicf("truncate: %v", err)
	}
}
