package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

const (
	postgresImage = "postgres:16-alpine"
	weaviateImage = "semitechnologies/weaviate:latest"
	nsqImage      = "nsqio/nsq:v1.3.0"

	containerStartupTimeout = 60 * time.Second
)

// IntegrationSuite brings up the real backing services a full repo or store
// test needs: Postgres with migrations applied, a vectorizer-less Weaviate,
// and an nsqd. Each test gets fresh containers, so state never leaks between
// runs.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	pg        *postgres.PostgresContainer
	weaviateC testcontainers.Container
	nsqC      testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	s.startPostgres(ctx)
	s.startWeaviate(ctx)
	s.startNSQ(ctx)
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.pg != nil {
		s.pg.Terminate(ctx)
	}
	if s.weaviateC != nil {
		s.weaviateC.Terminate(ctx)
	}
	if s.nsqC != nil {
		s.nsqC.Terminate(ctx)
	}
}

func (s *IntegrationSuite) startPostgres(ctx context.Context) {
	pg, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("rulewise_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout)),
	)
	require.NoError(s.T, err)
	s.pg = pg

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	// Apply the documents schema from the repo's migrations directory,
	// located relative to this file so tests run from any package.
	_, self, _, _ := runtime.Caller(0)
	migrations := fmt.Sprintf("file://%s/../../migrations", filepath.Dir(self))

	m, err := migrate.New(migrations, connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) startWeaviate(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        weaviateImage,
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			// Vectors come from the embedding pipeline, never from Weaviate.
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(containerStartupTimeout),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateC = c

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   fmt.Sprintf("%s:%s", host, port.Port()),
		Scheme: "http",
	})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) startNSQ(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        nsqImage,
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		// No lookupd in the suite; the producer dials nsqd directly.
		Cmd:        []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor: wait.ForLog("TCP: listening on").WithStartupTimeout(containerStartupTimeout),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqC = c

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "4150")
	require.NoError(s.T, err)

	s.NSQ, err = nsq.NewProducer(fmt.Sprintf("%s:%s", host, port.Port()), nsq.NewConfig())
	require.NoError(s.T, err)
}
