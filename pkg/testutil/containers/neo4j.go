//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	Neo4jUser     = "neo4j"
	Neo4jPassword = "integration-secret"
)

// Neo4jContainer wraps a Neo4j 5 instance with the apoc and n10s plugins.
type Neo4jContainer struct {
	Container testcontainers.Container
	BoltURI   string
}

// NewNeo4jContainer starts a new Neo4j container. Plugin download happens on
// first start, so the startup timeout is generous.
func NewNeo4jContainer(t *testing.T) *Neo4jContainer {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "neo4j:5.20",
			ExposedPorts: []string{"7687/tcp", "7474/tcp"},
			Env: map[string]string{
				"NEO4J_AUTH":    Neo4jUser + "/" + Neo4jPassword,
				"NEO4J_PLUGINS": `["apoc", "n10s"]`,
				"NEO4J_dbms_security_procedures_unrestricted": "apoc.*,n10s.*",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Started."),
				wait.ForListeningPort("7687/tcp"),
			).WithDeadline(3 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start neo4j container: %v", err)
	}

	uri, err := container.PortEndpoint(ctx, "7687/tcp", "bolt")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get neo4j bolt endpoint: %v", err)
	}

	return &Neo4jContainer{Container: container, BoltURI: uri}
}
