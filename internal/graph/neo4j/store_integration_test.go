//go:build integration

package neo4j_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sdcatalog/internal/graph/cypher"
	"sdcatalog/internal/graph/neo4j"
	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/internal/platform/config"
	dErrors "sdcatalog/pkg/domain-errors"
	"sdcatalog/pkg/testutil/containers"
)

type GraphStoreSuite struct {
	suite.Suite
	store *neo4j.Store
}

func TestGraphStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(GraphStoreSuite))
}

func (s *GraphStoreSuite) SetupSuite() {
	c := containers.GetManager().GetNeo4j(s.T())
	store, err := neo4j.New(config.Neo4jConfig{
		URI:          c.BoltURI,
		User:         containers.Neo4jUser,
		Password:     containers.Neo4jPassword,
		Database:     "neo4j",
		QueryTimeout: 2 * time.Second,
	})
	s.Require().NoError(err)
	s.store = store

	ctx := context.Background()
	s.Require().NoError(s.store.Bootstrap(ctx))
	s.Require().NoError(s.store.Bootstrap(ctx), "bootstrap is idempotent")
}

func (s *GraphStoreSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close(context.Background())
	}
}

func (s *GraphStoreSuite) SetupTest() {
	// the guard blocks DETACH DELETE, so clean up through the claim API
	ctx := context.Background()
	for _, subject := range []string{issuer1, issuer2, service1} {
		s.Require().NoError(s.store.DeleteClaims(ctx, subject))
	}
}

const (
	issuer1  = "http://example.org/test-issuer"
	issuer2  = "http://example.org/test-issuer2"
	service1 = "http://w3id.org/gaia-x/indiv#serviceElasticSearch.json"
	knows    = "<http://xmlns.com/foaf/0.1/knows>"
	name     = "<http://xmlns.com/foaf/0.1/name>"
)

func (s *GraphStoreSuite) uris(rows []map[string]any, column string) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[column])
	}
	return out
}

func (s *GraphStoreSuite) TestAddClaimsThenQuery() {
	ctx := context.Background()
	claims := []ntriples.Claim{
		{Subject: "<" + issuer1 + ">", Predicate: knows, Object: "<" + issuer2 + ">"},
		{Subject: "<" + issuer1 + ">", Predicate: name, Object: `"Issuer One"`},
	}

	s.Require().NoError(s.store.AddClaims(ctx, claims, issuer1))

	rows, err := s.store.QueryData(ctx, cypher.Query{
		Statement: "MATCH (n {uri: $uri})-->(m) RETURN n, m",
		Params:    map[string]any{"uri": issuer1},
	})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(issuer1, rows[0]["n.uri"])
	s.Equal(issuer2, rows[0]["m.uri"])
}

func (s *GraphStoreSuite) TestQueryProjectsScalars() {
	ctx := context.Background()
	s.Require().NoError(s.store.AddClaims(ctx, []ntriples.Claim{
		{Subject: "<" + issuer1 + ">", Predicate: name, Object: `"Issuer One"`},
	}, issuer1))

	rows, err := s.store.QueryData(ctx, cypher.Query{
		Statement: "MATCH (n {uri: $uri}) RETURN n.uri AS uri, n.missing AS missing, 7 AS seven",
		Params:    map[string]any{"uri": issuer1},
	})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(issuer1, rows[0]["uri"])
	s.Equal(int64(7), rows[0]["seven"])
	s.Contains(rows[0], "missing")
	s.Nil(rows[0]["missing"])
}

func (s *GraphStoreSuite) TestDeleteClaimsOnlyTouchesSubject() {
	ctx := context.Background()
	s.Require().NoError(s.store.AddClaims(ctx, []ntriples.Claim{
		{Subject: "<" + issuer1 + ">", Predicate: name, Object: `"one"`},
	}, issuer1))
	s.Require().NoError(s.store.AddClaims(ctx, []ntriples.Claim{
		{Subject: "<" + issuer2 + ">", Predicate: name, Object: `"two"`},
	}, issuer2))

	s.Require().NoError(s.store.DeleteClaims(ctx, issuer1))

	rows, err := s.store.QueryData(ctx, cypher.Query{
		Statement: "MATCH (n) WHERE n.uri IN $uris RETURN n ORDER BY n.uri",
		Params:    map[string]any{"uris": []string{issuer1, issuer2}},
	})
	s.Require().NoError(err)
	s.Equal([]any{issuer2}, s.uris(rows, "n.uri"))
}

func (s *GraphStoreSuite) TestAddClaimsRejectsInvalidTriples() {
	ctx := context.Background()
	tests := map[string]ntriples.Claim{
		"broken subject":   {Subject: "<htw3id.org/gaia-x/indiv#serviceElasticSearch.json>", Predicate: name, Object: `"x"`},
		"broken predicate": {Subject: "<" + service1 + ">", Predicate: "<httw3.org/1999/02/22-rdf-syntax-ns#type>", Object: `"x"`},
		"typed literal":    {Subject: "<" + service1 + ">", Predicate: name, Object: `"Fourty two"^^<http://www.w3.org/2001/XMLSchema#int>`},
		"missing quote":    {Subject: "<" + service1 + ">", Predicate: name, Object: `"Missing quotes^^<http://www.w3.org/2001/XMLSchema#string>`},
		"blank object":     {Subject: "<" + service1 + ">", Predicate: "<http://ex.com/some_property>", Object: "_:23"},
	}
	for label, claim := range tests {
		err := s.store.AddClaims(ctx, []ntriples.Claim{claim}, service1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), label)
	}

	rows, err := s.store.QueryData(ctx, cypher.Query{
		Statement: "MATCH (n {uri: $uri}) RETURN n",
		Params:    map[string]any{"uri": service1},
	})
	s.Require().NoError(err)
	s.Empty(rows, "rejected batches leave no trace")
}

func (s *GraphStoreSuite) TestQueryDataRejectsMutations() {
	ctx := context.Background()
	for _, stmt := range []string{
		"MATCH (n) DETACH DELETE n;",
		"MATCH (n) SET n.name = 'Santa' RETURN n;",
	} {
		_, err := s.store.QueryData(ctx, cypher.Query{Statement: stmt})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), stmt)
	}
}

func (s *GraphStoreSuite) TestQueryDataTimesOut() {
	_, err := s.store.QueryData(context.Background(), cypher.Query{
		Statement: "CALL apoc.util.sleep(5000)",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout), "got %v", err)
}

func (s *GraphStoreSuite) TestQueryDataWithinTimeoutReturnsRows() {
	rows, err := s.store.QueryData(context.Background(), cypher.Query{
		Statement: "CALL apoc.util.sleep(500) RETURN 1 AS done",
	})
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(int64(1), rows[0]["done"])
}

func (s *GraphStoreSuite) TestQuerySyntaxError() {
	_, err := s.store.QueryData(context.Background(), cypher.Query{Statement: "MATCH (n RETURN n"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

func (s *GraphStoreSuite) TestHealth() {
	s.NoError(s.store.Health(context.Background()))
}
