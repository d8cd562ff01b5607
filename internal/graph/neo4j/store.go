// Package neo4j is the graph store gateway. Claims are loaded through the
// neosemantics (n10s) importer and ad-hoc read queries run in read-mode
// transactions with a server-side timeout.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sdcatalog/internal/graph/cypher"
	"sdcatalog/internal/graph/metrics"
	"sdcatalog/internal/graph/ntriples"
	"sdcatalog/internal/platform/config"
	dErrors "sdcatalog/pkg/domain-errors"
)

var tracer = otel.Tracer("sdcatalog/internal/graph/neo4j")

const (
	importStatement = `CALL n10s.rdf.import.inline($payload, "N-Triples") YIELD terminationStatus, triplesLoaded, extraInfo
RETURN terminationStatus, triplesLoaded, extraInfo`
	deleteStatement     = `MATCH (n {uri: $uri}) DETACH DELETE n`
	graphConfigShow     = `CALL n10s.graphconfig.show()`
	graphConfigInit     = `CALL n10s.graphconfig.init()`
	uniqueURIConstraint = `CREATE CONSTRAINT n10s_unique_uri IF NOT EXISTS FOR (r:Resource) REQUIRE r.uri IS UNIQUE`
)

// Store talks to Neo4j.
type Store struct {
	driver          neo4j.DriverWithContext
	database        string
	queryTimeout    time.Duration
	hasURIPredicate string
	guard           *cypher.Guard
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithGuard(g *cypher.Guard) Option {
	return func(s *Store) {
		s.guard = g
	}
}

// New opens a driver for cfg. The connection is not verified until Bootstrap
// or Health is called.
func New(cfg config.Neo4jConfig, opts ...Option) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.User, cfg.Password, ""),
		func(c *neo4jconfig.Config) {
			if cfg.MaxPoolSize > 0 {
				c.MaxConnectionPoolSize = cfg.MaxPoolSize
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return NewWithDriver(driver, cfg, opts...), nil
}

// NewWithDriver wraps an existing driver.
func NewWithDriver(driver neo4j.DriverWithContext, cfg config.Neo4jConfig, opts ...Option) *Store {
	s := &Store{
		driver:          driver,
		database:        cfg.Database,
		queryTimeout:    cfg.QueryTimeout,
		hasURIPredicate: cfg.HasURIPredicate,
		guard:           cypher.NewGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hasURIPredicate == "" {
		s.hasURIPredicate = ntriples.DefaultHasURIPredicate
	}
	return s
}

// AddClaims loads the claims about subjectID in one write transaction.
// Invalid claims are reported as a validation error before any network call.
func (s *Store) AddClaims(ctx context.Context, claims []ntriples.Claim, subjectID string) error {
	ctx, span := tracer.Start(ctx, "graph.AddClaims")
	defer span.End()
	span.SetAttributes(attribute.String("subject_id", subjectID), attribute.Int("claims", len(claims)))
	defer s.observe("add_claims", time.Now())

	payload, err := ntriples.EncodeSubjectGraph(claims, subjectID, s.hasURIPredicate)
	if err != nil {
		span.SetStatus(codes.Error, "invalid claims")
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid claims")
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	loaded, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, importStatement, map[string]any{"payload": payload})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return checkImport(rec)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to import claims")
	}
	n, _ := loaded.(int64)
	if s.metrics != nil {
		s.metrics.AddImported(n)
	}
	s.logger.DebugContext(ctx, "claims imported", "subject_id", subjectID, "triples", n)
	return nil
}

// checkImport fails the transaction unless the importer reports OK.
func checkImport(rec *neo4j.Record) (int64, error) {
	status, _, err := neo4j.GetRecordValue[string](rec, "terminationStatus")
	if err != nil {
		return 0, fmt.Errorf("read import status: %w", err)
	}
	if status != "OK" {
		extra, _, _ := neo4j.GetRecordValue[string](rec, "extraInfo")
		return 0, fmt.Errorf("n10s import terminated with %s: %s", status, extra)
	}
	loaded, _, err := neo4j.GetRecordValue[int64](rec, "triplesLoaded")
	if err != nil {
		return 0, fmt.Errorf("read triples loaded: %w", err)
	}
	return loaded, nil
}

// DeleteClaims removes the node whose uri equals subjectID together with its
// relationships. Other subjects are never touched.
func (s *Store) DeleteClaims(ctx context.Context, subjectID string) error {
	ctx, span := tracer.Start(ctx, "graph.DeleteClaims")
	defer span.End()
	span.SetAttributes(attribute.String("subject_id", subjectID))
	defer s.observe("delete_claims", time.Now())

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, deleteStatement, map[string]any{"uri": ntriples.NormalizeSubject(subjectID)})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete claims")
	}
	return nil
}

// QueryData runs a read-only statement and returns one map per row. Mutating
// statements are rejected with a validation error; a statement that exceeds
// the query timeout fails with a timeout error.
func (s *Store) QueryData(ctx context.Context, q cypher.Query) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "graph.QueryData")
	defer span.End()
	defer s.observe("query_data", time.Now())

	if err := s.guard.Check(q); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementRejected()
		}
		span.SetStatus(codes.Error, "query rejected")
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	var txOpts []func(*neo4j.TransactionConfig)
	if s.queryTimeout > 0 {
		txOpts = append(txOpts, neo4j.WithTxTimeout(s.queryTimeout))
	}
	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q.Statement, q.Params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, flattenRecord(rec))
		}
		return out, nil
	}, txOpts...)
	if err != nil {
		span.RecordError(err)
		if isTimeout(err) {
			if s.metrics != nil {
				s.metrics.IncrementTimeouts()
			}
			span.SetStatus(codes.Error, "query timed out")
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "query exceeded the configured timeout")
		}
		span.SetStatus(codes.Error, "query failed")
		if isClientError(err) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "query failed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query failed")
	}
	result, _ := rows.([]map[string]any)
	span.SetAttributes(attribute.Int("rows", len(result)))
	return result, nil
}

// Bootstrap verifies connectivity and prepares the database for n10s imports.
// It is safe to run repeatedly.
func (s *Store) Bootstrap(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	configured, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, graphConfigShow, nil)
		if err != nil {
			return nil, err
		}
		return res.Next(ctx), res.Err()
	})
	if err != nil {
		return fmt.Errorf("read n10s graph config: %w", err)
	}
	if ok, _ := configured.(bool); ok {
		s.logger.InfoContext(ctx, "n10s graph config already present")
		return nil
	}

	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, graphConfigInit, nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	}); err != nil {
		return fmt.Errorf("init n10s graph config: %w", err)
	}
	// schema changes cannot share a transaction with data writes
	if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, uniqueURIConstraint, nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	}); err != nil {
		return fmt.Errorf("create uri constraint: %w", err)
	}
	s.logger.InfoContext(ctx, "n10s graph config initialised")
	return nil
}

// Health checks driver connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.Contains(neoErr.Code, "TransactionTimedOut")
	}
	return false
}

// isClientError reports statement errors such as syntax or unknown procedures.
func isClientError(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && strings.HasPrefix(neoErr.Code, "Neo.ClientError.")
}
