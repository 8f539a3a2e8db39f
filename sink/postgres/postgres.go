// Package postgres provides a sink writing conversion passes into a
// PostgreSQL database. Each pass gets a row in the passes table; steps,
// topologies and field data land in child tables keyed by the pass.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/driver"
)

// Config holds the connection parameters.
type Config struct {
	Host           string
	Port           string
	Database       string
	Username       string
	Password       string
	SSLMode        string
	ConnectTimeout time.Duration
}

// DSN builds the connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, sslmode)
	if c.ConnectTimeout > 0 {
		dsn += fmt.Sprintf("&connect_timeout=%d", int(c.ConnectTimeout.Seconds()))
	}
	return dsn
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS passes (
		id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		properties JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		pass_id UUID NOT NULL REFERENCES passes(id),
		index INT NOT NULL,
		value DOUBLE PRECISION,
		PRIMARY KEY (pass_id, index)
	)`,
	`CREATE TABLE IF NOT EXISTS topologies (
		pass_id UUID NOT NULL REFERENCES passes(id),
		step INT NOT NULL,
		basis TEXT NOT NULL,
		zone TEXT NOT NULL,
		celltype TEXT NOT NULL,
		num_nodes INT NOT NULL,
		num_cells INT NOT NULL,
		cells BIGINT[] NOT NULL,
		PRIMARY KEY (pass_id, step, basis, zone)
	)`,
	`CREATE TABLE IF NOT EXISTS field_data (
		pass_id UUID NOT NULL REFERENCES passes(id),
		step INT NOT NULL,
		field TEXT NOT NULL,
		zone TEXT NOT NULL,
		num_comps INT NOT NULL,
		data DOUBLE PRECISION[] NOT NULL,
		PRIMARY KEY (pass_id, step, field, zone)
	)`,
}

// Sink writes a conversion pass into PostgreSQL.
type Sink[B api.Basis, F api.Field, S api.Step, Z api.Zone] struct {
	logger *zap.Logger
	config Config

	// Options configure the conversion pass driven by Consume.
	Options driver.Options

	configured bool
	pool       *pgxpool.Pool
	passID     uuid.UUID
}

// New creates a sink connecting with config. No connection is made until
// Consume.
func New[B api.Basis, F api.Field, S api.Step, Z api.Zone](config Config, logger *zap.Logger) *Sink[B, F, S, Z] {
	return &Sink[B, F, S, Z]{logger: logger, config: config}
}

// NewAny creates a sink over erased descriptor types.
func NewAny(config Config, logger *zap.Logger) *Sink[api.Basis, api.Field, api.Step, api.Zone] {
	return New[api.Basis, api.Field, api.Step, api.Zone](config, logger)
}

func (s *Sink[B, F, S, Z]) Properties() api.SinkProperties {
	return api.SinkProperties{RequireDiscreteTopology: true}
}

// Configure validates the settings. The wire encoding is fixed by the
// database protocol, so only binary mode with native endianness is accepted.
func (s *Sink[B, F, S, Z]) Configure(settings api.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.Mode != api.ModeBinary {
		return api.Contractf("postgres sink does not support %q output mode", string(settings.Mode))
	}
	if settings.Endianness != api.Native {
		return api.Contractf("postgres sink does not support %q endianness", string(settings.Endianness))
	}
	s.configured = true
	return nil
}

// Consume drives one full pass into the database. The connection pool is
// opened on entry and closed on every exit path.
func (s *Sink[B, F, S, Z]) Consume(ctx context.Context, src api.Source[B, F, S, Z], geometry F) error {
	if !s.configured {
		return api.Contractf("postgres sink driven before Configure")
	}

	poolConfig, err := pgxpool.ParseConfig(s.config.DSN())
	if err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to parse connection config: %w", err)}
	}
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to create connection pool: %w", err)}
	}
	s.pool = pool
	defer pool.Close()

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	s.passID = uuid.New()
	s.logger.Info("Pass started", zap.String("pass", s.passID.String()))

	opts := s.Options
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	opts.Requirements = s.Properties()
	return driver.Run(ctx, src, geometry, s, opts)
}

func (s *Sink[B, F, S, Z]) ensureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to create schema: %w", err)}
		}
	}
	return nil
}

// WriteHeader registers the pass.
func (s *Sink[B, F, S, Z]) WriteHeader(ctx context.Context, header *driver.Header[B, F, Z]) error {
	props, err := json.Marshal(header.Properties)
	if err != nil {
		return &api.SerializationError{Sink: "postgres", Err: err}
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO passes (id, started_at, properties) VALUES ($1, $2, $3)`,
		s.passID, time.Now().UTC(), props)
	if err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to register pass: %w", err)}
	}
	return nil
}

// WriteStep stores the updated payloads of one step in a single
// transaction, so a failed pass never leaves a partial step behind.
func (s *Sink[B, F, S, Z]) WriteStep(ctx context.Context, record *driver.StepRecord[B, F, S, Z]) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback(ctx)

	var value *float64
	if v, ok := record.Step.Value(); ok {
		value = &v
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO steps (pass_id, index, value) VALUES ($1, $2, $3)`,
		s.passID, record.Step.Index(), value); err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to store step %d: %w", record.Step.Index(), err)}
	}

	for _, topology := range record.Topologies {
		if topology.Marker() {
			continue
		}
		cells := flattenCells(topology.Topology.Cells)
		if _, err := tx.Exec(ctx,
			`INSERT INTO topologies (pass_id, step, basis, zone, celltype, num_nodes, num_cells, cells)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.passID, record.Step.Index(), topology.Basis.Name(), topology.Zone.Key(),
			topology.Topology.CellType.String(), topology.Topology.NumNodes,
			topology.Topology.NumCells, cells); err != nil {
			return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to store topology of %q: %w", topology.Basis.Name(), err)}
		}
	}

	for _, data := range record.Data {
		if data.Marker() {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO field_data (pass_id, step, field, zone, num_comps, data)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.passID, record.Step.Index(), data.Field.Name(), data.Zone.Key(),
			data.Data.NumComps, data.Data.Data); err != nil {
			return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to store data of %q: %w", data.Field.Name(), err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &api.SerializationError{Sink: "postgres", Err: fmt.Errorf("failed to commit step %d: %w", record.Step.Index(), err)}
	}
	return nil
}

func flattenCells(cells [][]int) []int64 {
	var out []int64
	for _, cell := range cells {
		for _, node := range cell {
			out = append(out, int64(node))
		}
	}
	return out
}
