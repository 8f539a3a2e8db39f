package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheBB/CICO/api"
	"github.com/TheBB/CICO/config"
	"github.com/TheBB/CICO/cursor"
	"github.com/TheBB/CICO/driver"
	"github.com/TheBB/CICO/filter"
	"github.com/TheBB/CICO/logging"
	"github.com/TheBB/CICO/metrics"
	"github.com/TheBB/CICO/sink/arrowipc"
	"github.com/TheBB/CICO/sink/debug"
	"github.com/TheBB/CICO/sink/postgres"
	"github.com/TheBB/CICO/sink/s3"
	"github.com/TheBB/CICO/source/envelope"
)

func main() {
	configPath := flag.String("config", "cico.hcl", "pipeline configuration file")
	logLevel := flag.String("log-level", "info", "log level")
	logFormat := flag.String("log-format", "console", "log format (console or json)")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel, Format: *logFormat})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Falling back to default logging configuration", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("Conversion failed", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	pipeline, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("Pipeline loaded", zap.String("name", pipeline.Name))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(pipeline, logger)
	if err != nil {
		return err
	}
	if err := src.Open(ctx); err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	snk, err := buildSink(pipeline, logger)
	if err != nil {
		return err
	}

	src, err = buildChain(ctx, pipeline, src, snk.Properties(), logger)
	if err != nil {
		return err
	}

	if err := snk.Configure(pipeline.Sink.Settings()); err != nil {
		return err
	}
	if err := checkProperties(src.Properties(), snk.Properties()); err != nil {
		return err
	}

	geometry, err := selectGeometry(src, pipeline.Geometry)
	if err != nil {
		return err
	}
	logger.Info("Geometry selected", zap.String("field", geometry.Name()))

	return snk.Consume(ctx, src, geometry)
}

// buildSource constructs the configured source, concatenating several
// envelopes when more than one path is given.
func buildSource(pipeline *config.Pipeline, logger *zap.Logger) (api.AnySource, error) {
	paths := pipeline.Source.Paths
	if pipeline.Source.Path != "" {
		paths = append([]string{pipeline.Source.Path}, paths...)
	}

	if len(paths) == 1 {
		return envelope.NewAny(paths[0], logger), nil
	}

	sources := make([]api.AnySource, len(paths))
	for i, path := range paths {
		sources[i] = envelope.NewAny(path, logger)
	}
	logger.Debug("Attaching source concatenation", zap.Int("sources", len(sources)))
	return filter.NewMultiSource(sources, logger), nil
}

// buildChain assembles the filter stack. Filters attach only when the
// configuration or the sink requirements call for them.
func buildChain(ctx context.Context, pipeline *config.Pipeline, src api.AnySource, sinkProps api.SinkProperties, logger *zap.Logger) (api.AnySource, error) {
	filters := pipeline.Filters
	if filters == nil {
		filters = &config.Filters{}
	}

	if filters.Strict {
		logger.Debug("Attaching contract validation (requested)")
		src = filter.NewStrict(src)
	}

	if len(filters.OnlyBases) > 0 {
		logger.Debug("Attaching basis filter", zap.Strings("bases", filters.OnlyBases))
		src = filter.NewBasisFilter(src, filters.OnlyBases, logger)
	}
	if len(filters.OnlyFields) > 0 {
		logger.Debug("Attaching field filter", zap.Strings("fields", filters.OnlyFields))
		src = filter.NewFieldFilter(src, filters.OnlyFields, logger)
	}

	if filters.Decompose {
		logger.Debug("Attaching component splitting (requested)")
		src = filter.NewDecompose(src)
	}

	if !src.Properties().GloballyKeyed && (filters.KeyZones || !src.Properties().SingleZoned) {
		logger.Debug("Attaching global zone keys (source not globally keyed)")
		src = filter.NewKeyZones(src, logger)
	}

	resume := 0
	if pipeline.Checkpoint != "" {
		token, err := cursor.ReadFile(pipeline.Checkpoint)
		if err != nil {
			return nil, err
		}
		position, err := cursor.DecodeStep(token)
		if err != nil {
			return nil, err
		}
		if position != nil {
			resume = position.Index + 1
			logger.Info("Resuming after checkpoint", zap.Int("index", position.Index))
		}
	}

	switch {
	case filters.LastStep || sinkProps.RequireInstantaneous && !src.Properties().Instantaneous:
		logger.Debug("Attaching final step selection")
		src = filter.NewLastStep(src, logger)
	case filters.Sliced() || resume > 0:
		start := filters.StepStart
		if resume > start {
			start = resume
		}
		stop := -1
		if filters.StepStop != nil {
			stop = *filters.StepStop
		}
		logger.Debug("Attaching step slice",
			zap.Int("start", start), zap.Int("stop", stop), zap.Int("stride", filters.StepStride))
		src = filter.NewStepSlice(src, start, stop, filters.StepStride, logger)
	}

	return src, nil
}

// buildSink constructs the configured sink, wrapping it in an uploader when
// an upload block is present.
func buildSink(pipeline *config.Pipeline, logger *zap.Logger) (api.AnySink, error) {
	passID := uuid.New()
	options := driver.Options{
		Logger:  logger,
		Metrics: metrics.NewRecorder(passID.String()),
	}
	if pipeline.Checkpoint != "" {
		checkpoint := pipeline.Checkpoint
		options.Checkpoint = func(ctx context.Context, index int) error {
			token, err := cursor.EncodeStep(index)
			if err != nil {
				return err
			}
			return cursor.WriteFile(checkpoint, token)
		}
	}
	logger.Info("Pass assigned", zap.String("pass", passID.String()))

	var snk api.AnySink
	switch pipeline.Sink.Kind {
	case "debug":
		sink := debug.NewAny(pipeline.Sink.Path, logger)
		sink.Options = options
		snk = sink
	case "arrow":
		sink := arrowipc.NewAny(pipeline.Sink.Path, logger)
		sink.Options = options
		snk = sink
	case "postgres":
		pg := pipeline.Sink.Postgres
		sink := postgres.NewAny(postgres.Config{
			Host:           pg.Host,
			Port:           pg.Port,
			Database:       pg.Database,
			Username:       pg.Username,
			Password:       pg.Password,
			SSLMode:        pg.SSLMode,
			ConnectTimeout: pg.Timeout(),
		}, logger)
		sink.Options = options
		snk = sink
	default:
		return nil, fmt.Errorf("unknown sink kind %q", pipeline.Sink.Kind)
	}

	if up := pipeline.Sink.Upload; up != nil {
		if pipeline.Sink.Path == "" {
			return nil, fmt.Errorf("upload requires a file-backed sink")
		}
		logger.Debug("Attaching upload decorator", zap.String("bucket", up.Bucket))
		snk = s3.NewUploader(snk, pipeline.Sink.Path, s3.Config{
			Endpoint:        up.Endpoint,
			Region:          up.Region,
			Bucket:          up.Bucket,
			Prefix:          up.Prefix,
			AccessKeyID:     up.AccessKeyID,
			SecretAccessKey: up.SecretAccessKey,
			UseSSL:          up.UseSSL,
		}, logger)
	}

	return snk, nil
}

// checkProperties verifies the source satisfies what the sink requires.
func checkProperties(src api.SourceProperties, snk api.SinkProperties) error {
	if snk.RequireInstantaneous && !src.Instantaneous {
		return api.Contractf("sink requires an instantaneous source")
	}
	if snk.RequireSingleBasis && !src.SingleBasis {
		return api.Contractf("sink requires a single-basis source")
	}
	if snk.RequireSingleZone && !src.SingleZoned {
		return api.Contractf("sink requires a single-zoned source")
	}
	if snk.RequireDiscreteTopology && !src.DiscreteTopology {
		return api.Contractf("sink requires discrete topology")
	}
	return nil
}

// selectGeometry picks the geometry field driving the pass. An explicit name
// must match a geometry candidate; otherwise the first candidate wins.
func selectGeometry(src api.AnySource, name string) (api.Field, error) {
	var first api.Field
	for basis := range src.Bases() {
		for geometry := range src.Geometries(basis) {
			if name != "" && geometry.Name() == name {
				return geometry, nil
			}
			if first == nil {
				first = geometry
			}
		}
	}
	if name != "" {
		return nil, api.Contractf("no geometry candidate named %q", name)
	}
	if first == nil {
		return nil, api.Contractf("source exposes no geometry candidates")
	}
	return first, nil
}
