package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/acoplu/borsa-aslani/internal/config"
	"github.com/acoplu/borsa-aslani/internal/features"
	"github.com/acoplu/borsa-aslani/internal/metrics"
	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/scaler"
	"github.com/acoplu/borsa-aslani/internal/sequence"
	"github.com/acoplu/borsa-aslani/internal/telemetry"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// Pipeline stage names used in spans, metrics and logs.
const (
	StageClean    = "clean"
	StageEnrich   = "enrich"
	StageSplit    = "split"
	StageScale    = "scale"
	StageSequence = "sequence"
	StageWarmup   = "warmup"
)

// ErrNoScalerStore is returned by operations that need a stored scaler state
// when the service was built without a store.
var ErrNoScalerStore = errors.New("scaler store not configured")

// ScalerStore persists fitted scaler states between training and inference.
type ScalerStore interface {
	Save(ctx context.Context, state *scaler.State) error
	LoadConforming(ctx context.Context, id string, columns []string) (*scaler.State, error)
}

// PreparationConfig holds the defaults applied when a request leaves a
// field unset.
type PreparationConfig struct {
	SeqLength        int
	MinWindows       int
	TargetColumn     string
	DegeneratePolicy scaler.DegeneratePolicy
	MaxConcurrency   int
	Params           features.Params
}

// DefaultPreparationConfig returns the standard pipeline settings.
func DefaultPreparationConfig() PreparationConfig {
	return PreparationConfig{
		SeqLength:        60,
		MinWindows:       1,
		TargetColumn:     models.ColumnClose,
		DegeneratePolicy: scaler.DegenerateFail,
		MaxConcurrency:   4,
		Params:           features.DefaultParams(),
	}
}

// PreparationConfigFrom maps the pipeline and indicator sections of cfg.
func PreparationConfigFrom(cfg *config.Config) (PreparationConfig, error) {
	policy, err := scaler.ParseDegeneratePolicy(cfg.Pipeline.DegeneratePolicy)
	if err != nil {
		return PreparationConfig{}, err
	}
	ind := cfg.Indicators
	return PreparationConfig{
		SeqLength:        cfg.Pipeline.SeqLength,
		MinWindows:       cfg.Pipeline.MinWindows,
		TargetColumn:     cfg.Pipeline.TargetColumn,
		DegeneratePolicy: policy,
		MaxConcurrency:   cfg.Pipeline.MaxConcurrency,
		Params: features.Params{
			SMAPeriods:     ind.SMAPeriods,
			EMAPeriods:     ind.EMAPeriods,
			RSIPeriod:      ind.RSIPeriod,
			MomentumPeriod: ind.MomentumPeriod,
			ROCPeriod:      ind.ROCPeriod,
			MACDFast:       ind.MACDFast,
			MACDSlow:       ind.MACDSlow,
			MACDSignal:     ind.MACDSignal,
			BBPeriod:       ind.BBPeriod,
			BBStdDev:       ind.BBStdDev,
			Extended:       cfg.Pipeline.ExtendedIndicators,
		},
	}, nil
}

// TreeDataset is the tree-ensemble branch output for one symbol.
type TreeDataset struct {
	Symbol      string                 `json:"symbol"`
	Data        *models.FeatureTarget  `json:"data"`
	Report      *features.EnrichReport `json:"report"`
	RowsCleaned int                    `json:"rows_cleaned"`
}

// SequenceRequest selects the windowing of the sequence branch. Zero values
// fall back to the service defaults. With a non-zero SplitDate the scaler
// is fit on the bars before it and reused for the bars from it onwards.
type SequenceRequest struct {
	SeqLength    int       `json:"seq_length"`
	MinWindows   int       `json:"min_windows"`
	TargetColumn string    `json:"target_column"`
	SplitDate    time.Time `json:"split_date"`
}

// SequenceDataset is the sequence branch output for one symbol.
type SequenceDataset struct {
	Symbol      string              `json:"symbol"`
	Train       *models.SequenceSet `json:"train"`
	Test        *models.SequenceSet `json:"test,omitempty"`
	Scaler      *scaler.State       `json:"scaler"`
	RowsCleaned int                 `json:"rows_cleaned"`
	Stored      bool                `json:"stored"`
}

// InferenceDataset holds windows scaled with a previously fitted state.
// Latest is the window ending at the last bar, the input for predicting the
// next one.
type InferenceDataset struct {
	Symbol    string              `json:"symbol"`
	ScalerID  string              `json:"scaler_id"`
	Sequences *models.SequenceSet `json:"sequences"`
	Latest    [][]float64         `json:"latest"`
}

// SymbolResult bundles both branches for one symbol.
type SymbolResult struct {
	Tree     *TreeDataset     `json:"tree"`
	Sequence *SequenceDataset `json:"sequence"`
}

// PreparationService runs the cleaning, enrichment, scaling and windowing
// stages for the tree-ensemble and sequence model branches.
type PreparationService struct {
	cfg     PreparationConfig
	engine  *features.Engine
	store   ScalerStore
	metrics *metrics.Recorder
	tracer  *telemetry.PipelineTracer
	logger  *logrus.Logger
}

// PreparationOption customises a PreparationService.
type PreparationOption func(*PreparationService)

// WithScalerStore saves fitted states and enables inference by scaler id.
func WithScalerStore(store ScalerStore) PreparationOption {
	return func(s *PreparationService) { s.store = store }
}

// WithMetrics records stage metrics on recorder.
func WithMetrics(recorder *metrics.Recorder) PreparationOption {
	return func(s *PreparationService) { s.metrics = recorder }
}

// WithTracer replaces the pipeline tracer built on the global provider.
func WithTracer(tracer *telemetry.PipelineTracer) PreparationOption {
	return func(s *PreparationService) { s.tracer = tracer }
}

// NewPreparationService validates cfg and builds the indicator engine.
func NewPreparationService(cfg PreparationConfig, logger *logrus.Logger, opts ...PreparationOption) (*PreparationService, error) {
	if cfg.SeqLength <= 0 {
		return nil, utils.NewValidationErrorf("sequence length must be positive, got %d", cfg.SeqLength)
	}
	if cfg.MinWindows < 0 {
		return nil, utils.NewValidationErrorf("minimum windows must not be negative, got %d", cfg.MinWindows)
	}
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = models.ColumnClose
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.DegeneratePolicy == "" {
		cfg.DegeneratePolicy = scaler.DegenerateFail
	}

	engine, err := features.NewEngine(cfg.Params)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &PreparationService{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.NewPipelineTracer()
	}
	return s, nil
}

// Config returns the defaults the service applies.
func (s *PreparationService) Config() PreparationConfig {
	return s.cfg
}

// WarmupRows returns how many clean rows the indicator catalog consumes.
func (s *PreparationService) WarmupRows() int {
	return s.engine.WarmupRows()
}

// PrepareTreeDataset cleans and enriches series and separates targetColumn
// from the features. An empty targetColumn uses the configured default.
func (s *PreparationService) PrepareTreeDataset(ctx context.Context, series models.PriceSeries, targetColumn string) (*TreeDataset, error) {
	if targetColumn == "" {
		targetColumn = s.cfg.TargetColumn
	}
	log := s.logger.WithFields(logrus.Fields{"symbol": series.Symbol, "branch": "tree"})

	cleaned := s.clean(ctx, series)

	var (
		frame  *models.Frame
		report *features.EnrichReport
	)
	err := s.runStage(ctx, StageEnrich, series.Symbol, func(ctx context.Context) (telemetry.StageResult, error) {
		var err error
		frame, report, err = s.engine.Enrich(cleaned)
		result := telemetry.StageResult{RowsIn: cleaned.Len()}
		if report != nil {
			result.RowsOut = report.RowsOut
			result.Warnings = len(report.Warnings)
		}
		return result, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}

	s.metrics.RecordRowsRemoved(StageWarmup, report.WarmupDropped)
	for _, w := range report.Warnings {
		s.metrics.RecordNumericDegeneracy(w.Column, w.Count)
		log.WithFields(logrus.Fields{"kind": w.Kind, "column": w.Column, "count": w.Count}).
			Warn("Indicator values clamped")
	}

	var data *models.FeatureTarget
	err = s.runStage(ctx, StageSplit, series.Symbol, func(ctx context.Context) (telemetry.StageResult, error) {
		var err error
		data, err = features.SplitFeaturesTarget(frame, targetColumn)
		return telemetry.StageResult{RowsIn: frame.Len(), RowsOut: frame.Len()}, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}

	log.WithFields(logrus.Fields{
		"rows":       frame.Len(),
		"features":   data.Features.Width(),
		"first_date": report.FirstDate.Format(time.DateOnly),
	}).Info("Prepared tree dataset")

	return &TreeDataset{
		Symbol:      series.Symbol,
		Data:        data,
		Report:      report,
		RowsCleaned: series.Len() - cleaned.Len(),
	}, nil
}

// PrepareSequenceDataset cleans and scales the OHLCV columns and slides
// windows over them. The fitted state is saved when a store is configured.
func (s *PreparationService) PrepareSequenceDataset(ctx context.Context, series models.PriceSeries, req SequenceRequest) (*SequenceDataset, error) {
	req = s.withDefaults(req)
	if req.SeqLength <= 0 {
		return nil, utils.NewValidationErrorf("sequence length must be positive, got %d", req.SeqLength)
	}
	log := s.logger.WithFields(logrus.Fields{"symbol": series.Symbol, "branch": "sequence"})

	cleaned := s.clean(ctx, series)
	train, test := cleaned, models.PriceSeries{}
	if !req.SplitDate.IsZero() {
		train, test = SplitByDate(cleaned, req.SplitDate)
	}

	var state *scaler.State
	err := s.runStage(ctx, StageScale, series.Symbol, func(ctx context.Context) (telemetry.StageResult, error) {
		var err error
		state, err = scaler.Fit(train.Frame(), scaler.WithDegeneratePolicy(s.cfg.DegeneratePolicy))
		return telemetry.StageResult{RowsIn: train.Len(), RowsOut: train.Len()}, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}
	for _, column := range state.DegenerateColumns() {
		s.metrics.RecordDegenerateColumn(column)
		log.WithField("column", column).Warn("Constant column scaled with unit scale")
	}

	trainSet, err := s.window(ctx, series.Symbol, state, train, req.SeqLength, req.TargetColumn, req.MinWindows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}

	dataset := &SequenceDataset{
		Symbol:      series.Symbol,
		Train:       trainSet,
		Scaler:      state,
		RowsCleaned: series.Len() - cleaned.Len(),
	}

	if !req.SplitDate.IsZero() {
		dataset.Test, err = s.window(ctx, series.Symbol, state, test, req.SeqLength, req.TargetColumn, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: test split: %w", series.Symbol, err)
		}
	}

	if s.store != nil {
		if err := s.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("%s: %w", series.Symbol, err)
		}
		dataset.Stored = true
	}

	fields := logrus.Fields{
		"windows":   trainSet.Len(),
		"scaler_id": state.ID().String(),
		"stored":    dataset.Stored,
	}
	if dataset.Test != nil {
		fields["test_windows"] = dataset.Test.Len()
	}
	log.WithFields(fields).Info("Prepared sequence dataset")

	return dataset, nil
}

// PrepareSequenceInference scales series with the stored state scalerID and
// builds windows without refitting. It needs a scaler store.
func (s *PreparationService) PrepareSequenceInference(ctx context.Context, series models.PriceSeries, req SequenceRequest, scalerID string) (*InferenceDataset, error) {
	if s.store == nil {
		return nil, ErrNoScalerStore
	}
	if scalerID == "" {
		return nil, utils.NewValidationError("scaler id is required")
	}

	state, err := s.store.LoadConforming(ctx, scalerID, models.OHLCVColumns)
	if err != nil {
		return nil, err
	}
	return s.PrepareWithState(ctx, series, req, state)
}

// PrepareWithState is PrepareSequenceInference with the state supplied by
// the caller.
func (s *PreparationService) PrepareWithState(ctx context.Context, series models.PriceSeries, req SequenceRequest, state *scaler.State) (*InferenceDataset, error) {
	req = s.withDefaults(req)
	if req.SeqLength <= 0 {
		return nil, utils.NewValidationErrorf("sequence length must be positive, got %d", req.SeqLength)
	}

	cleaned := s.clean(ctx, series)
	if cleaned.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", series.Symbol, &utils.EmptyInputError{Stage: StageScale, Rows: series.Len()})
	}

	set, err := s.window(ctx, series.Symbol, state, cleaned, req.SeqLength, req.TargetColumn, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}

	scaled, err := state.Transform(cleaned.Frame())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}
	latest, err := sequence.Latest(scaled, req.SeqLength)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series.Symbol, err)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":    series.Symbol,
		"branch":    "inference",
		"scaler_id": state.ID().String(),
		"windows":   set.Len(),
	}).Info("Prepared inference windows")

	return &InferenceDataset{
		Symbol:    series.Symbol,
		ScalerID:  state.ID().String(),
		Sequences: set,
		Latest:    latest,
	}, nil
}

// PrepareSymbols runs both branches for every series concurrently, at most
// MaxConcurrency symbols at a time. The first failure cancels the rest.
func (s *PreparationService) PrepareSymbols(ctx context.Context, batch []models.PriceSeries, req SequenceRequest) (map[string]*SymbolResult, error) {
	results := make(map[string]*SymbolResult, len(batch))
	for _, series := range batch {
		if _, dup := results[series.Symbol]; dup {
			return nil, utils.NewValidationErrorf("symbol %q appears more than once", series.Symbol)
		}
		results[series.Symbol] = &SymbolResult{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, series := range batch {
		result := results[series.Symbol]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tree, err := s.PrepareTreeDataset(gctx, series, req.TargetColumn)
			if err != nil {
				return err
			}
			seq, err := s.PrepareSequenceDataset(gctx, series, req)
			if err != nil {
				return err
			}
			result.Tree, result.Sequence = tree, seq
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SplitByDate returns the bars dated before start and the bars dated on or
// after it. Neither part shares a bar with the other.
func SplitByDate(series models.PriceSeries, start time.Time) (train, test models.PriceSeries) {
	return series.Between(time.Time{}, start), series.Between(start, time.Time{})
}

func (s *PreparationService) withDefaults(req SequenceRequest) SequenceRequest {
	if req.SeqLength == 0 {
		req.SeqLength = s.cfg.SeqLength
	}
	if req.MinWindows == 0 {
		req.MinWindows = s.cfg.MinWindows
	}
	if req.TargetColumn == "" {
		req.TargetColumn = s.cfg.TargetColumn
	}
	return req
}

func (s *PreparationService) clean(ctx context.Context, series models.PriceSeries) models.PriceSeries {
	var cleaned models.PriceSeries
	_ = s.runStage(ctx, StageClean, series.Symbol, func(ctx context.Context) (telemetry.StageResult, error) {
		cleaned = features.Clean(series)
		return telemetry.StageResult{RowsIn: series.Len(), RowsOut: cleaned.Len()}, nil
	})
	s.metrics.RecordRowsRemoved(StageClean, series.Len()-cleaned.Len())
	return cleaned
}

// window scales part with state and builds at least minWindows windows.
func (s *PreparationService) window(ctx context.Context, symbol string, state *scaler.State, part models.PriceSeries, seqLength int, targetColumn string, minWindows int) (*models.SequenceSet, error) {
	var set *models.SequenceSet
	err := s.runStage(ctx, StageSequence, symbol, func(ctx context.Context) (telemetry.StageResult, error) {
		result := telemetry.StageResult{RowsIn: part.Len()}
		scaled, err := state.Transform(part.Frame())
		if err != nil {
			return result, err
		}
		set, err = sequence.BuildAtLeast(scaled, seqLength, targetColumn, minWindows)
		if err != nil {
			return result, err
		}
		result.RowsOut = set.Len()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordWindows(set.Len())
	return set, nil
}

// runStage wraps fn in a span and records its duration and any failure.
func (s *PreparationService) runStage(ctx context.Context, stage, symbol string, fn func(context.Context) (telemetry.StageResult, error)) error {
	ctx, span := s.tracer.TraceStage(ctx, stage, symbol)
	start := time.Now()

	result, err := fn(ctx)

	elapsed := time.Since(start)
	s.tracer.EndStage(span, result, err)
	s.metrics.ObserveStage(stage, elapsed)
	if err != nil {
		s.metrics.RecordStageError(stage, utils.ErrorKind(err))
		s.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"stage":  stage,
			"kind":   utils.ErrorKind(err),
		}).WithError(err).Debug("Pipeline stage failed")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"symbol":      symbol,
		"stage":       stage,
		"rows_in":     result.RowsIn,
		"rows_out":    result.RowsOut,
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("Pipeline stage completed")
	return nil
}
