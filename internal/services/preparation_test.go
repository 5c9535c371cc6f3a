package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/acoplu/borsa-aslani/internal/config"
	"github.com/acoplu/borsa-aslani/internal/metrics"
	"github.com/acoplu/borsa-aslani/internal/models"
	"github.com/acoplu/borsa-aslani/internal/scaler"
	"github.com/acoplu/borsa-aslani/internal/telemetry"
	"github.com/acoplu/borsa-aslani/internal/utils"
)

// MockScalerStore is a mock implementation of ScalerStore
type MockScalerStore struct {
	mock.Mock
}

func (m *MockScalerStore) Save(ctx context.Context, state *scaler.State) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockScalerStore) LoadConforming(ctx context.Context, id string, columns []string) (*scaler.State, error) {
	args := m.Called(ctx, id, columns)
	state, _ := args.Get(0).(*scaler.State)
	return state, args.Error(1)
}

// Test data generators

var testStart = time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)

func generateTestSeries(symbol string, count int) models.PriceSeries {
	bars := make([]models.Bar, count)
	for i := range bars {
		c := 100 + float64(i) + float64(i%3)*1.5
		bars[i] = models.Bar{
			Date:   testStart.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1.5,
			Close:  c,
			Volume: 1000 + float64(i%7)*50,
		}
	}
	return models.PriceSeries{Symbol: symbol, Bars: bars}
}

func testPreparationConfig() PreparationConfig {
	cfg := DefaultPreparationConfig()
	cfg.SeqLength = 5
	return cfg
}

func newTestService(t *testing.T, opts ...PreparationOption) *PreparationService {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc, err := NewPreparationService(testPreparationConfig(), logger, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewPreparationService(t *testing.T) {
	svc, err := NewPreparationService(DefaultPreparationConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.tracer)
	assert.Equal(t, 19, svc.WarmupRows())

	cfg := DefaultPreparationConfig()
	cfg.SeqLength = 0
	_, err = NewPreparationService(cfg, nil)
	assert.ErrorIs(t, err, utils.ErrValidation)

	cfg = DefaultPreparationConfig()
	cfg.Params.RSIPeriod = 0
	_, err = NewPreparationService(cfg, nil)
	assert.ErrorIs(t, err, utils.ErrValidation)

	cfg = DefaultPreparationConfig()
	cfg.TargetColumn = ""
	cfg.MaxConcurrency = 0
	svc, err = NewPreparationService(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ColumnClose, svc.Config().TargetColumn)
	assert.Equal(t, 1, svc.Config().MaxConcurrency)
}

func TestPreparationConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			SeqLength:          30,
			MinWindows:         2,
			TargetColumn:       "Close",
			DegeneratePolicy:   "unit_scale",
			MaxConcurrency:     8,
			ExtendedIndicators: true,
		},
		Indicators: config.IndicatorsConfig{
			SMAPeriods:     []int{5, 10},
			EMAPeriods:     []int{10, 20},
			RSIPeriod:      14,
			MACDFast:       12,
			MACDSlow:       26,
			MACDSignal:     9,
			BBPeriod:       20,
			BBStdDev:       2,
			MomentumPeriod: 10,
			ROCPeriod:      10,
		},
	}

	prep, err := PreparationConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, 30, prep.SeqLength)
	assert.Equal(t, 2, prep.MinWindows)
	assert.Equal(t, scaler.DegenerateUnitScale, prep.DegeneratePolicy)
	assert.Equal(t, 8, prep.MaxConcurrency)
	assert.True(t, prep.Params.Extended)
	assert.Equal(t, []int{5, 10}, prep.Params.SMAPeriods)
	assert.Equal(t, 2.0, prep.Params.BBStdDev)

	cfg.Pipeline.DegeneratePolicy = "clip"
	_, err = PreparationConfigFrom(cfg)
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestPrepareTreeDataset(t *testing.T) {
	svc := newTestService(t)
	series := generateTestSeries("AAPL", 60)

	ds, err := svc.PrepareTreeDataset(context.Background(), series, "")
	require.NoError(t, err)

	warmup := svc.WarmupRows()
	assert.Equal(t, "AAPL", ds.Symbol)
	assert.Equal(t, "Close", ds.Data.TargetName)
	assert.Equal(t, 60-warmup, ds.Data.Features.Len())
	assert.Len(t, ds.Data.Target, 60-warmup)
	assert.False(t, ds.Data.Features.Has("Close"))
	assert.True(t, ds.Data.Features.Has("Open"))
	assert.Equal(t, series.Bars[warmup].Close, ds.Data.Target[0])
	assert.Equal(t, series.Bars[59].Close, ds.Data.Target[len(ds.Data.Target)-1])
	assert.Equal(t, series.Bars[warmup].Date, ds.Report.FirstDate)
	assert.Equal(t, warmup, ds.Report.WarmupDropped)
	assert.Zero(t, ds.RowsCleaned)
}

func TestPrepareTreeDataset_CleansMissingBars(t *testing.T) {
	svc := newTestService(t)
	series := generateTestSeries("AAPL", 60)
	series.Bars[3].Open = math.NaN()
	series.Bars[40].Volume = math.NaN()

	ds, err := svc.PrepareTreeDataset(context.Background(), series, "Close")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.RowsCleaned)
	assert.Equal(t, 58, ds.Report.RowsIn)
	assert.Equal(t, 58-svc.WarmupRows(), ds.Data.Features.Len())
	assert.NotContains(t, ds.Data.Features.Index(), series.Bars[40].Date)
}

func TestPrepareTreeDataset_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.PrepareTreeDataset(ctx, generateTestSeries("AAPL", 60), "Adj Close")
	assert.ErrorIs(t, err, utils.ErrSchemaMismatch)

	_, err = svc.PrepareTreeDataset(ctx, generateTestSeries("AAPL", 10), "")
	assert.ErrorIs(t, err, utils.ErrEmptyInput)

	_, err = svc.PrepareTreeDataset(ctx, models.PriceSeries{Symbol: "AAPL"}, "")
	assert.ErrorIs(t, err, utils.ErrEmptyInput)
	assert.Contains(t, err.Error(), "AAPL")
}

func TestPrepareSequenceDataset(t *testing.T) {
	store := new(MockScalerStore)
	store.On("Save", mock.Anything, mock.AnythingOfType("*scaler.State")).Return(nil)
	svc := newTestService(t, WithScalerStore(store))
	series := generateTestSeries("AAPL", 30)

	ds, err := svc.PrepareSequenceDataset(context.Background(), series, SequenceRequest{})
	require.NoError(t, err)

	assert.Equal(t, [3]int{25, 5, 5}, ds.Train.Shape())
	assert.Equal(t, models.OHLCVColumns, ds.Train.Columns)
	assert.Equal(t, models.CloseColumnIndex, ds.Train.TargetColumn)
	assert.Nil(t, ds.Test)
	assert.True(t, ds.Stored)
	assert.Equal(t, models.OHLCVColumns, ds.Scaler.Columns())
	assert.Equal(t, 30, ds.Scaler.Rows())

	for _, window := range ds.Train.Windows {
		for _, row := range window {
			for _, v := range row {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}

	// The target of window k is the scaled Close of row k+L.
	restored, err := ds.Scaler.InverseColumn("Close", ds.Train.Targets[:1])
	require.NoError(t, err)
	assert.InDelta(t, series.Bars[5].Close, restored[0], 1e-9)
	assert.Equal(t, series.Bars[5].Date, ds.Train.TargetDates[0])

	store.AssertExpectations(t)
}

func TestPrepareSequenceDataset_SplitDate(t *testing.T) {
	svc := newTestService(t)
	series := generateTestSeries("AAPL", 30)

	ds, err := svc.PrepareSequenceDataset(context.Background(), series, SequenceRequest{
		SplitDate: series.Bars[20].Date,
	})
	require.NoError(t, err)

	assert.Equal(t, 20, ds.Scaler.Rows())
	assert.Equal(t, 15, ds.Train.Len())
	require.NotNil(t, ds.Test)
	assert.Equal(t, 5, ds.Test.Len())
	assert.Equal(t, series.Bars[20].Date, ds.Test.WindowStarts[0])
	assert.False(t, ds.Stored)

	// Test rows are scaled with the train-fitted state, so rising prices
	// land above 1 instead of being refit into [0, 1].
	last := ds.Test.Windows[ds.Test.Len()-1]
	assert.Greater(t, last[len(last)-1][models.CloseColumnIndex], 1.0)
}

func TestPrepareSequenceDataset_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient history", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.PrepareSequenceDataset(ctx, generateTestSeries("AAPL", 5), SequenceRequest{})
		var insufficient *utils.InsufficientHistoryError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 6, insufficient.Required)
		assert.Equal(t, 5, insufficient.Available)
	})

	t.Run("negative sequence length", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.PrepareSequenceDataset(ctx, generateTestSeries("AAPL", 30), SequenceRequest{SeqLength: -1})
		assert.ErrorIs(t, err, utils.ErrValidation)
	})

	t.Run("split before all data", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.PrepareSequenceDataset(ctx, generateTestSeries("AAPL", 30), SequenceRequest{
			SplitDate: testStart.AddDate(-1, 0, 0),
		})
		assert.ErrorIs(t, err, utils.ErrEmptyInput)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockScalerStore)
		store.On("Save", mock.Anything, mock.Anything).Return(errors.New("redis down"))
		svc := newTestService(t, WithScalerStore(store))

		_, err := svc.PrepareSequenceDataset(ctx, generateTestSeries("AAPL", 30), SequenceRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis down")
		assert.Equal(t, "internal", utils.ErrorKind(err))
	})
}

func TestPrepareSequenceDataset_DegeneratePolicy(t *testing.T) {
	series := generateTestSeries("AAPL", 30)
	for i := range series.Bars {
		series.Bars[i].Volume = 5000
	}

	svc := newTestService(t)
	_, err := svc.PrepareSequenceDataset(context.Background(), series, SequenceRequest{})
	var degenerate *utils.DegenerateColumnError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, "Volume", degenerate.Column)

	cfg := testPreparationConfig()
	cfg.DegeneratePolicy = scaler.DegenerateUnitScale
	lenient, err := NewPreparationService(cfg, nil)
	require.NoError(t, err)

	ds, err := lenient.PrepareSequenceDataset(context.Background(), series, SequenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Volume"}, ds.Scaler.DegenerateColumns())
	assert.Equal(t, 0.0, ds.Train.Windows[0][0][4])
}

func TestPrepareSequenceInference(t *testing.T) {
	series := generateTestSeries("AAPL", 30)
	ctx := context.Background()

	trainer := newTestService(t)
	trained, err := trainer.PrepareSequenceDataset(ctx, series, SequenceRequest{})
	require.NoError(t, err)

	id := trained.Scaler.ID().String()
	store := new(MockScalerStore)
	store.On("LoadConforming", mock.Anything, id, models.OHLCVColumns).Return(trained.Scaler, nil)
	svc := newTestService(t, WithScalerStore(store))

	inf, err := svc.PrepareSequenceInference(ctx, series, SequenceRequest{}, id)
	require.NoError(t, err)

	assert.Equal(t, id, inf.ScalerID)
	assert.Equal(t, trained.Train.Windows, inf.Sequences.Windows)
	assert.Equal(t, trained.Train.Targets, inf.Sequences.Targets)
	require.Len(t, inf.Latest, 5)
	assert.Equal(t, 1.0, inf.Latest[4][models.CloseColumnIndex])
	store.AssertExpectations(t)
}

func TestPrepareSequenceInference_Errors(t *testing.T) {
	ctx := context.Background()
	series := generateTestSeries("AAPL", 30)

	_, err := newTestService(t).PrepareSequenceInference(ctx, series, SequenceRequest{}, "id")
	assert.ErrorIs(t, err, ErrNoScalerStore)

	notFound := errors.New("scaler state not found")
	store := new(MockScalerStore)
	store.On("LoadConforming", mock.Anything, "missing", mock.Anything).Return(nil, notFound)
	svc := newTestService(t, WithScalerStore(store))

	_, err = svc.PrepareSequenceInference(ctx, series, SequenceRequest{}, "missing")
	assert.ErrorIs(t, err, notFound)

	_, err = svc.PrepareSequenceInference(ctx, series, SequenceRequest{}, "")
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestPrepareWithState_ShortSeries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	trained, err := svc.PrepareSequenceDataset(ctx, generateTestSeries("AAPL", 30), SequenceRequest{})
	require.NoError(t, err)

	_, err = svc.PrepareWithState(ctx, generateTestSeries("AAPL", 3), SequenceRequest{}, trained.Scaler)
	assert.ErrorIs(t, err, utils.ErrInsufficientHistory)

	_, err = svc.PrepareWithState(ctx, models.PriceSeries{Symbol: "AAPL"}, SequenceRequest{}, trained.Scaler)
	assert.ErrorIs(t, err, utils.ErrEmptyInput)
}

func TestPrepareSymbols(t *testing.T) {
	svc := newTestService(t)
	batch := []models.PriceSeries{
		generateTestSeries("AAPL", 40),
		generateTestSeries("MSFT", 50),
		generateTestSeries("THYAO", 60),
	}

	results, err := svc.PrepareSymbols(context.Background(), batch, SequenceRequest{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, series := range batch {
		result := results[series.Symbol]
		require.NotNil(t, result)
		assert.Equal(t, series.Symbol, result.Tree.Symbol)
		assert.Equal(t, series.Len()-svc.WarmupRows(), result.Tree.Data.Features.Len())
		assert.Equal(t, series.Len()-5, result.Sequence.Train.Len())
	}
}

func TestPrepareSymbols_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.PrepareSymbols(ctx, []models.PriceSeries{
		generateTestSeries("AAPL", 40),
		generateTestSeries("AAPL", 40),
	}, SequenceRequest{})
	assert.ErrorIs(t, err, utils.ErrValidation)

	_, err = svc.PrepareSymbols(ctx, []models.PriceSeries{
		generateTestSeries("AAPL", 40),
		generateTestSeries("SHORT", 8),
	}, SequenceRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHORT")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.PrepareSymbols(cancelled, []models.PriceSeries{generateTestSeries("AAPL", 40)}, SequenceRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreparationService_Instrumentation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reg := prometheus.NewRegistry()
	rec := metrics.NewWithRegistry(reg, reg)

	svc := newTestService(t,
		WithTracer(telemetry.NewPipelineTracerWith(tp)),
		WithMetrics(rec),
	)

	series := generateTestSeries("AAPL", 30)
	series.Bars[2].Close = math.NaN()
	_, err := svc.PrepareTreeDataset(context.Background(), series, "")
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{"pipeline.clean", "pipeline.enrich", "pipeline.split"}, names)

	count, err := testutil.GatherAndCount(reg, "borsa_aslani_pipeline_rows_removed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "clean and warmup series")

	_, err = svc.PrepareTreeDataset(context.Background(), generateTestSeries("AAPL", 5), "")
	require.Error(t, err)
	count, err = testutil.GatherAndCount(reg, "borsa_aslani_pipeline_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSplitByDate(t *testing.T) {
	series := generateTestSeries("AAPL", 10)

	train, test := SplitByDate(series, series.Bars[7].Date)
	assert.Equal(t, 7, train.Len())
	assert.Equal(t, 3, test.Len())
	assert.Equal(t, "AAPL", test.Symbol)
	assert.Equal(t, series.Bars[7].Date, test.Bars[0].Date)

	train, test = SplitByDate(series, testStart.AddDate(1, 0, 0))
	assert.Equal(t, 10, train.Len())
	assert.Zero(t, test.Len())
}
