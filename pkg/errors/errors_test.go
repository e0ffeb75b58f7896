package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid partition",
			err:     fmt.Errorf("test error"),
			wantMsg: "softclust: Fit: invalid partition: test error",
		},
		{
			name:    "without original error",
			op:      "DensityForInstance",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "softclust: DensityForInstance: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			assert.Contains(t, formatted, "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("DistributionForInstance", 3, 2, 1)

	want := "softclust: DistributionForInstance: dimension mismatch on axis 1 (attributes). Expected 3, got 2"
	assert.Equal(t, want, err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestNewSchemaError(t *testing.T) {
	err := NewSchemaError("DiscreteEstimator.Probability", "color", "symbol index out of range [0, 3)", 5)
	assert.Equal(t, "softclust: DiscreteEstimator.Probability: schema mismatch for attribute 'color': symbol index out of range [0, 3) (got: 5)", err.Error())

	noAttr := NewSchemaError("Schema.CheckInstance", "", "schemas differ", "x")
	assert.Equal(t, "softclust: Schema.CheckInstance: schema mismatch: schemas differ (got: x)", noAttr.Error())

	var schemaErr *SchemaError
	assert.True(t, As(noAttr, &schemaErr))
}

func TestNewConfigurationError(t *testing.T) {
	err := NewConfigurationError("DistributionClusterer", "clusterer", ErrNoClusterer)

	assert.Equal(t, "softclust: DistributionClusterer: invalid configuration of 'clusterer': no clusterer has been set", err.Error())
	assert.True(t, Is(err, ErrNoClusterer))

	var cfgErr *ConfigurationError
	require.True(t, As(err, &cfgErr))
	assert.Equal(t, "clusterer", cfgErr.Setting)
}

func TestNewEstimationError(t *testing.T) {
	err := NewEstimationError("DistributionClusterer.Fit", "cluster priors sum to zero")
	assert.Equal(t, "softclust: DistributionClusterer.Fit: estimation failed: cluster priors sum to zero", err.Error())

	var estErr *EstimationError
	assert.True(t, As(err, &estErr))
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("DistributionClusterer", "DensityForInstance")

	want := "softclust: DistributionClusterer: this model is not fitted yet. Call Fit() before using DensityForInstance()"
	assert.Equal(t, want, err.Error())

	var notFittedErr *NotFittedError
	assert.True(t, As(err, &notFittedErr))
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("min_std_dev", "must be positive and finite", -1.0)
	assert.Equal(t, "softclust: validation failed for parameter 'min_std_dev': must be positive and finite (got: -1)", err.Error())
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "in DistributionClusterer.Fit")

	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in DistributionClusterer.Fit")

	wrappedf := Wrapf(ErrEmptyData, "in %s: expected %d rows", "Fit", 1)
	assert.True(t, Is(wrappedf, ErrEmptyData))
	assert.True(t, strings.Contains(wrappedf.Error(), "in Fit: expected 1 rows"))
}

func TestWarningDispatch(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewEmptyClusterWarning("MiniBatchKMeans", 2, 3))
	require.Len(t, got, 1)
	assert.Equal(t, "MiniBatchKMeans assigned no training instances to cluster 2 of 3; its prior is zero", got[0].Error())
}

func TestWarningZerologSink(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	SetZerologWarnFunc(func(w error) {
		ev := logger.Warn()
		if m, ok := w.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(w.Error())
	})
	defer SetZerologWarnFunc(nil)

	Warn(NewDegenerateVarianceWarning(0, "x", 0, 1e-6))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DegenerateVarianceWarning", entry["type"])
	assert.Equal(t, "x", entry["attribute"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNumericalHelpers(t *testing.T) {
	assert.NoError(t, CheckScalar("op", 1.5, 0))
	assert.Error(t, CheckScalar("op", math.NaN(), 0))
	assert.Error(t, CheckNumericalStability("op", []float64{1, math.Inf(1)}, 2))
	assert.NoError(t, CheckNumericalStability("op", []float64{1, 2}, 2))

	assert.True(t, IsFinite(0))
	assert.False(t, IsFinite(math.Inf(-1)))

	assert.True(t, math.IsInf(LogSumExp(nil), -1))
	assert.True(t, math.IsInf(LogSumExp([]float64{math.Inf(-1), math.Inf(-1)}), -1))
	assert.InDelta(t, math.Log(3), LogSumExp([]float64{0, 0, 0}), 1e-12)
	// exp(-1000) underflows, but the log-space sum must not
	assert.InDelta(t, -1000+math.Log(2), LogSumExp([]float64{-1000, -1000}), 1e-9)
}

func TestSafeDivide(t *testing.T) {
	assert.Equal(t, 2.0, SafeDivide(4, 2, -1))
	assert.Equal(t, -1.0, SafeDivide(4, 0, -1))
	assert.Equal(t, 0.0, SafeDivide(math.Inf(1), 1, 0))
}
