package density

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/YuminosukeSato/softclust/core/dataset"
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"github.com/YuminosukeSato/softclust/pkg/log"
	"github.com/YuminosukeSato/softclust/sklearn/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// fixedClusterer は決められた割り当てを返すテスト用のクラスタラー
type fixedClusterer struct {
	k          int
	assign     []int
	err        error
	panicValue interface{}
	invert     bool
}

func (f *fixedClusterer) Partition(ds *dataset.Dataset) (model.Partition, error) {
	if f.panicValue != nil {
		panic(f.panicValue)
	}
	if f.err != nil {
		return model.Partition{}, f.err
	}
	return model.Partition{NumClusters: f.k, Assignments: append([]int(nil), f.assign...)}, nil
}

// AssignCluster は最初の属性が閾値 0 より大きければクラスタ1。invert なら逆
func (f *fixedClusterer) AssignCluster(instance []float64) (int, error) {
	if (instance[0] > 0) != f.invert {
		return 1, nil
	}
	return 0, nil
}

func mustSchema(t *testing.T, attrs ...dataset.Attribute) *dataset.Schema {
	t.Helper()
	s, err := dataset.NewSchema(attrs...)
	require.NoError(t, err)
	return s
}

func mustDataset(t *testing.T, s *dataset.Schema, rows [][]float64) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(s, rows)
	require.NoError(t, err)
	return ds
}

// wideSchema は p 個の数値属性を持つスキーマ
func wideSchema(t *testing.T, p int) *dataset.Schema {
	t.Helper()
	attrs := make([]dataset.Attribute, p)
	for i := range attrs {
		attrs[i] = dataset.NewNumeric(string(rune('a'+i%26)) + strings.Repeat("'", i/26))
	}
	return mustSchema(t, attrs...)
}

func quietLogger() log.Logger {
	logger, _ := log.NewTestLogger(log.LevelError)
	return logger
}

// mixedFixture は数値属性2つとシンボル属性1つ、3クラスタのデータ
func mixedFixture(t *testing.T) (*dataset.Dataset, *fixedClusterer) {
	t.Helper()
	s := mustSchema(t,
		dataset.NewNumeric("x"),
		dataset.NewSymbolic("color", "red", "green", "blue"),
		dataset.NewNumeric("y"),
	)
	ds := mustDataset(t, s, [][]float64{
		{-5.0, 0, 1.0},
		{-4.0, 0, 1.5},
		{-6.0, 1, 0.5},
		{0.0, 1, 5.0},
		{0.5, 1, 6.0},
		{-0.5, 2, 5.5},
		{0.2, 1, dataset.Missing()},
		{5.0, 2, -3.0},
		{6.0, 2, -2.0},
		{dataset.Missing(), dataset.Missing(), -2.5},
	})
	return ds, &fixedClusterer{k: 3, assign: []int{0, 0, 0, 1, 1, 1, 1, 2, 2, 2}}
}

func fitMixed(t *testing.T, opts ...Option) (*DistributionClusterer, *dataset.Dataset) {
	t.Helper()
	ds, fc := mixedFixture(t)
	m := NewDistributionClusterer(append([]Option{WithClusterer(fc), WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, m.Fit(ds))
	return m, ds
}

func captureWarnings(t *testing.T) func() []error {
	t.Helper()
	var mu sync.Mutex
	var got []error
	errors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, w)
	})
	t.Cleanup(func() { errors.SetWarningHandler(func(error) {}) })
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), got...)
	}
}

func TestZeroVarianceIsClamped(t *testing.T) {
	s := mustSchema(t, dataset.NewNumeric("v"))
	ds := mustDataset(t, s, [][]float64{{1.0}, {1.0}, {1.0}, {5.0}, {7.0}})
	logger, _ := log.NewTestLogger(log.LevelDebug)

	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 2, assign: []int{0, 0, 0, 1, 1}}),
		WithLogger(logger),
	)
	require.NoError(t, m.Fit(ds))

	n0, ok, err := m.Normal(0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, n0.Mean)
	assert.Equal(t, DefaultMinStdDev, n0.StdDev)

	n1, ok, err := m.Normal(1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 6.0, n1.Mean, 1e-12)
	assert.InDelta(t, 1.0, n1.StdDev, 1e-12)

	d, err := m.DensityForInstance([]float64{1.0})
	require.NoError(t, err)
	assert.False(t, math.IsInf(d, 0))
	assert.False(t, math.IsNaN(d))

	assert.True(t, logger.ContainsMessage("standard deviation clamped"))
	assert.True(t, logger.ContainsField(log.AttributeKey, "v"))
	assert.True(t, logger.ContainsField(log.ClampedKey, float64(1)))
}

func TestSymbolicCountsAreSmoothed(t *testing.T) {
	s := mustSchema(t, dataset.NewSymbolic("s", "a", "b", "c"))
	ds := mustDataset(t, s, [][]float64{{0}, {0}, {2}, {1}})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 2, assign: []int{0, 0, 0, 1}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, m.Fit(ds))

	est, err := m.Discrete(0, 0)
	require.NoError(t, err)
	for s, want := range []float64{3.0 / 6, 1.0 / 6, 2.0 / 6} {
		p, err := est.Probability(s)
		require.NoError(t, err)
		assert.InDelta(t, want, p, 1e-12)
	}

	// 返されるのはコピー
	require.NoError(t, est.AddValue(1, 100))
	again, err := m.Discrete(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, again.SumOfCounts())
}

func TestMissingValueContributesNoFactor(t *testing.T) {
	assign := []int{0, 0, 1, 1, 1}
	full := mustSchema(t, dataset.NewNumeric("x"), dataset.NewSymbolic("c", "p", "q"))
	reduced := mustSchema(t, dataset.NewSymbolic("c", "p", "q"))

	withX := mustDataset(t, full, [][]float64{{1, 0}, {2, 0}, {8, 1}, {9, 1}, {10, 0}})
	withoutX := mustDataset(t, reduced, [][]float64{{0}, {0}, {1}, {1}, {0}})

	a := NewDistributionClusterer(WithClusterer(&fixedClusterer{k: 2, assign: assign}), WithLogger(quietLogger()))
	b := NewDistributionClusterer(WithClusterer(&fixedClusterer{k: 2, assign: assign}), WithLogger(quietLogger()))
	require.NoError(t, a.Fit(withX))
	require.NoError(t, b.Fit(withoutX))

	for _, sym := range []float64{0, 1} {
		da, err := a.DensityForInstance([]float64{dataset.Missing(), sym})
		require.NoError(t, err)
		db, err := b.DensityForInstance([]float64{sym})
		require.NoError(t, err)
		assert.InDelta(t, db, da, 1e-15)

		pa, err := a.DistributionForInstance([]float64{dataset.Missing(), sym})
		require.NoError(t, err)
		pb, err := b.DistributionForInstance([]float64{sym})
		require.NoError(t, err)
		assert.InDeltaSlice(t, pb, pa, 1e-15)
	}

	// 全属性が欠損なら事後分布は事前分布に一致する
	post, err := a.DistributionForInstance([]float64{dataset.Missing(), dataset.Missing()})
	require.NoError(t, err)
	priors, err := a.Priors()
	require.NoError(t, err)
	assert.InDeltaSlice(t, priors, post, 1e-15)
}

func TestModalInstanceRanksHighest(t *testing.T) {
	m, _ := fitMixed(t)
	k, err := m.NumberOfClusters()
	require.NoError(t, err)
	require.Equal(t, 3, k)

	for c := 0; c < k; c++ {
		inst := make([]float64, 3)
		for _, a := range []int{0, 2} {
			n, ok, err := m.Normal(c, a)
			require.NoError(t, err)
			require.True(t, ok)
			inst[a] = n.Mean
		}
		est, err := m.Discrete(c, 1)
		require.NoError(t, err)
		best := 0
		for s := 1; s < est.NumSymbols(); s++ {
			if est.Count(s) > est.Count(best) {
				best = s
			}
		}
		inst[1] = float64(best)

		dist, err := m.DistributionForInstance(inst)
		require.NoError(t, err)
		assert.Equal(t, c, floats.MaxIdx(dist), "cluster %d: %v", c, dist)

		got, err := m.ClusterInstance(inst)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestFittedModelInvariants(t *testing.T) {
	m, ds := fitMixed(t, WithMinStdDev(0.25))

	priors, err := m.Priors()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, floats.Sum(priors), 1e-12)
	for _, p := range priors {
		assert.GreaterOrEqual(t, p, 0.0)
	}
	assert.InDeltaSlice(t, []float64{0.3, 0.4, 0.3}, priors, 1e-12)

	counts, err := m.ClusterCounts()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 3}, counts)

	schema, err := m.Schema()
	require.NoError(t, err)
	assert.True(t, schema.Equal(ds.Schema()))

	for c := 0; c < 3; c++ {
		est, err := m.Discrete(c, 1)
		require.NoError(t, err)
		sum := 0.0
		for s := 0; s < est.NumSymbols(); s++ {
			p, err := est.Probability(s)
			require.NoError(t, err)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-12)

		for _, a := range []int{0, 2} {
			n, _, err := m.Normal(c, a)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n.StdDev, 0.25)
			assert.True(t, errors.IsFinite(n.StdDev))
		}
	}

	queries := [][]float64{
		{-5, 0, 1},
		{0, 1, 5},
		{5.5, 2, -2.5},
		{1e6, 0, -1e6},
		{dataset.Missing(), 2, dataset.Missing()},
	}
	for i := 0; i < ds.NumInstances(); i++ {
		queries = append(queries, ds.Instance(i))
	}
	for _, q := range queries {
		dist, err := m.DistributionForInstance(q)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, floats.Sum(dist), 1e-9, "query %v", q)
		for _, p := range dist {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
		}

		again, err := m.DistributionForInstance(q)
		require.NoError(t, err)
		assert.Equal(t, dist, again)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	a, _ := fitMixed(t)
	b, _ := fitMixed(t)

	pa, _ := a.Priors()
	pb, _ := b.Priors()
	assert.Equal(t, pa, pb)

	for c := 0; c < 3; c++ {
		for _, attr := range []int{0, 2} {
			na, _, _ := a.Normal(c, attr)
			nb, _, _ := b.Normal(c, attr)
			assert.Equal(t, na, nb)
		}
		da, _ := a.Discrete(c, 1)
		db, _ := b.Discrete(c, 1)
		assert.Equal(t, da, db)
	}
	assert.Equal(t, a.String(), b.String())
}

func TestDensityAndLogDensityAgree(t *testing.T) {
	m, _ := fitMixed(t)
	for _, q := range [][]float64{{-5, 0, 1}, {0.1, 1, 5.2}, {dataset.Missing(), 2, -2}} {
		d, err := m.DensityForInstance(q)
		require.NoError(t, err)
		ld, err := m.LogDensityForInstance(q)
		require.NoError(t, err)
		assert.InDelta(t, math.Log(d), ld, 1e-9)
		assert.Greater(t, d, 0.0)
	}
}

func TestUnderflowFallsBackToUniform(t *testing.T) {
	warnings := captureWarnings(t)

	s := mustSchema(t, dataset.NewNumeric("v"))
	ds := mustDataset(t, s, [][]float64{{0}, {0.1}, {10}, {10.1}})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 3, assign: []int{0, 0, 1, 1}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, m.Fit(ds))

	require.Len(t, warnings(), 1)
	var empty *errors.EmptyClusterWarning
	require.True(t, errors.As(warnings()[0], &empty))
	assert.Equal(t, 2, empty.Cluster)
	assert.Equal(t, 3, empty.Total)

	n, ok, err := m.Normal(2, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Normal{}, n)

	outlier := []float64{1e6}
	d, err := m.DensityForInstance(outlier)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)

	dist, err := m.DistributionForInstance(outlier)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0}, dist)

	c, err := m.ClusterInstance(outlier)
	require.NoError(t, err)
	assert.Equal(t, 0, c, "ties resolve to the lowest index")

	ld, err := m.LogDensityForInstance(outlier)
	require.NoError(t, err)
	assert.False(t, math.IsInf(ld, 0))
	assert.Less(t, ld, -1e6)
}

func TestOverflowNormalizesInLogSpace(t *testing.T) {
	const p = 60
	s := wideSchema(t, p)
	zeros := make([]float64, p)
	ones := make([]float64, p)
	for i := range ones {
		ones[i] = 1
	}
	ds := mustDataset(t, s, [][]float64{zeros, zeros, ones, ones})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 2, assign: []int{0, 0, 1, 1}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, m.Fit(ds))

	// σ=1e-6 の密度 ≈ 4e5 を60属性分掛けるとオーバーフローする
	d, err := m.DensityForInstance(zeros)
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))

	dist, err := m.DistributionForInstance(zeros)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, dist, 1e-12)
}

func TestDensityStaysFiniteWhenProductOverflowsBeforeZero(t *testing.T) {
	const p = 70
	s := wideSchema(t, p)
	zeros := make([]float64, p)
	ds := mustDataset(t, s, [][]float64{zeros, zeros})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 1, assign: []int{0, 0}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, m.Fit(ds))

	// 先頭69属性の積は Inf、最後の属性の密度は0にアンダーフローする
	query := make([]float64, p)
	query[p-1] = 1.0

	d, err := m.DensityForInstance(query)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(d))
	assert.Equal(t, 0.0, d)

	ld, err := m.LogDensityForInstance(query)
	require.NoError(t, err)
	assert.Less(t, ld, -1e11)

	dist, err := m.DistributionForInstance(query)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, dist)
}

func TestFitRejectsInvalidLiteralSchema(t *testing.T) {
	s := &dataset.Schema{Attributes: []dataset.Attribute{dataset.NewNumeric("x"), dataset.NewNumeric("x")}}
	ds := mustDataset(t, s, [][]float64{{1, 2}, {3, 4}})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 1, assign: []int{0, 0}}),
		WithLogger(quietLogger()),
	)

	err := m.Fit(ds)
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Equal(t, "x", schemaErr.Attribute)
	assert.False(t, m.IsFitted())

	_, err = m.DensityForInstance([]float64{1, 2})
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestFitErrors(t *testing.T) {
	ds, fc := mixedFixture(t)

	t.Run("no clusterer", func(t *testing.T) {
		err := NewDistributionClusterer(WithLogger(quietLogger())).Fit(ds)
		var cfg *errors.ConfigurationError
		assert.True(t, errors.As(err, &cfg))
		assert.True(t, errors.Is(err, errors.ErrNoClusterer))
	})

	t.Run("invalid min std dev", func(t *testing.T) {
		for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			err := NewDistributionClusterer(WithClusterer(fc), WithMinStdDev(v)).Fit(ds)
			var vErr *errors.ValidationError
			assert.True(t, errors.As(err, &vErr), "min_std_dev=%v", v)
		}
	})

	t.Run("empty data", func(t *testing.T) {
		m := NewDistributionClusterer(WithClusterer(fc), WithLogger(quietLogger()))
		assert.True(t, errors.Is(m.Fit(nil), errors.ErrEmptyData))
		empty := mustDataset(t, ds.Schema(), nil)
		assert.True(t, errors.Is(m.Fit(empty), errors.ErrEmptyData))
	})

	t.Run("wrapped clusterer error propagates", func(t *testing.T) {
		cause := errors.New("did not converge")
		m := NewDistributionClusterer(WithClusterer(&fixedClusterer{err: cause}), WithLogger(quietLogger()))
		err := m.Fit(ds)
		assert.True(t, errors.Is(err, cause))
		assert.Contains(t, err.Error(), "did not converge")
	})

	t.Run("wrapped clusterer panic", func(t *testing.T) {
		m := NewDistributionClusterer(WithClusterer(&fixedClusterer{panicValue: "boom"}), WithLogger(quietLogger()))
		err := m.Fit(ds)
		var pe *errors.PanicError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "boom", pe.PanicValue)
	})

	t.Run("overflowing mean", func(t *testing.T) {
		s := mustSchema(t, dataset.NewNumeric("v"))
		huge := mustDataset(t, s, [][]float64{{1e308}, {1e308}})
		m := NewDistributionClusterer(
			WithClusterer(&fixedClusterer{k: 1, assign: []int{0, 0}}),
			WithLogger(quietLogger()),
		)
		err := m.Fit(huge)
		var ni *errors.NumericalInstabilityError
		require.True(t, errors.As(err, &ni), "got %v", err)
		assert.Equal(t, 0, ni.Iteration)
		assert.False(t, m.IsFitted())
	})

	invalid := []struct {
		name string
		fc   *fixedClusterer
	}{
		{"zero clusters", &fixedClusterer{k: 0, assign: fc.assign}},
		{"short assignment", &fixedClusterer{k: 3, assign: fc.assign[:5]}},
		{"cluster out of range", &fixedClusterer{k: 2, assign: fc.assign}},
		{"negative cluster", &fixedClusterer{k: 3, assign: append([]int{-1}, fc.assign[1:]...)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDistributionClusterer(WithClusterer(tt.fc), WithLogger(quietLogger())).Fit(ds)
			var me *errors.ModelError
			assert.True(t, errors.As(err, &me), "got %v", err)
		})
	}
}

func TestFailedFitKeepsPreviousState(t *testing.T) {
	m, ds := fitMixed(t)
	before := m.String()
	priors, err := m.Priors()
	require.NoError(t, err)

	m.SetClusterer(&fixedClusterer{err: errors.New("broken")})
	require.Error(t, m.Fit(ds))
	m.SetClusterer(&fixedClusterer{k: 3, assign: []int{0, 1}})
	require.Error(t, m.Fit(ds))

	assert.True(t, m.IsFitted())
	after, err := m.Priors()
	require.NoError(t, err)
	assert.Equal(t, priors, after)

	// レポートはラップ中のクラスタラーではなく学習時のものを示す
	assert.Equal(t, before, m.String())

	fresh := NewDistributionClusterer(WithClusterer(&fixedClusterer{err: errors.New("broken")}), WithLogger(quietLogger()))
	require.Error(t, fresh.Fit(ds))
	assert.False(t, fresh.IsFitted())
	_, err = fresh.NumberOfClusters()
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestRefitReplacesState(t *testing.T) {
	m, ds := fitMixed(t)
	m.SetClusterer(&fixedClusterer{k: 2, assign: []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}})
	require.NoError(t, m.Fit(ds))

	k, err := m.NumberOfClusters()
	require.NoError(t, err)
	assert.Equal(t, 2, k)
	priors, err := m.Priors()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, priors, 1e-12)
}

func TestInferenceErrors(t *testing.T) {
	var nf *errors.NotFittedError
	unfitted := NewDistributionClusterer()

	_, err := unfitted.DensityForInstance([]float64{1})
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.LogDensityForInstance([]float64{1})
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.DistributionForInstance([]float64{1})
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.ClusterInstance([]float64{1})
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.AssignCluster([]float64{1})
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.NumberOfClusters()
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.Priors()
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.DistributionForMatrix(mat.NewDense(1, 1, nil))
	assert.True(t, errors.As(err, &nf))
	_, err = unfitted.ScoreSamples(mat.NewDense(1, 1, nil))
	assert.True(t, errors.As(err, &nf))

	m, _ := fitMixed(t)

	var dimErr *errors.DimensionError
	_, err = m.DistributionForInstance([]float64{1, 0})
	assert.True(t, errors.As(err, &dimErr))
	_, err = m.DensityForInstance([]float64{1, 0, 1, 1})
	assert.True(t, errors.As(err, &dimErr))
	_, err = m.DistributionForMatrix(mat.NewDense(2, 2, nil))
	assert.True(t, errors.As(err, &dimErr))

	var sErr *errors.SchemaError
	_, err = m.DistributionForInstance([]float64{1, 3, 1})
	assert.True(t, errors.As(err, &sErr))
	_, err = m.LogDensityForInstance([]float64{1, 0.5, 1})
	assert.True(t, errors.As(err, &sErr))
	_, err = m.ScoreSamples(mat.NewDense(1, 3, []float64{0, 7, 0}))
	assert.True(t, errors.As(err, &sErr))

	_, _, err = m.Normal(0, 1)
	assert.True(t, errors.As(err, &sErr))
	_, err = m.Discrete(0, 0)
	assert.True(t, errors.As(err, &sErr))

	var vErr *errors.ValueError
	_, _, err = m.Normal(3, 0)
	assert.True(t, errors.As(err, &vErr))
	_, err = m.Discrete(0, 9)
	assert.True(t, errors.As(err, &vErr))
}

func TestAssignClusterDelegates(t *testing.T) {
	m, _ := fitMixed(t)

	c, err := m.AssignCluster([]float64{3, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, c)
	c, err = m.AssignCluster([]float64{-3, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	// 再学習するまでは学習時のクラスタラーに委譲する
	m.SetClusterer(&fixedClusterer{invert: true})
	c, err = m.AssignCluster([]float64{3, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	m.SetClusterer(nil)
	c, err = m.AssignCluster([]float64{3, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	_, err = m.AssignCluster([]float64{3, 0})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestBatchInference(t *testing.T) {
	for _, threshold := range []int{1, 1000} {
		m, ds := fitMixed(t, WithParallelThreshold(threshold))
		X := ds.Matrix()

		dist, err := m.DistributionForMatrix(X)
		require.NoError(t, err)
		scores, err := m.ScoreSamples(X)
		require.NoError(t, err)

		rows, cols := dist.Dims()
		assert.Equal(t, ds.NumInstances(), rows)
		assert.Equal(t, 3, cols)
		for i := 0; i < rows; i++ {
			want, err := m.DistributionForInstance(ds.Instance(i))
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, mat.Row(nil, i, dist), 1e-15)

			ld, err := m.LogDensityForInstance(ds.Instance(i))
			require.NoError(t, err)
			assert.InDelta(t, ld, scores.AtVec(i), 1e-15)
		}
	}
}

func TestConcurrentInference(t *testing.T) {
	m, ds := fitMixed(t)
	want, err := m.DistributionForInstance(ds.Instance(0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				got, err := m.DistributionForInstance(ds.Instance(0))
				if err != nil {
					errs <- err
					return
				}
				if !floats.Equal(want, got) {
					errs <- errors.New("distribution changed between calls")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFitLogging(t *testing.T) {
	ds, fc := mixedFixture(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	m := NewDistributionClusterer(WithClusterer(fc), WithLogger(logger))
	require.NoError(t, m.Fit(ds))

	assert.True(t, logger.ContainsMessage("fit started"))
	assert.True(t, logger.ContainsMessage("fit completed"))
	assert.True(t, logger.ContainsField(log.ClustersKey, float64(3)))
	assert.True(t, logger.ContainsField(log.SamplesKey, float64(10)))
	assert.True(t, logger.ContainsField(log.MissingKey, float64(3)))
	assert.True(t, logger.ContainsField(log.WrappedModelKey, "density.fixedClusterer"))

	logger.Clear()
	m.SetClusterer(&fixedClusterer{err: errors.New("broken")})
	require.Error(t, m.Fit(ds))
	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "ERROR", entries[len(entries)-1]["level"])
	assert.Equal(t, "wrapped clusterer failed", entries[len(entries)-1]["message"])
}

func TestReport(t *testing.T) {
	captureWarnings(t)

	unfitted := NewDistributionClusterer()
	assert.Equal(t, "DistributionClusterer(clusterer=none, min_std_dev=1e-06): not fitted", unfitted.String())

	s := mustSchema(t, dataset.NewNumeric("temp"), dataset.NewSymbolic("outlook", "sunny", "rainy"))
	ds := mustDataset(t, s, [][]float64{{1, 0}, {1, 0}, {3, 1}})
	m := NewDistributionClusterer(
		WithClusterer(&fixedClusterer{k: 3, assign: []int{0, 0, 1}}),
		WithLogger(quietLogger()),
	)
	require.NoError(t, m.Fit(ds))

	report := m.String()
	assert.Contains(t, report, "Wrapped clusterer: density.fixedClusterer")
	assert.Contains(t, report, "Cluster: 0 Prior probability: 0.6667")
	assert.Contains(t, report, "Cluster: 1 Prior probability: 0.3333")
	assert.Contains(t, report, "Cluster: 2 Prior probability: 0.0000")
	assert.Contains(t, report, "Normal Distribution. Mean = 1.0000 StdDev = 0.0000")
	assert.Contains(t, report, "Discrete Estimator. Counts = 3 1  (Total = 4)")
	assert.Contains(t, report, "Normal Distribution. No training instances")
	assert.Equal(t, 3, strings.Count(report, "Attribute: temp\n"))
	assert.Equal(t, 3, strings.Count(report, "Attribute: outlook\n"))
	assert.Less(t, strings.Index(report, "Attribute: temp"), strings.Index(report, "Attribute: outlook"))
}

func TestReportUsesClustererStringer(t *testing.T) {
	ds, _ := mixedFixture(t)
	kmeans := cluster.NewMiniBatchKMeans(
		cluster.WithKMeansNClusters(3),
		cluster.WithKMeansRandomState(11),
		cluster.WithKMeansLogger(quietLogger()),
	)
	m := NewDistributionClusterer(WithClusterer(kmeans), WithLogger(quietLogger()))
	require.NoError(t, m.Fit(ds))
	assert.Contains(t, m.String(), "Wrapped clusterer: MiniBatchKMeans(n_clusters=3")
}

func TestWrapsMiniBatchKMeans(t *testing.T) {
	s := mustSchema(t, dataset.NewNumeric("x"), dataset.NewNumeric("y"))
	ds := mustDataset(t, s, [][]float64{
		{0.0, 0.1}, {0.2, -0.1}, {-0.1, 0.0}, {0.1, 0.2}, {-0.2, -0.2},
		{10.0, 10.1}, {10.2, 9.9}, {9.9, 10.0}, {10.1, 10.2}, {9.8, 9.8},
	})
	kmeans := cluster.NewMiniBatchKMeans(
		cluster.WithKMeansNClusters(2),
		cluster.WithKMeansRandomState(5),
		cluster.WithKMeansLogger(quietLogger()),
	)
	m := NewDistributionClusterer(WithClusterer(kmeans), WithLogger(quietLogger()))
	require.NoError(t, m.Fit(ds))

	for i := 0; i < ds.NumInstances(); i++ {
		hard, err := m.AssignCluster(ds.Instance(i))
		require.NoError(t, err)
		soft, err := m.ClusterInstance(ds.Instance(i))
		require.NoError(t, err)
		assert.Equal(t, hard, soft, "instance %d", i)
	}

	var buf bytes.Buffer
	require.NoError(t, PlotAttribute(m, 0, &buf, "svg"))
	assert.Contains(t, buf.String(), "<svg")
}

func TestPlotAttributeErrors(t *testing.T) {
	var buf bytes.Buffer

	err := PlotAttribute(NewDistributionClusterer(), 0, &buf, "svg")
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	m, _ := fitMixed(t)
	var vErr *errors.ValidationError
	assert.True(t, errors.As(PlotAttribute(m, 1, &buf, "svg"), &vErr))
	assert.True(t, errors.As(PlotAttribute(m, 7, &buf, "svg"), &vErr))
	assert.Error(t, PlotAttribute(m, 0, &buf, "bogus"))
}
