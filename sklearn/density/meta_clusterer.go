package density

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/YuminosukeSato/softclust/core/dataset"
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/core/parallel"
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"github.com/YuminosukeSato/softclust/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var _ model.DensityEstimator = (*DistributionClusterer)(nil)

// DistributionClusterer はハードクラスタラーをラップし、クラスタごとに属性の分布を推定して
// 確率的な密度推定器に変換する。
//
// 各クラスタについて、シンボル属性には平滑化された DiscreteEstimator、数値属性には
// 正規分布を当てはめ、属性間の独立を仮定した尤度に事前確率を掛けて重みとする。
// 欠損値は統計量の更新にも尤度の積にも寄与しない。
type DistributionClusterer struct {
	model.BaseEstimator

	// 設定
	clusterer         model.HardClusterer
	minStdDev         float64
	parallelThreshold int
	logger            log.Logger

	// Fit が構築し、成功時にのみ差し替える
	mu    sync.RWMutex
	state *fittedState
}

// fittedState は学習結果。差し替え後は変更されない
type fittedState struct {
	schema      *dataset.Schema
	clusterer   model.HardClusterer // この状態を作ったクラスタラー
	wrapped     string
	numClusters int
	priors      []float64
	counts      []int
	discrete    [][]*DiscreteEstimator // [cluster][attribute]、数値属性は nil
	normals     [][]Normal             // [cluster][attribute]、シンボル属性と空クラスタはゼロ値
}

// NewDistributionClusterer は新しい DistributionClusterer を作成
func NewDistributionClusterer(opts ...Option) *DistributionClusterer {
	m := &DistributionClusterer{
		minStdDev:         DefaultMinStdDev,
		parallelThreshold: DefaultParallelThreshold,
		logger:            log.GetLoggerWithName("density"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetLoggerWithName("density")
	}
	return m
}

// SetClusterer はラップするクラスタラーを差し替える。学習済みの状態は次の Fit まで保持される
func (m *DistributionClusterer) SetClusterer(c model.HardClusterer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusterer = c
}

// Clusterer はラップしているクラスタラーを返す
func (m *DistributionClusterer) Clusterer() model.HardClusterer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clusterer
}

// MinStdDev は標準偏差の下限を返す
func (m *DistributionClusterer) MinStdDev() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minStdDev
}

// Fit はラップしたクラスタラーでデータを分割し、クラスタごとの分布を推定する。
// 失敗した場合、以前の学習状態（または未学習状態）はそのまま残る。
func (m *DistributionClusterer) Fit(ds *dataset.Dataset) error {
	const op = "DistributionClusterer.Fit"

	m.mu.RLock()
	clusterer, minStdDev, logger := m.clusterer, m.minStdDev, m.logger
	m.mu.RUnlock()

	if clusterer == nil {
		return errors.NewConfigurationError("DistributionClusterer", "clusterer", errors.ErrNoClusterer)
	}
	if minStdDev <= 0 || !errors.IsFinite(minStdDev) {
		return errors.NewValidationError("min_std_dev", "must be positive and finite", minStdDev)
	}
	if ds == nil || ds.NumInstances() == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if err := ds.Validate(); err != nil {
		return errors.Wrap(err, op)
	}

	start := time.Now()
	wrapped := typeName(clusterer)
	logger = logger.With(
		log.ModelNameKey, "DistributionClusterer",
		log.WrappedModelKey, wrapped,
	)
	logger.Debug("fit started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, ds.NumInstances(),
		log.FeaturesKey, ds.NumAttributes(),
		log.MinStdDevKey, minStdDev,
	)

	part, err := partition(clusterer, ds)
	if err != nil {
		logger.Error("wrapped clusterer failed", err, log.OperationKey, log.OperationPartition)
		return errors.Wrapf(err, "%s: %s", op, wrapped)
	}
	if err := checkPartition(op, part, ds.NumInstances()); err != nil {
		logger.Error("invalid partition", err, log.OperationKey, log.OperationPartition)
		return err
	}

	st, diag, err := estimate(ds, part, minStdDev)
	if err != nil {
		logger.Error("estimation failed", err, log.ErrorCodeKey, log.ErrorEstimation)
		return err
	}
	st.clusterer = clusterer
	st.wrapped = describe(clusterer)

	m.mu.Lock()
	m.state = st
	m.SetFitted()
	m.mu.Unlock()

	for _, w := range diag.clamped {
		logger.Debug("standard deviation clamped",
			log.ClusterKey, w.Cluster,
			log.AttributeKey, w.Attribute,
			log.StdDevKey, w.StdDev,
			log.MinStdDevKey, w.Floor,
		)
	}
	for _, c := range diag.empty {
		errors.Warn(errors.NewEmptyClusterWarning(wrapped, c, st.numClusters))
	}

	logger.Info("fit completed",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, ds.NumInstances(),
		log.FeaturesKey, ds.NumAttributes(),
		log.ClustersKey, st.numClusters,
		log.EmptyClustersKey, len(diag.empty),
		log.ClampedKey, len(diag.clamped),
		log.MissingKey, ds.CountMissing(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// partition はラップしたクラスタラーを呼び出し、panic を PanicError に変換する
func partition(c model.HardClusterer, ds *dataset.Dataset) (p model.Partition, err error) {
	err = errors.SafeExecute("HardClusterer.Partition", func() error {
		var perr error
		p, perr = c.Partition(ds)
		return perr
	})
	return p, err
}

// checkPartition は分割結果が n 個のインスタンスを [0, NumClusters) に割り当てているか検証する
func checkPartition(op string, p model.Partition, n int) error {
	if p.NumClusters < 1 {
		return errors.NewModelError(op,
			fmt.Sprintf("wrapped clusterer reported %d clusters", p.NumClusters), nil)
	}
	if len(p.Assignments) != n {
		return errors.NewModelError(op,
			fmt.Sprintf("wrapped clusterer assigned %d of %d instances", len(p.Assignments), n), nil)
	}
	for i, c := range p.Assignments {
		if c < 0 || c >= p.NumClusters {
			return errors.NewModelError(op,
				fmt.Sprintf("instance %d assigned to cluster %d outside [0, %d)", i, c, p.NumClusters), nil)
		}
	}
	return nil
}

type fitDiagnostics struct {
	clamped []*errors.DegenerateVarianceWarning
	empty   []int
}

// estimate は1パスで十分統計量を集計し、クラスタごとのパラメータと事前確率を求める
func estimate(ds *dataset.Dataset, part model.Partition, minStdDev float64) (*fittedState, fitDiagnostics, error) {
	var diag fitDiagnostics
	schema := ds.Schema()
	k, p := part.NumClusters, schema.NumAttributes()

	st := &fittedState{
		schema:      schema.Clone(),
		numClusters: k,
		priors:      make([]float64, k),
		counts:      make([]int, k),
		discrete:    make([][]*DiscreteEstimator, k),
		normals:     make([][]Normal, k),
	}
	sums := make([][]float64, k)
	sumSqs := make([][]float64, k)
	for c := 0; c < k; c++ {
		st.discrete[c] = make([]*DiscreteEstimator, p)
		st.normals[c] = make([]Normal, p)
		sums[c] = make([]float64, p)
		sumSqs[c] = make([]float64, p)
		for a, attr := range schema.Attributes {
			if !attr.IsSymbolic() {
				continue
			}
			est, err := NewDiscreteEstimator(attr.NumValues())
			if err != nil {
				return nil, diag, err
			}
			st.discrete[c][a] = est
		}
	}

	for i := 0; i < ds.NumInstances(); i++ {
		c := part.Assignments[i]
		st.counts[c]++
		for a, v := range ds.RawInstance(i) {
			if dataset.IsMissing(v) {
				continue
			}
			if est := st.discrete[c][a]; est != nil {
				if err := est.AddValue(int(v), 1); err != nil {
					return nil, diag, errors.Wrapf(err, "instance %d", i)
				}
				continue
			}
			sums[c][a] += v
			sumSqs[c][a] += v * v
		}
	}

	for c := 0; c < k; c++ {
		st.priors[c] = float64(st.counts[c])
		if st.counts[c] == 0 {
			diag.empty = append(diag.empty, c)
			continue
		}
		n := float64(st.counts[c])
		var means []float64
		for a, attr := range schema.Attributes {
			if !attr.IsNumeric() {
				continue
			}
			normal, raw, clamped := estimateNormal(sums[c][a], sumSqs[c][a], n, minStdDev)
			st.normals[c][a] = normal
			means = append(means, normal.Mean)
			if clamped {
				diag.clamped = append(diag.clamped,
					errors.NewDegenerateVarianceWarning(c, attr.Name, raw, minStdDev))
			}
		}
		// 有限な値の和でもオーバーフローすると平均が Inf になる
		if err := errors.CheckNumericalStability("normal_estimation", means, c); err != nil {
			return nil, diag, err
		}
	}

	total := floats.Sum(st.priors)
	if total == 0 {
		return nil, diag, errors.NewEstimationError("DistributionClusterer.Fit",
			"cluster priors sum to zero; no training instance reached any cluster")
	}
	floats.Scale(1/total, st.priors)
	return st, diag, nil
}

// fitted は学習済み状態のスナップショットを返す
func (m *DistributionClusterer) fitted(method string) (*fittedState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.IsFitted() || m.state == nil {
		return nil, errors.NewNotFittedError("DistributionClusterer", method)
	}
	return m.state, nil
}

// checkedState は学習済み状態を返し、インスタンスがスキーマに適合するか検証する
func (m *DistributionClusterer) checkedState(method string, inst []float64) (*fittedState, error) {
	st, err := m.fitted(method)
	if err != nil {
		return nil, err
	}
	if err := st.schema.CheckInstance(inst); err != nil {
		return nil, err
	}
	return st, nil
}

// weights はクラスタごとの 事前確率 × 尤度 を返す。事前確率0のクラスタは常に0
func (st *fittedState) weights(inst []float64) []float64 {
	w := make([]float64, st.numClusters)
	for c := range w {
		if st.priors[c] == 0 {
			continue
		}
		likelihood := 1.0
		for a, v := range inst {
			if dataset.IsMissing(v) {
				continue
			}
			if est := st.discrete[c][a]; est != nil {
				likelihood *= est.probability(int(v))
				continue
			}
			likelihood *= st.normals[c][a].Density(v)
		}
		w[c] = likelihood * st.priors[c]
	}
	return w
}

// logWeights は weights の対数。事前確率0のクラスタは -Inf
func (st *fittedState) logWeights(inst []float64) []float64 {
	lw := make([]float64, st.numClusters)
	for c := range lw {
		if st.priors[c] == 0 {
			lw[c] = math.Inf(-1)
			continue
		}
		logLikelihood := 0.0
		for a, v := range inst {
			if dataset.IsMissing(v) {
				continue
			}
			if est := st.discrete[c][a]; est != nil {
				logLikelihood += math.Log(est.probability(int(v)))
				continue
			}
			logLikelihood += st.normals[c][a].LogDensity(v)
		}
		lw[c] = logLikelihood + math.Log(st.priors[c])
	}
	return lw
}

// distribution は重みを正規化する。
// 重みの和が0なら事前確率が正のクラスタ上の一様分布、オーバーフローした場合は対数空間で正規化する。
func (st *fittedState) distribution(inst []float64) []float64 {
	w := st.weights(inst)
	total := floats.Sum(w)
	switch {
	case total == 0:
		return st.uniformOverPopulated(w)
	case !errors.IsFinite(total):
		lw := st.logWeights(inst)
		norm := errors.LogSumExp(lw)
		for c := range w {
			w[c] = math.Exp(lw[c] - norm)
		}
		return w
	}
	floats.Scale(1/total, w)
	return w
}

// density は weights の和。積が Inf になり後続の密度0と掛かると NaN になるため、
// 和が有限でない場合は対数空間から求め直す
func (st *fittedState) density(inst []float64) float64 {
	total := floats.Sum(st.weights(inst))
	if errors.IsFinite(total) {
		return total
	}
	return math.Exp(errors.LogSumExp(st.logWeights(inst)))
}

func (st *fittedState) uniformOverPopulated(dst []float64) []float64 {
	populated := 0
	for _, p := range st.priors {
		if p > 0 {
			populated++
		}
	}
	for c, p := range st.priors {
		dst[c] = 0
		if p > 0 {
			dst[c] = errors.SafeDivide(1, float64(populated), 0)
		}
	}
	return dst
}

// DensityForInstance は全クラスタの 事前確率 × 尤度 の和を返す。
// クラスタと属性の同時密度であり、属性空間上で正規化された確率ではない。
func (m *DistributionClusterer) DensityForInstance(instance []float64) (float64, error) {
	st, err := m.checkedState("DensityForInstance", instance)
	if err != nil {
		return 0, err
	}
	return st.density(instance), nil
}

// LogDensityForInstance は DensityForInstance の対数を対数空間で計算する
func (m *DistributionClusterer) LogDensityForInstance(instance []float64) (float64, error) {
	st, err := m.checkedState("LogDensityForInstance", instance)
	if err != nil {
		return 0, err
	}
	return errors.LogSumExp(st.logWeights(instance)), nil
}

// DistributionForInstance はクラスタ上の事後分布を返す。和は1
func (m *DistributionClusterer) DistributionForInstance(instance []float64) ([]float64, error) {
	st, err := m.checkedState("DistributionForInstance", instance)
	if err != nil {
		return nil, err
	}
	return st.distribution(instance), nil
}

// ClusterInstance は事後確率が最大のクラスタを返す。同率の場合は小さい番号
func (m *DistributionClusterer) ClusterInstance(instance []float64) (int, error) {
	dist, err := m.DistributionForInstance(instance)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(dist), nil
}

// AssignCluster は学習に使ったクラスタラーの規則でインスタンスを割り当てる。
// SetClusterer で差し替えても次の Fit までは学習時のクラスタラーに委譲する
func (m *DistributionClusterer) AssignCluster(instance []float64) (int, error) {
	st, err := m.checkedState("AssignCluster", instance)
	if err != nil {
		return 0, err
	}
	return st.clusterer.AssignCluster(instance)
}

// NumberOfClusters はラップしたクラスタラーが学習時に返したクラスタ数を返す
func (m *DistributionClusterer) NumberOfClusters() (int, error) {
	st, err := m.fitted("NumberOfClusters")
	if err != nil {
		return 0, err
	}
	return st.numClusters, nil
}

// DistributionForMatrix は各行の事後分布を (rows x clusters) の行列で返す。
// 行数が閾値を超える場合は並列に計算する。
func (m *DistributionClusterer) DistributionForMatrix(X mat.Matrix) (*mat.Dense, error) {
	st, err := m.fitted("DistributionForMatrix")
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != st.schema.NumAttributes() {
		return nil, errors.NewDimensionError("DistributionClusterer.DistributionForMatrix", st.schema.NumAttributes(), cols, 1)
	}

	out := mat.NewDense(rows, st.numClusters, nil)
	err = parallel.ParallelizeWithThreshold(rows, m.threshold(), func(start, end int) error {
		for i := start; i < end; i++ {
			inst := mat.Row(nil, i, X)
			if err := st.schema.CheckInstance(inst); err != nil {
				return errors.Wrapf(err, "row %d", i)
			}
			out.SetRow(i, st.distribution(inst))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScoreSamples は各行の対数密度を返す
func (m *DistributionClusterer) ScoreSamples(X mat.Matrix) (*mat.VecDense, error) {
	st, err := m.fitted("ScoreSamples")
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != st.schema.NumAttributes() {
		return nil, errors.NewDimensionError("DistributionClusterer.ScoreSamples", st.schema.NumAttributes(), cols, 1)
	}

	out := mat.NewVecDense(rows, nil)
	err = parallel.ParallelizeWithThreshold(rows, m.threshold(), func(start, end int) error {
		for i := start; i < end; i++ {
			inst := mat.Row(nil, i, X)
			if err := st.schema.CheckInstance(inst); err != nil {
				return errors.Wrapf(err, "row %d", i)
			}
			out.SetVec(i, errors.LogSumExp(st.logWeights(inst)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *DistributionClusterer) threshold() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parallelThreshold
}

// Priors は正規化された事前確率のコピーを返す
func (m *DistributionClusterer) Priors() ([]float64, error) {
	st, err := m.fitted("Priors")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), st.priors...), nil
}

// ClusterCounts は各クラスタに割り当てられた訓練インスタンス数を返す
func (m *DistributionClusterer) ClusterCounts() ([]int, error) {
	st, err := m.fitted("ClusterCounts")
	if err != nil {
		return nil, err
	}
	return append([]int(nil), st.counts...), nil
}

// Schema は学習時のスキーマを返す
func (m *DistributionClusterer) Schema() (*dataset.Schema, error) {
	st, err := m.fitted("Schema")
	if err != nil {
		return nil, err
	}
	return st.schema.Clone(), nil
}

// Normal はクラスタ c の数値属性 a の正規分布を返す。
// クラスタに訓練インスタンスがない場合 ok は false。
func (m *DistributionClusterer) Normal(c, a int) (normal Normal, ok bool, err error) {
	st, err := m.fitted("Normal")
	if err != nil {
		return Normal{}, false, err
	}
	if err := st.checkIndex("DistributionClusterer.Normal", c, a); err != nil {
		return Normal{}, false, err
	}
	if !st.schema.Attribute(a).IsNumeric() {
		return Normal{}, false, errors.NewSchemaError("DistributionClusterer.Normal",
			st.schema.Attribute(a).Name, "attribute is not numeric", a)
	}
	return st.normals[c][a], st.counts[c] > 0, nil
}

// Discrete はクラスタ c のシンボル属性 a の推定器のコピーを返す
func (m *DistributionClusterer) Discrete(c, a int) (*DiscreteEstimator, error) {
	st, err := m.fitted("Discrete")
	if err != nil {
		return nil, err
	}
	if err := st.checkIndex("DistributionClusterer.Discrete", c, a); err != nil {
		return nil, err
	}
	est := st.discrete[c][a]
	if est == nil {
		return nil, errors.NewSchemaError("DistributionClusterer.Discrete",
			st.schema.Attribute(a).Name, "attribute is not symbolic", a)
	}
	return &DiscreteEstimator{
		counts:      append([]float64(nil), est.counts...),
		sumOfCounts: est.sumOfCounts,
	}, nil
}

func (st *fittedState) checkIndex(op string, c, a int) error {
	if c < 0 || c >= st.numClusters {
		return errors.NewValueError(op, fmt.Sprintf("cluster %d outside [0, %d)", c, st.numClusters))
	}
	if a < 0 || a >= st.schema.NumAttributes() {
		return errors.NewValueError(op, fmt.Sprintf("attribute %d outside [0, %d)", a, st.schema.NumAttributes()))
	}
	return nil
}

// typeName はログ用にクラスタラーの型名を返す
func typeName(v interface{}) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}

// describe はレポート用にクラスタラーを記述する
func describe(c model.HardClusterer) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return typeName(c)
}
