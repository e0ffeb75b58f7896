package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/YuminosukeSato/softclust/core/dataset"
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"github.com/YuminosukeSato/softclust/pkg/log"
	"github.com/YuminosukeSato/softclust/preprocessing"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var _ model.HardClusterer = (*MiniBatchKMeans)(nil)

// MiniBatchKMeans はミニバッチK-meansクラスタリング。
// 行列APIに加えて model.HardClusterer を実装し、データセットを直接分割できる。
type MiniBatchKMeans struct {
	model.BaseEstimator

	// ハイパーパラメータ
	nClusters        int     // クラスタ数
	init             string  // 初期化方法: "k-means++", "random"
	maxIter          int     // 最大イテレーション数
	batchSize        int     // ミニバッチサイズ
	randomState      int64   // 乱数シード（負の場合は時刻）
	tol              float64 // 収束判定の許容誤差
	maxNoImprovement int     // 改善なしの最大イテレーション数
	nInit            int     // 異なる初期化での実行回数
	scaling          string  // Partition時のスケーリング: "standard", "minmax", "none"

	// 学習パラメータ
	clusterCenters_ [][]float64 // クラスタ中心（nClusters x nFeatures）
	labels_         []int       // 各サンプルのクラスタラベル
	inertia_        float64     // クラスタ内平方和誤差
	nIter_          int         // 実行されたイテレーション数

	// 内部状態
	mu         sync.RWMutex
	rng        *rand.Rand
	nFeatures_ int
	encoder    *datasetEncoder // Partition で学習したエンコーダ
	logger     log.Logger
}

// NewMiniBatchKMeans は新しいMiniBatchKMeansを作成
func NewMiniBatchKMeans(options ...KMeansOption) *MiniBatchKMeans {
	kmeans := &MiniBatchKMeans{
		nClusters:        8,
		init:             "k-means++",
		maxIter:          100,
		batchSize:        100,
		randomState:      -1,
		tol:              0.0,
		maxNoImprovement: 10,
		nInit:            3,
		scaling:          "standard",
		logger:           log.GetLoggerWithName("cluster.kmeans"),
	}

	for _, opt := range options {
		opt(kmeans)
	}
	return kmeans
}

// KMeansOption はMiniBatchKMeansの設定オプション
type KMeansOption func(*MiniBatchKMeans)

// WithKMeansNClusters はクラスタ数を設定
func WithKMeansNClusters(n int) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.nClusters = n
	}
}

// WithKMeansInit は初期化方法を設定
func WithKMeansInit(init string) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.init = init
	}
}

// WithKMeansMaxIter は最大イテレーション数を設定
func WithKMeansMaxIter(maxIter int) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.maxIter = maxIter
	}
}

// WithKMeansBatchSize はミニバッチサイズを設定
func WithKMeansBatchSize(batchSize int) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.batchSize = batchSize
	}
}

// WithKMeansRandomState は乱数シードを設定。シードを固定すると Fit は毎回同じ結果になる
func WithKMeansRandomState(seed int64) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.randomState = seed
	}
}

// WithKMeansTol は収束判定の許容誤差を設定
func WithKMeansTol(tol float64) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.tol = tol
	}
}

// WithKMeansNInit は初期化の試行回数を設定
func WithKMeansNInit(n int) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.nInit = n
	}
}

// WithKMeansScaling は Partition 時の特徴量スケーリングを設定（"standard", "minmax", "none"）
func WithKMeansScaling(scaling string) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.scaling = scaling
	}
}

// WithKMeansLogger はロガーを設定
func WithKMeansLogger(logger log.Logger) KMeansOption {
	return func(kmeans *MiniBatchKMeans) {
		kmeans.logger = logger
	}
}

// validate はハイパーパラメータを検証する
func (kmeans *MiniBatchKMeans) validate() error {
	switch {
	case kmeans.nClusters < 1:
		return errors.NewValidationError("n_clusters", "must be at least 1", kmeans.nClusters)
	case kmeans.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be at least 1", kmeans.maxIter)
	case kmeans.batchSize < 1:
		return errors.NewValidationError("batch_size", "must be at least 1", kmeans.batchSize)
	case kmeans.nInit < 1:
		return errors.NewValidationError("n_init", "must be at least 1", kmeans.nInit)
	case kmeans.init != "k-means++" && kmeans.init != "random":
		return errors.NewValidationError("init", "must be 'k-means++' or 'random'", kmeans.init)
	}
	return nil
}

func (kmeans *MiniBatchKMeans) newScaler() (model.Transformer, error) {
	switch kmeans.scaling {
	case "standard":
		return preprocessing.NewStandardScalerDefault(), nil
	case "minmax":
		return preprocessing.NewMinMaxScalerDefault(), nil
	case "none":
		return nil, nil
	default:
		return nil, errors.NewValidationError("scaling", "must be 'standard', 'minmax' or 'none'", kmeans.scaling)
	}
}

// Fit はバッチ学習でモデルを訓練する。y は使用しない。
// 行列で学習した中心はデータセットのエンコーダと次元が合わないため、
// 以前の Partition のエンコーダは破棄する
func (kmeans *MiniBatchKMeans) Fit(X, y mat.Matrix) error {
	kmeans.mu.Lock()
	defer kmeans.mu.Unlock()
	if err := kmeans.fitLocked(X); err != nil {
		return err
	}
	kmeans.encoder = nil
	return nil
}

func (kmeans *MiniBatchKMeans) fitLocked(X mat.Matrix) error {
	if err := kmeans.validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	if rows < kmeans.nClusters {
		return errors.NewValueError("MiniBatchKMeans.Fit",
			fmt.Sprintf("n_samples=%d should be >= n_clusters=%d", rows, kmeans.nClusters))
	}

	// シード固定時は毎回同じ系列から始める
	if kmeans.randomState >= 0 {
		kmeans.rng = rand.New(rand.NewSource(kmeans.randomState))
	} else {
		kmeans.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// 複数回実行して最良の結果を選択
	bestInertia := math.Inf(1)
	var bestCenters [][]float64
	var bestLabels []int
	var bestNIter int

	for run := 0; run < kmeans.nInit; run++ {
		centers, labels, inertia, nIter := kmeans.fitSingleRun(X)

		if bestCenters == nil || inertia < bestInertia {
			bestInertia = inertia
			bestCenters = centers
			bestLabels = labels
			bestNIter = nIter
		}
	}

	if err := errors.CheckScalar("MiniBatchKMeans.Fit", bestInertia, bestNIter); err != nil {
		return errors.Wrap(err, "inertia is not finite; scale the input")
	}

	kmeans.clusterCenters_ = bestCenters
	kmeans.labels_ = bestLabels
	kmeans.inertia_ = bestInertia
	kmeans.nIter_ = bestNIter
	kmeans.nFeatures_ = cols

	kmeans.SetFitted()
	return nil
}

// fitSingleRun は単一回の学習を実行
func (kmeans *MiniBatchKMeans) fitSingleRun(X mat.Matrix) ([][]float64, []int, float64, int) {
	rows, cols := X.Dims()

	centers := kmeans.initializeCenters(X)
	counts := make([]int, kmeans.nClusters)

	prevInertia := math.Inf(1)
	noImprovementCount := 0
	var finalIter int

	for iter := 0; iter < kmeans.maxIter; iter++ {
		finalIter = iter
		batchIndices := kmeans.selectMiniBatch(rows)

		// 各ミニバッチサンプルを最近傍クラスタに割り当て、中心を更新
		for _, idx := range batchIndices {
			sample := mat.Row(nil, idx, X)
			nearestCluster := findNearestCluster(sample, centers)

			counts[nearestCluster]++
			eta := 1.0 / float64(counts[nearestCluster])

			for j := 0; j < cols; j++ {
				centers[nearestCluster][j] = (1-eta)*centers[nearestCluster][j] + eta*sample[j]
			}
		}

		inertia := computeInertia(X, centers)

		// 収束判定
		if prevInertia-inertia <= kmeans.tol {
			noImprovementCount++
			if noImprovementCount >= kmeans.maxNoImprovement {
				break
			}
		} else {
			noImprovementCount = 0
		}
		prevInertia = inertia

		if iter%10 == 0 {
			kmeans.logger.Debug("mini-batch step",
				log.IterationKey, iter,
				log.InertiaKey, inertia,
			)
		}
	}

	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		labels[i] = findNearestCluster(mat.Row(nil, i, X), centers)
	}

	return centers, labels, computeInertia(X, centers), finalIter
}

// Partition はデータセットをエンコード・スケーリングしてから学習し、各インスタンスのラベルを返す
func (kmeans *MiniBatchKMeans) Partition(ds *dataset.Dataset) (model.Partition, error) {
	if ds == nil || ds.NumInstances() == 0 {
		return model.Partition{}, errors.NewModelError("MiniBatchKMeans.Partition", "empty data", errors.ErrEmptyData)
	}

	scaler, err := kmeans.newScaler()
	if err != nil {
		return model.Partition{}, err
	}
	enc := newDatasetEncoder(scaler)
	X, err := enc.fit(ds)
	if err != nil {
		return model.Partition{}, errors.Wrap(err, "encode dataset")
	}

	kmeans.mu.Lock()
	defer kmeans.mu.Unlock()

	if err := kmeans.fitLocked(X); err != nil {
		return model.Partition{}, err
	}
	kmeans.encoder = enc

	labels := make([]int, len(kmeans.labels_))
	copy(labels, kmeans.labels_)

	kmeans.logger.Info("partition completed",
		log.OperationKey, log.OperationPartition,
		log.SamplesKey, ds.NumInstances(),
		log.FeaturesKey, ds.NumAttributes(),
		log.ClustersKey, kmeans.nClusters,
		log.InertiaKey, kmeans.inertia_,
	)

	return model.Partition{NumClusters: kmeans.nClusters, Assignments: labels}, nil
}

// AssignCluster は Partition で学習したエンコーダを通して最近傍クラスタを返す
func (kmeans *MiniBatchKMeans) AssignCluster(instance []float64) (int, error) {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	if !kmeans.IsFitted() || kmeans.encoder == nil {
		return 0, errors.NewNotFittedError("MiniBatchKMeans", "AssignCluster")
	}

	row, err := kmeans.encoder.transform(instance)
	if err != nil {
		return 0, err
	}
	return findNearestCluster(row, kmeans.clusterCenters_), nil
}

// Transform はデータをクラスタ中心との距離に変換
func (kmeans *MiniBatchKMeans) Transform(X mat.Matrix) (mat.Matrix, error) {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	if !kmeans.IsFitted() {
		return nil, errors.NewNotFittedError("MiniBatchKMeans", "Transform")
	}

	rows, cols := X.Dims()
	if cols != kmeans.nFeatures_ {
		return nil, errors.NewDimensionError("MiniBatchKMeans.Transform", kmeans.nFeatures_, cols, 1)
	}

	distances := mat.NewDense(rows, kmeans.nClusters, nil)
	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		for c := 0; c < kmeans.nClusters; c++ {
			distances.Set(i, c, floats.Distance(sample, kmeans.clusterCenters_[c], 2))
		}
	}

	return distances, nil
}

// Predict は入力データに対するクラスタ予測を行う
func (kmeans *MiniBatchKMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	if !kmeans.IsFitted() {
		return nil, errors.NewNotFittedError("MiniBatchKMeans", "Predict")
	}

	rows, cols := X.Dims()
	if cols != kmeans.nFeatures_ {
		return nil, errors.NewDimensionError("MiniBatchKMeans.Predict", kmeans.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		cluster := findNearestCluster(mat.Row(nil, i, X), kmeans.clusterCenters_)
		predictions.Set(i, 0, float64(cluster))
	}

	return predictions, nil
}

// FitPredict は学習と予測を同時に行う
func (kmeans *MiniBatchKMeans) FitPredict(X, y mat.Matrix) (mat.Matrix, error) {
	if err := kmeans.Fit(X, y); err != nil {
		return nil, err
	}
	return kmeans.Predict(X)
}

// NClusters は設定されたクラスタ数を返す
func (kmeans *MiniBatchKMeans) NClusters() int {
	return kmeans.nClusters
}

// NIterations は実行された学習イテレーション数を返す
func (kmeans *MiniBatchKMeans) NIterations() int {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()
	return kmeans.nIter_
}

// ClusterCenters は学習されたクラスタ中心（スケーリング後の空間）を返す
func (kmeans *MiniBatchKMeans) ClusterCenters() [][]float64 {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	centers := make([][]float64, len(kmeans.clusterCenters_))
	for i := range kmeans.clusterCenters_ {
		centers[i] = make([]float64, len(kmeans.clusterCenters_[i]))
		copy(centers[i], kmeans.clusterCenters_[i])
	}
	return centers
}

// Labels は学習データのクラスタラベルを返す
func (kmeans *MiniBatchKMeans) Labels() []int {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	if kmeans.labels_ == nil {
		return nil
	}
	labels := make([]int, len(kmeans.labels_))
	copy(labels, kmeans.labels_)
	return labels
}

// Inertia は慣性（クラスタ内平方和誤差）を返す
func (kmeans *MiniBatchKMeans) Inertia() float64 {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()
	return kmeans.inertia_
}

// String はレポート用の文字列表現を返す
func (kmeans *MiniBatchKMeans) String() string {
	kmeans.mu.RLock()
	defer kmeans.mu.RUnlock()

	if !kmeans.IsFitted() {
		return fmt.Sprintf("MiniBatchKMeans(n_clusters=%d, init=%s, scaling=%s)",
			kmeans.nClusters, kmeans.init, kmeans.scaling)
	}
	return fmt.Sprintf("MiniBatchKMeans(n_clusters=%d, init=%s, scaling=%s, n_iter=%d, inertia=%.4f)",
		kmeans.nClusters, kmeans.init, kmeans.scaling, kmeans.nIter_, kmeans.inertia_)
}

// 内部ヘルパー

// initializeCenters はクラスタ中心を初期化
func (kmeans *MiniBatchKMeans) initializeCenters(X mat.Matrix) [][]float64 {
	if kmeans.init == "random" {
		rows, _ := X.Dims()
		centers := make([][]float64, kmeans.nClusters)
		for i, idx := range kmeans.rng.Perm(rows)[:kmeans.nClusters] {
			centers[i] = mat.Row(nil, idx, X)
		}
		return centers
	}
	return kmeans.initKMeansPlusPlus(X)
}

// initKMeansPlusPlus はk-means++初期化を実行
func (kmeans *MiniBatchKMeans) initKMeansPlusPlus(X mat.Matrix) [][]float64 {
	rows, _ := X.Dims()
	centers := make([][]float64, kmeans.nClusters)

	centers[0] = mat.Row(nil, kmeans.rng.Intn(rows), X)

	distances := make([]float64, rows)
	for c := 1; c < kmeans.nClusters; c++ {
		// 各サンプルから最近傍クラスタ中心までの距離の二乗
		for i := 0; i < rows; i++ {
			sample := mat.Row(nil, i, X)
			minDist := math.Inf(1)
			for j := 0; j < c; j++ {
				if dist := floats.Distance(sample, centers[j], 2); dist < minDist {
					minDist = dist
				}
			}
			distances[i] = minDist * minDist
		}

		// 距離の二乗に比例した確率でサンプルを選択
		target := kmeans.rng.Float64() * floats.Sum(distances)
		cumSum := 0.0
		selectedIdx := rows - 1
		for i := 0; i < rows; i++ {
			cumSum += distances[i]
			if cumSum >= target {
				selectedIdx = i
				break
			}
		}

		centers[c] = mat.Row(nil, selectedIdx, X)
	}

	return centers
}

// selectMiniBatch はミニバッチのサンプルインデックスを選択
func (kmeans *MiniBatchKMeans) selectMiniBatch(nSamples int) []int {
	batchSize := kmeans.batchSize
	if batchSize > nSamples {
		batchSize = nSamples
	}
	return kmeans.rng.Perm(nSamples)[:batchSize]
}

// findNearestCluster は最近傍クラスタを検索（同距離は小さい番号を優先）
func findNearestCluster(sample []float64, centers [][]float64) int {
	minDist := math.Inf(1)
	nearestCluster := 0

	for c, center := range centers {
		if dist := floats.Distance(sample, center, 2); dist < minDist {
			minDist = dist
			nearestCluster = c
		}
	}

	return nearestCluster
}

// computeInertia は慣性（クラスタ内平方和誤差）を計算
func computeInertia(X mat.Matrix, centers [][]float64) float64 {
	rows, _ := X.Dims()
	inertia := 0.0

	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		dist := floats.Distance(sample, centers[findNearestCluster(sample, centers)], 2)
		inertia += dist * dist
	}

	return inertia
}
