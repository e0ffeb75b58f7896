package model

import (
	"github.com/YuminosukeSato/softclust/core/dataset"
	"gonum.org/v1/gonum/mat"
)

// Partition はハードクラスタリングの結果。
// Assignments[i] は訓練インスタンス i のクラスタ番号で [0, NumClusters) に収まる。
type Partition struct {
	NumClusters int
	Assignments []int
}

// Sizes は各クラスタに割り当てられたインスタンス数を返す
func (p Partition) Sizes() []int {
	sizes := make([]int, p.NumClusters)
	for _, c := range p.Assignments {
		if c >= 0 && c < p.NumClusters {
			sizes[c]++
		}
	}
	return sizes
}

// HardClusterer は各インスタンスをちょうど1つのクラスタに割り当てるアルゴリズムの能力。
// 確率的なオーバーレイはこのインターフェースだけに依存する。
type HardClusterer interface {
	// Partition は訓練データ全体をクラスタに分割する
	Partition(ds *dataset.Dataset) (Partition, error)

	// AssignCluster は新しいインスタンスを訓練時と同じ規則でクラスタに割り当てる
	AssignCluster(instance []float64) (int, error)
}

// DensityEstimator はインスタンスごとの密度とクラスタ事後分布を返すモデル
type DensityEstimator interface {
	// DensityForInstance は全クラスタの事前確率で重み付けした尤度の和を返す
	DensityForInstance(instance []float64) (float64, error)

	// LogDensityForInstance は DensityForInstance の対数をアンダーフローなしに返す
	LogDensityForInstance(instance []float64) (float64, error)

	// DistributionForInstance はクラスタ上の事後分布を返す（和は1）
	DistributionForInstance(instance []float64) ([]float64, error)

	// NumberOfClusters はクラスタ数を返す
	NumberOfClusters() (int, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
