package metrics

import (
	"github.com/YuminosukeSato/softclust/core/dataset"
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	gstat "gonum.org/v1/gonum/stat"
)

// LogLikelihood はデータセットに対する平均対数密度を計算する。
// 大きいほど推定器がデータをよく説明している。
func LogLikelihood(est model.DensityEstimator, ds *dataset.Dataset) (float64, error) {
	n := ds.NumInstances()
	if n == 0 {
		return 0, errors.NewValueError("LogLikelihood", "empty dataset")
	}

	var sum float64
	for i := 0; i < n; i++ {
		ld, err := est.LogDensityForInstance(ds.RawInstance(i))
		if err != nil {
			return 0, errors.Wrapf(err, "instance %d", i)
		}
		sum += ld
	}
	return sum / float64(n), nil
}

// ClusterSizes は事後確率最大のクラスタに割り当てた場合の各クラスタのインスタンス数を返す
func ClusterSizes(est model.DensityEstimator, ds *dataset.Dataset) ([]int, error) {
	k, err := est.NumberOfClusters()
	if err != nil {
		return nil, err
	}

	sizes := make([]int, k)
	for i := 0; i < ds.NumInstances(); i++ {
		dist, err := est.DistributionForInstance(ds.RawInstance(i))
		if err != nil {
			return nil, errors.Wrapf(err, "instance %d", i)
		}
		sizes[floats.MaxIdx(dist)]++
	}
	return sizes, nil
}

// MeanPosteriorEntropy は事後分布のエントロピー（nats）の平均を計算する。
// 0 はすべてのインスタンスが1つのクラスタに確定していることを意味する。
func MeanPosteriorEntropy(est model.DensityEstimator, ds *dataset.Dataset) (float64, error) {
	n := ds.NumInstances()
	if n == 0 {
		return 0, errors.NewValueError("MeanPosteriorEntropy", "empty dataset")
	}

	var sum float64
	for i := 0; i < n; i++ {
		dist, err := est.DistributionForInstance(ds.RawInstance(i))
		if err != nil {
			return 0, errors.Wrapf(err, "instance %d", i)
		}
		sum += gstat.Entropy(dist)
	}
	return sum / float64(n), nil
}

// LogDensityPercentile は各インスタンスの対数密度の percent パーセンタイル（0 < percent <= 100）を返す。
// 訓練データに対して求めた値は、新しいインスタンスを外れ値とみなす閾値として使える。
func LogDensityPercentile(est model.DensityEstimator, ds *dataset.Dataset, percent float64) (float64, error) {
	n := ds.NumInstances()
	if n == 0 {
		return 0, errors.NewValueError("LogDensityPercentile", "empty dataset")
	}
	if percent <= 0 || percent > 100 {
		return 0, errors.NewValidationError("percent", "must be in (0, 100]", percent)
	}

	scores := make(stats.Float64Data, n)
	for i := 0; i < n; i++ {
		ld, err := est.LogDensityForInstance(ds.RawInstance(i))
		if err != nil {
			return 0, errors.Wrapf(err, "instance %d", i)
		}
		scores[i] = ld
	}

	p, err := stats.Percentile(scores, percent)
	if err != nil {
		return 0, errors.Wrap(err, "LogDensityPercentile")
	}
	return p, nil
}
