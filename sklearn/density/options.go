package density

import (
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/pkg/log"
)

const (
	// DefaultMinStdDev は数値属性の標準偏差の既定の下限
	DefaultMinStdDev = 1e-6

	// DefaultParallelThreshold はバッチ推論を並列化する最小行数
	DefaultParallelThreshold = 1000
)

// Option は DistributionClusterer の設定オプション
type Option func(*DistributionClusterer)

// WithClusterer はラップするハードクラスタラーを設定
func WithClusterer(c model.HardClusterer) Option {
	return func(m *DistributionClusterer) {
		m.clusterer = c
	}
}

// WithMinStdDev は標準偏差の下限を設定。正の有限値であること（Fit時に検証）
func WithMinStdDev(minStdDev float64) Option {
	return func(m *DistributionClusterer) {
		m.minStdDev = minStdDev
	}
}

// WithLogger はロガーを設定
func WithLogger(logger log.Logger) Option {
	return func(m *DistributionClusterer) {
		m.logger = logger
	}
}

// WithParallelThreshold はバッチ推論を並列実行する行数の閾値を設定
func WithParallelThreshold(rows int) Option {
	return func(m *DistributionClusterer) {
		m.parallelThreshold = rows
	}
}
