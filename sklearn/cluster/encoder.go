package cluster

import (
	"github.com/YuminosukeSato/softclust/core/dataset"
	"github.com/YuminosukeSato/softclust/core/model"
	"github.com/YuminosukeSato/softclust/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// datasetEncoder はデータセットをユークリッド距離で扱える実数行列に変換する。
//
//   - 数値属性: そのまま1列。欠損値は訓練データの列平均で補完する
//   - シンボル属性: one-hot で NumValues 列。欠損値は全列0
//
// 変換後の行列は scaler（nil の場合は無変換）でスケーリングされる。
type datasetEncoder struct {
	schema  *dataset.Schema
	means   []float64 // 数値属性の列平均（欠損を除く）
	offsets []int     // 各属性の先頭列
	width   int
	scaler  model.Transformer
}

func newDatasetEncoder(scaler model.Transformer) *datasetEncoder {
	return &datasetEncoder{scaler: scaler}
}

// fit は補完用の平均とスケーラーを学習し、訓練データ全体を変換した行列を返す
func (e *datasetEncoder) fit(ds *dataset.Dataset) (mat.Matrix, error) {
	schema := ds.Schema()
	n, p := ds.NumInstances(), schema.NumAttributes()
	if n == 0 || p == 0 {
		return nil, errors.NewModelError("MiniBatchKMeans.Partition", "empty data", errors.ErrEmptyData)
	}

	e.schema = schema
	e.means = make([]float64, p)
	e.offsets = make([]int, p)
	e.width = 0
	for j, attr := range schema.Attributes {
		e.offsets[j] = e.width
		if attr.IsSymbolic() {
			e.width += attr.NumValues()
			continue
		}
		e.width++

		sum, count := 0.0, 0
		for i := 0; i < n; i++ {
			if v := ds.Value(i, j); !dataset.IsMissing(v) {
				sum += v
				count++
			}
		}
		if count > 0 {
			e.means[j] = sum / float64(count)
		}
	}

	X := mat.NewDense(n, e.width, nil)
	for i := 0; i < n; i++ {
		e.encodeRow(X.RawRowView(i), ds.RawInstance(i))
	}

	if e.scaler == nil {
		return X, nil
	}
	return e.scaler.FitTransform(X)
}

// encodeRow は dst（長さ width、ゼロ初期化済み）に inst を書き込む
func (e *datasetEncoder) encodeRow(dst, inst []float64) {
	for j, attr := range e.schema.Attributes {
		v := inst[j]
		off := e.offsets[j]
		if attr.IsSymbolic() {
			if !dataset.IsMissing(v) {
				dst[off+int(v)] = 1
			}
			continue
		}
		if dataset.IsMissing(v) {
			v = e.means[j]
		}
		dst[off] = v
	}
}

// transform は学習済みの設定で1インスタンスを変換する
func (e *datasetEncoder) transform(inst []float64) ([]float64, error) {
	if err := e.schema.CheckInstance(inst); err != nil {
		return nil, err
	}
	row := make([]float64, e.width)
	e.encodeRow(row, inst)
	if e.scaler == nil {
		return row, nil
	}
	scaled, err := e.scaler.Transform(mat.NewDense(1, e.width, row))
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, scaled), nil
}
