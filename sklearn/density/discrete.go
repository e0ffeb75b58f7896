package density

import (
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/softclust/pkg/errors"
)

// DiscreteEstimator は有限個のシンボル上の加重頻度を数え、
// ラプラス（add-one）平滑化した確率を返す。
//
// 確率は (counts[s] + 1) / (sumOfCounts + numSymbols) で、
// 一度も観測されていないシンボルでも0にはならない。
type DiscreteEstimator struct {
	counts      []float64
	sumOfCounts float64
}

// NewDiscreteEstimator は numSymbols 個のシンボルを持つ推定器を作成する
func NewDiscreteEstimator(numSymbols int) (*DiscreteEstimator, error) {
	if numSymbols < 1 {
		return nil, errors.NewValidationError("num_symbols", "must be at least 1", numSymbols)
	}
	return &DiscreteEstimator{counts: make([]float64, numSymbols)}, nil
}

// AddValue はシンボルの観測を weight で加算する
func (d *DiscreteEstimator) AddValue(symbol int, weight float64) error {
	if err := d.checkSymbol("DiscreteEstimator.AddValue", symbol); err != nil {
		return err
	}
	if weight < 0 || !errors.IsFinite(weight) {
		return errors.NewValidationError("weight", "must be finite and non-negative", weight)
	}
	d.counts[symbol] += weight
	d.sumOfCounts += weight
	return nil
}

// Probability は平滑化されたシンボルの確率を返す
func (d *DiscreteEstimator) Probability(symbol int) (float64, error) {
	if err := d.checkSymbol("DiscreteEstimator.Probability", symbol); err != nil {
		return 0, err
	}
	return d.probability(symbol), nil
}

// LogProbability は平滑化されたシンボルの対数確率を返す
func (d *DiscreteEstimator) LogProbability(symbol int) (float64, error) {
	p, err := d.Probability(symbol)
	if err != nil {
		return 0, err
	}
	return math.Log(p), nil
}

func (d *DiscreteEstimator) probability(symbol int) float64 {
	return (d.counts[symbol] + 1) / (d.sumOfCounts + float64(len(d.counts)))
}

func (d *DiscreteEstimator) checkSymbol(op string, symbol int) error {
	if symbol < 0 || symbol >= len(d.counts) {
		return errors.NewSchemaError(op, "",
			fmt.Sprintf("symbol index out of range [0, %d)", len(d.counts)), symbol)
	}
	return nil
}

// NumSymbols はシンボル数を返す
func (d *DiscreteEstimator) NumSymbols() int {
	return len(d.counts)
}

// Count は平滑化前の加重カウントを返す。範囲外のシンボルは0
func (d *DiscreteEstimator) Count(symbol int) float64 {
	if symbol < 0 || symbol >= len(d.counts) {
		return 0
	}
	return d.counts[symbol]
}

// SumOfCounts は全シンボルの加重カウントの合計を返す
func (d *DiscreteEstimator) SumOfCounts() float64 {
	return d.sumOfCounts
}

func (d *DiscreteEstimator) String() string {
	var b strings.Builder
	b.WriteString("Discrete Estimator. Counts = ")
	for i, c := range d.counts {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%g", c+1)
	}
	fmt.Fprintf(&b, "  (Total = %g)", d.sumOfCounts+float64(len(d.counts)))
	return b.String()
}
