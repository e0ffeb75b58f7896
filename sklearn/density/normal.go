package density

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/softclust/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// Normal はクラスタ内の数値属性を表す正規分布のパラメータ
type Normal struct {
	Mean   float64
	StdDev float64
}

func (n Normal) dist() distuv.Normal {
	return distuv.Normal{Mu: n.Mean, Sigma: n.StdDev}
}

// Density は x における確率密度を返す
func (n Normal) Density(x float64) float64 {
	return n.dist().Prob(x)
}

// LogDensity は x における対数確率密度を返す
func (n Normal) LogDensity(x float64) float64 {
	return n.dist().LogProb(x)
}

func (n Normal) String() string {
	return fmt.Sprintf("Normal Distribution. Mean = %.4f StdDev = %.4f", n.Mean, n.StdDev)
}

// estimateNormal は十分統計量 (sum, sumSq) と件数 n から最尤推定する。
// 桁落ちで負になった分散は0に丸め、minStdDev 以下または非有限の標準偏差は minStdDev にする。
// clamped は下限が適用されたかどうか。n は正であること。
func estimateNormal(sum, sumSq, n, minStdDev float64) (normal Normal, rawStdDev float64, clamped bool) {
	mean := sum / n
	variance := (sumSq - sum*sum/n) / n
	rawStdDev = math.Sqrt(math.Max(variance, 0))

	stdDev := rawStdDev
	if stdDev <= minStdDev || !errors.IsFinite(stdDev) {
		stdDev = minStdDev
		clamped = true
	}
	return Normal{Mean: mean, StdDev: stdDev}, rawStdDev, clamped
}
