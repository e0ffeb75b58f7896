package density

import (
	"fmt"
	"io"
	"math"

	"github.com/YuminosukeSato/softclust/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const plotSamples = 200

// PlotAttribute は数値属性 attr について、事前確率で重み付けしたクラスタごとの正規密度と
// その和を描画し、format（"png", "svg", "pdf" など）で w に書き出す。
func PlotAttribute(m *DistributionClusterer, attr int, w io.Writer, format string) error {
	st, err := m.fitted("PlotAttribute")
	if err != nil {
		return err
	}
	if attr < 0 || attr >= st.schema.NumAttributes() {
		return errors.NewValidationError("attribute", "index out of range", attr)
	}
	a := st.schema.Attribute(attr)
	if !a.IsNumeric() {
		return errors.NewValidationError("attribute", "only numeric attributes can be plotted", a.Name)
	}

	// 描画範囲: 各クラスタの平均 ± 4σ
	lo, hi := math.Inf(1), math.Inf(-1)
	for c := 0; c < st.numClusters; c++ {
		if st.counts[c] == 0 {
			continue
		}
		n := st.normals[c][attr]
		lo = math.Min(lo, n.Mean-4*n.StdDev)
		hi = math.Max(hi, n.Mean+4*n.StdDev)
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Cluster densities: %s", a.Name)
	p.X.Label.Text = a.Name
	p.Y.Label.Text = "prior × density"
	p.Legend.Top = true

	step := (hi - lo) / float64(plotSamples-1)
	mixture := make(plotter.XYs, plotSamples)
	for i := range mixture {
		mixture[i].X = lo + float64(i)*step
	}

	for c := 0; c < st.numClusters; c++ {
		if st.counts[c] == 0 {
			continue
		}
		n := st.normals[c][attr]
		pts := make(plotter.XYs, plotSamples)
		for i := range pts {
			x := mixture[i].X
			y := st.priors[c] * n.Density(x)
			pts[i].X, pts[i].Y = x, y
			mixture[i].Y += y
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "cluster %d", c)
		}
		line.Color = plotutil.Color(c)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("cluster %d", c), line)
	}

	total, err := plotter.NewLine(mixture)
	if err != nil {
		return errors.Wrap(err, "mixture")
	}
	total.Dashes = plotutil.Dashes(1)
	total.Width = vg.Points(1.5)
	p.Add(total)
	p.Legend.Add("mixture", total)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return errors.Wrapf(err, "render %s", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write plot")
	}
	return nil
}
