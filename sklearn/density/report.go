package density

import (
	"fmt"
	"strings"
)

// String は学習済みモデルの人間向けレポートを返す。
// クラスタごとに事前確率と、宣言順に全属性の分布を1回ずつ列挙する。
func (m *DistributionClusterer) String() string {
	m.mu.RLock()
	st, clusterer := m.state, m.clusterer
	m.mu.RUnlock()

	if st == nil {
		wrapped := "none"
		if clusterer != nil {
			wrapped = typeName(clusterer)
		}
		return fmt.Sprintf("DistributionClusterer(clusterer=%s, min_std_dev=%g): not fitted", wrapped, m.MinStdDev())
	}

	var b strings.Builder
	b.WriteString("DistributionClusterer\n\n")
	fmt.Fprintf(&b, "Wrapped clusterer: %s\n", st.wrapped)
	b.WriteString("\nFitted estimators:\n")

	for c := 0; c < st.numClusters; c++ {
		fmt.Fprintf(&b, "\nCluster: %d Prior probability: %.4f (%d instances)\n\n", c, st.priors[c], st.counts[c])
		for a, attr := range st.schema.Attributes {
			fmt.Fprintf(&b, "Attribute: %s\n", attr.Name)
			switch {
			case attr.IsSymbolic():
				b.WriteString(st.discrete[c][a].String())
			case st.counts[c] == 0:
				b.WriteString("Normal Distribution. No training instances")
			default:
				b.WriteString(st.normals[c][a].String())
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
