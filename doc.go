// Package softclust turns hard clusterers into probabilistic density estimators.
//
// A hard clusterer assigns every training instance to exactly one cluster.
// softclust wraps such a clusterer and fits, for every cluster, a Laplace
// smoothed frequency table per symbolic attribute and a Gaussian per numeric
// attribute. Cluster priors come from the hard assignment counts. The result
// answers density and posterior queries the way a naive Bayes mixture does.
//
// # Quick Start
//
//	schema, _ := dataset.NewSchema(
//	    dataset.NewNumeric("temperature"),
//	    dataset.NewSymbolic("outlook", "sunny", "overcast", "rainy"),
//	)
//	ds, _ := dataset.New(schema, rows)
//
//	kmeans := cluster.NewMiniBatchKMeans(
//	    cluster.WithKMeansNClusters(3),
//	    cluster.WithKMeansRandomState(42),
//	)
//	model := density.NewDistributionClusterer(density.WithClusterer(kmeans))
//	if err := model.Fit(ds); err != nil {
//	    log.Fatal(err)
//	}
//
//	posterior, err := model.DistributionForInstance([]float64{21.5, 0})
//
// Missing attribute values are NaN (dataset.Missing()). They are skipped
// when statistics are accumulated and when likelihoods are multiplied.
//
// # Packages
//
//   - core/dataset: attribute schema and gonum backed datasets
//   - core/model: HardClusterer and DensityEstimator interfaces, fitted state
//   - core/parallel: row-range fan-out for batch inference
//   - sklearn/density: DistributionClusterer, DiscreteEstimator, plots
//   - sklearn/cluster: MiniBatchKMeans, a HardClusterer over datasets
//   - preprocessing: StandardScaler and MinMaxScaler
//   - metrics: log-likelihood and assignment metrics for density estimators
//   - pkg/errors: typed errors and warnings built on cockroachdb/errors
//   - pkg/log: slog based structured logging and the zerolog warning sink
//
// # Concurrency
//
// Fit builds the new state aside and swaps it in only on success, so a failed
// Fit leaves the previous model untouched. Once Fit returns, every inference
// method is safe for concurrent use.
package softclust
