// Package log defines standard attribute keys for clustering and density
// estimation operations.
//
// Using these keys keeps log records from different estimators consistent,
// so fits of a wrapped clusterer and of the density overlay can be filtered
// together. Keys follow a hierarchical "group.name" convention.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "DistributionClusterer", "MiniBatchKMeans"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "partition", "predict", "transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// WrappedModelKey names the hard clusterer wrapped by a density overlay.
	WrappedModelKey = "model.wrapped"
)

// Data Shape
const (
	// SamplesKey is the number of instances (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of attributes (columns) in the dataset.
	FeaturesKey = "data.features"

	// NumericKey and SymbolicKey count attributes by kind.
	NumericKey  = "data.numeric_attributes"
	SymbolicKey = "data.symbolic_attributes"

	// MissingKey is the number of missing attribute values skipped.
	MissingKey = "data.missing_values"
)

// Clustering Context
const (
	// ClustersKey is the number of clusters produced by the wrapped clusterer.
	ClustersKey = "cluster.count"

	// ClusterKey identifies a single cluster index.
	ClusterKey = "cluster.index"

	// EmptyClustersKey counts clusters that received no training instances.
	EmptyClustersKey = "cluster.empty"

	// AttributeKey names the attribute a record refers to.
	AttributeKey = "cluster.attribute"

	// StdDevKey records an estimated standard deviation.
	StdDevKey = "stats.std_dev"

	// ClampedKey counts standard deviations raised to the configured floor.
	ClampedKey = "stats.clamped"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"

	// InertiaKey records the within-cluster sum of squares of a partition.
	InertiaKey = "metrics.inertia"

	// LogLikelihoodKey records the mean log density of a dataset.
	LogLikelihoodKey = "metrics.log_likelihood"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"
)

// Hyperparameters and Configuration
const (
	// MinStdDevKey records the standard deviation floor.
	MinStdDevKey = "hyperparams.min_std_dev"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPartition = "partition"
	OperationPredict   = "predict"
	OperationTransform = "transform"

	PhaseTraining  = "training"
	PhaseInference = "inference"

	ErrorNotFitted      = "NOT_FITTED"
	ErrorSchemaMismatch = "SCHEMA_MISMATCH"
	ErrorEmptyData      = "EMPTY_DATA"
	ErrorConfiguration  = "CONFIGURATION"
	ErrorEstimation     = "ESTIMATION_FAILURE"
)
