package common

// Decision rule
const (
	// DecisionThreshold is the default-probability cutoff shared by scoring
	// and cohort selection. A client is classified as a probable default when
	// its probability is greater than or equal to this value.
	DecisionThreshold = 0.2

	// TopAttributions is the number of features returned by the ranked
	// explanation.
	TopAttributions = 5

	// OutcomeColumn is the reserved ground-truth label column of the feature
	// table. It is never fed to the model.
	OutcomeColumn = "TARGET"
)

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvModelPath       = "MODEL_PATH"
	EnvDataPath        = "DATA_PATH"
	EnvListenPort      = "LISTEN_PORT"
	EnvMetricsPort     = "METRICS_PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvClientTimeout   = "CLIENT_TIMEOUT"
	EnvAPIURL          = "API_URL"
)

// Configuration defaults
const (
	DefaultModelPath       = "models/model.json"
	DefaultDataPath        = "data/application_test_subset.csv"
	DefaultListenPort      = 8000
	DefaultMetricsPort     = 9090
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultAPIURL          = "http://127.0.0.1:8000"
	DefaultReadTimeout     = "10s"
	DefaultWriteTimeout    = "30s"
	DefaultShutdownTimeout = "10s"
	DefaultClientTimeout   = "30s"
)
