package envvar

const (
	// EstimatorEnv is the environment variable used to determine the environment
	EstimatorEnv = "ESTIMATOR_ENV"

	// EstimatorSocket overrides the unix socket path the estimator listens on
	EstimatorSocket = "ESTIMATOR_SOCKET"

	// EstimatorDownloadPath overrides the directory downloaded model artifacts are kept in
	EstimatorDownloadPath = "ESTIMATOR_DOWNLOAD_PATH"

	// ModelServerEnable enables model resolution through the remote model server
	ModelServerEnable = "MODEL_SERVER_ENABLE"

	// ModelServerURL is the base URL of the remote model server
	ModelServerURL = "MODEL_SERVER_URL"
)
