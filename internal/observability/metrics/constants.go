package metrics

// Worker batch status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)
