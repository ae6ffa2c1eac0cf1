package client

// Node API paths.
const (
	healthPath        = "/health"
	programPath       = "/api/program"
	txPath            = "/api/tx"
	requestsPath      = "/api/requests/"
	reportsPath       = "/api/reports/"
	verificationsPath = "/api/verifications/"
)
