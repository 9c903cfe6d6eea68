// Package observability provides production-grade observability infrastructure
// including structured logging and Prometheus metrics.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//
// Example usage:
//
//	import (
//	    "flashcard-pipeline/internal/observability/logging"
//	    "flashcard-pipeline/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("pipeline started")
//
//	    metrics.RecordItemProcessed("success")
//	}
package observability
