// Package telemetry starts the exporter that reports traces and stats
// collected while the service runs.
package telemetry

import (
	"time"

	"go.viam.com/utils/perf"
)

const reportingInterval = 10 * time.Second

// Setup starts a development exporter for the spans and stats the service
// records. The caller must Stop the returned exporter on shutdown.
func Setup() (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: reportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}

	return exporter, nil
}
