package logconfig

import (
	logger "github.com/sirupsen/logrus"
)

// Verbose colored output for local runs and tests.
func ConfigDebugLogger() {
	logger.SetReportCaller(true)
	logger.SetLevel(logger.DebugLevel)
	logger.SetFormatter(&logger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func ConfigInfoLogger() {
	logger.SetReportCaller(false)
	logger.SetLevel(logger.InfoLevel)
	logger.SetFormatter(&logger.TextFormatter{
		ForceColors:            true,
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// Plain timestamped output for deployed relayers.
func ConfigProductionLogger() {
	logger.SetReportCaller(false)
	logger.SetLevel(logger.InfoLevel)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}
