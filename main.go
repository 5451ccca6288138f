package main

import (
	"os"

	llmcsv "github.com/temirov/llm-csv/cmd/llm-csv"
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction())

	executionErr := llmcsv.Execute()
	if executionErr != nil {
		logger.Error("command execution failed", zap.Error(executionErr))
		_ = logger.Sync()
		os.Exit(1)
	}

	syncErr := logger.Sync()
	if syncErr != nil {
		os.Exit(1)
	}
}
