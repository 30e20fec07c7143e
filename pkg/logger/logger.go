package logger

import "go.uber.org/zap"

// New builds the application logger. Development mode uses the console
// encoder, everything else gets JSON output.
func New(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
