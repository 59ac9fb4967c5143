package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Drew-Chase/playarr/internal/v1/logging"
)

// GetAllowedOriginsFromEnv reads a comma-separated origin list from the
// named environment variable, falling back to defaultEnvs (and logging a
// warning) when it isn't set. Domain-agnostic, so it's shared by every CORS
// setup regardless of what's behind it.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}
