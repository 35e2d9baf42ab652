package httputil

import (
	"time"

	"github.com/username/threadline/internal/pkg/constants"
)

// TimeoutConfig holds timeout configurations for different operations
type TimeoutConfig struct {
	Default time.Duration
	Short   time.Duration
	Long    time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	Default: constants.DefaultHTTPTimeout,
	Short:   constants.ShortHTTPTimeout,
	Long:    constants.LongHTTPTimeout,
}
