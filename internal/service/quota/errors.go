package quota

import (
	"errors"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
)

// Sentinel errors for the quota service layer.
var (
	ErrLimitOutOfRange  = fmt.Errorf("%w: daily limit out of range", domain.ErrValidation)
	ErrQuotaExceeded    = errors.New("daily send limit reached")
	ErrQuotaUnavailable = errors.New("quota state unavailable")
)
