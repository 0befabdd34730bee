package suppression

import (
	"errors"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
)

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound      = fmt.Errorf("suppression entry %w", domain.ErrNotFound)
	ErrInvalidEmail  = fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	ErrInvalidReason = fmt.Errorf("%w: invalid suppression reason", domain.ErrValidation)
	ErrLookupFailed  = errors.New("suppression lookup failed")
)
