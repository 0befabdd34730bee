package experiment

import (
	"errors"
	"fmt"

	"github.com/ignite/send-governor/internal/domain"
)

// Sentinel errors for the experiment service layer.
var (
	ErrVariantNotFound    = fmt.Errorf("variant %w", domain.ErrNotFound)
	ErrExperimentNotFound = fmt.Errorf("experiment %w", domain.ErrNotFound)

	ErrInvalidVariant    = fmt.Errorf("%w: invalid variant", domain.ErrValidation)
	ErrInvalidTemplate   = fmt.Errorf("%w: template does not parse", domain.ErrValidation)
	ErrInvalidWeights    = fmt.Errorf("%w: weights must sum to exactly 100", domain.ErrValidation)
	ErrWeightExceeded    = fmt.Errorf("%w: active variant weights would exceed 100", domain.ErrValidation)
	ErrInvalidExperiment = fmt.Errorf("%w: invalid experiment", domain.ErrValidation)

	ErrControlExists     = fmt.Errorf("%w: campaign already has a control variant", domain.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid experiment status transition", domain.ErrConflict)
	ErrBusy              = fmt.Errorf("%w: another change is in progress", domain.ErrConflict)

	// Repository signals.
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAssignmentExists   = errors.New("assignment already exists")
)
