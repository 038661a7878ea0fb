package services

import "errors"

// Shared sentinels used across services and the HTTP error mapping.
var (
	// Lookup failures
	ErrVersionNotFound   = errors.New("schedule version not found")
	ErrMatchNotFound     = errors.New("match not found in this version")
	ErrSlotNotFound      = errors.New("slot not found in this version")
	ErrAssignmentMissing = errors.New("match has no assignment")
	ErrRunNotFound       = errors.New("policy run not found")

	// Validation and business rules
	ErrValidationFailed    = errors.New("validation failed")
	ErrVersionFinalized    = errors.New("schedule version is finalized")
	ErrMatchNotSchedulable = errors.New("match is completed or canceled and cannot be scheduled")
	ErrSlotInactive        = errors.New("slot is inactive")
	ErrSlotBlocked         = errors.New("slot is blocked")
	ErrDurationExceedsSlot = errors.New("match duration exceeds slot duration")
	ErrRestConstraint      = errors.New("placement violates team rest constraint")
	ErrStageOrder          = errors.New("placement would start before a prerequisite match")
	ErrTeamDailyLimit      = errors.New("placement exceeds the team's daily match limit")

	// Conflicts
	ErrSlotOccupied           = errors.New("slot already holds another match")
	ErrMatchPinnedElsewhere   = errors.New("match is pinned to a different slot")
	ErrSlotReservedForPin     = errors.New("slot is reserved for a pinned match")
	ErrPinConflictsAssignment = errors.New("match is already assigned to a different slot")
	ErrMatchAlreadyPinned     = errors.New("match is already pinned")
	ErrSlotAlreadyBlocked     = errors.New("slot is already blocked")
	ErrLockMissing            = errors.New("lock not found")

	// Policy runs
	ErrRunSignatureInvalid = errors.New("policy run signature verification failed")
	ErrRunVersionMismatch  = errors.New("policy runs belong to different schedule versions")
	ErrNoSlotsDefined      = errors.New("schedule version has no slots")
)
