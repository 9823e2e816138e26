package errors

import "errors"

var (
	// ErrUnknownEquipment means the supplied reference matched nothing in
	// the asset registry.
	ErrUnknownEquipment = errors.New("equipment reference not found")

	// ErrRatingOutOfRange means the rating score fell outside 1..5.
	ErrRatingOutOfRange = errors.New("rating score must be between 1 and 5")

	// ErrEmptyIssueDescription means the subject sent nothing usable as an
	// issue description.
	ErrEmptyIssueDescription = errors.New("issue description is empty")
)
