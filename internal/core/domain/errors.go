package domain

import "errors"

var (
	// ErrInvalidCoordinate is returned for out-of-range or non-finite
	// coordinates and for malformed geohash strings.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrInvalidRadius is returned for non-positive, non-finite or
	// out-of-band radii.
	ErrInvalidRadius = errors.New("invalid radius")
	// ErrIndexUnavailable wraps any failure of the backing store.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrMissingLocation is returned when an entity has no indexed location.
	ErrMissingLocation = errors.New("missing location")

	ErrGroupNotFound   = errors.New("group not found")
	ErrGroupInactive   = errors.New("group inactive")
	ErrNotMember       = errors.New("not a group member")
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSuperseded is returned when a newer query or location write won
	// over this one.
	ErrSuperseded      = errors.New("superseded")
	ErrInvalidInput    = errors.New("invalid input")
)
