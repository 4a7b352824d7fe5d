package config

import "errors"

// ErrInvalidConfiguration marks a bad startup parameter: an undecodable
// key, an oversized alias, a non-numeric size. Always fatal, always before
// any network resource is opened.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrUnsupportedFeature marks a request for a feature that is deliberately
// disabled rather than silently ignored. Fatal by design.
var ErrUnsupportedFeature = errors.New("unsupported feature requested")
