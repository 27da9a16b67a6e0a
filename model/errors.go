package model

import "errors"

// ErrInvalidConfig indicates an out-of-range option value. Estimators
// return it before running any iteration; no partial state accompanies
// it.
var ErrInvalidConfig = errors.New("model: invalid configuration")
