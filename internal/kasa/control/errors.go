package control

import "errors"

// ErrUnknownPoint is returned by Set when point names no device and
// is not the literal "all".
var ErrUnknownPoint = errors.New("control: unknown point")

// allPoint is the literal that addresses every control point at once.
const allPoint = "all"
