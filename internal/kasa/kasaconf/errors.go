package kasaconf

import "fmt"

// ConfigInvalid is returned by Refresh/Apply when the document cannot
// be parsed. The HTTP layer surfaces it as a 400 carrying the parser's
// message; the existing live configuration is left untouched.
type ConfigInvalid struct {
	Err error
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("kasaconf: invalid configuration document: %v", e.Err)
}

func (e *ConfigInvalid) Unwrap() error { return e.Err }
