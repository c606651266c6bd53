package columnar

import "fmt"

// ValidationError reports an internally inconsistent schema, array or batch
type ValidationError struct {
	Path string
	Msg  string
}

func validationErrf(path string, format string, args ...any) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return e.Path + ": " + e.Msg
}
