package visitor

import (
	"fmt"

	"externaltypes/internal/core/errors"
	"externaltypes/internal/engine/apipath"
)

// unstableFeature aborts the audit on an unstable language feature the
// checker cannot reason about.
func unstableFeature(path apipath.Path, feature, docURL string) error {
	err := &errors.DomainError{
		Code:    errors.CodeNotSupported,
		Message: fmt.Sprintf("unstable Rust feature '%s' (see %s) is not supported by check-external-types", feature, docURL),
	}
	return err.WithContext(errors.CtxPath, path.String()).WithContext(errors.CtxConstruct, feature)
}

func unsupported(path apipath.Path, construct string) error {
	err := &errors.DomainError{
		Code:    errors.CodeNotSupported,
		Message: fmt.Sprintf("%s is not supported by check-external-types", construct),
	}
	return err.WithContext(errors.CtxPath, path.String()).WithContext(errors.CtxConstruct, construct)
}
