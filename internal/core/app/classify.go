package app

import (
	stderrors "errors"

	"validatetest/internal/core/errors"
	"validatetest/internal/engine/format"
	"validatetest/internal/engine/highlight"
	"validatetest/internal/engine/query"
)

// classify wraps engine errors in a DomainError carrying the operation and
// path. Typed errors stay reachable through errors.As.
func classify(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var compileErr *query.CompileError
	var cycleErr *highlight.InjectionCycleError
	var de *errors.DomainError
	switch {
	case stderrors.As(err, &de):
	case stderrors.As(err, &compileErr):
		err = errors.Wrap(err, errors.CodeQueryCompile, "query does not compile")
	case stderrors.As(err, &cycleErr):
		err = errors.Wrap(err, errors.CodeInjectionCycle, "injections form a cycle")
	case stderrors.Is(err, query.ErrStaleQuery):
		err = errors.Wrap(err, errors.CodeStaleQuery, "query was compiled for another grammar version")
	case stderrors.Is(err, highlight.ErrUnknownLanguage):
		err = errors.Wrap(err, errors.CodeNotFound, "unknown language")
	case stderrors.Is(err, format.ErrSyntax):
		err = errors.Wrap(err, errors.CodeSyntax, "document has syntax errors")
	case stderrors.Is(err, format.ErrCommentPosition):
		err = errors.Wrap(err, errors.CodeNotSupported, "comment position is not supported by the formatter")
	default:
		err = errors.Wrap(err, errors.CodeInternal, op+" failed")
	}
	err = errors.AddContext(err, errors.CtxOperation, op)
	return errors.AddContext(err, errors.CtxPath, path)
}
