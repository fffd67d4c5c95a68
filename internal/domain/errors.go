package domain

import "errors"

var (
	ErrDocumentTooLarge    = errors.New("document exceeds maximum allowed size")
	ErrDocumentTooDeep     = errors.New("document exceeds maximum nesting depth")
	ErrEmptyDocument       = errors.New("document contains no root element")
	ErrUnsupportedEncoding = errors.New("unsupported character encoding")
	ErrEncodingMismatch    = errors.New("declared encoding does not match byte stream")
	ErrRuleSetNotFound     = errors.New("rule set not found")
	ErrInvalidRuleSet      = errors.New("rule set definition is invalid")
	ErrInvalidSchema       = errors.New("schema definition is invalid")
	ErrInvalidRule         = errors.New("rule definition is invalid")
	ErrUnknownRuleKind     = errors.New("unknown rule kind")
	ErrUnknownSeverity     = errors.New("unknown severity")
	ErrInvalidPath         = errors.New("invalid node path")
	ErrRuleEvaluation      = errors.New("rule evaluation failed")
	ErrMissingFile         = errors.New("missing file")
	ErrMalformedReport     = errors.New("malformed validation report")
	ErrObjectNotFound      = errors.New("object not found")
)
