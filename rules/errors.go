package rules

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/marginguard/exchange"
)

var (
	// ErrRuleUnavailable matches any *UnavailableError.
	ErrRuleUnavailable = errors.New("rule unavailable")
	// ErrRuleParse matches any *ParseError.
	ErrRuleParse = errors.New("rule parse error")

	errSymbolMissing = errors.New("symbol not present in document")
	errNoDownloader  = errors.New("no download collaborator configured")
)

// UnavailableError means neither the cache nor the download collaborator
// produced data for the symbol. Risk calculations for it cannot proceed.
type UnavailableError struct {
	Exchange exchange.Kind
	Symbol   string
	Document Document
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s %s for %s unavailable: %v", e.Exchange, e.Document, e.Symbol, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrRuleUnavailable }

// ParseError reports an upstream document that does not match the expected
// schema. Callers receive conservative defaults alongside it.
type ParseError struct {
	Exchange exchange.Kind
	Symbol   string
	Field    string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s rules for %s: bad field %q", e.Exchange, e.Symbol, e.Field)
	}
	return fmt.Sprintf("parse %s rules for %s: field %q: %v", e.Exchange, e.Symbol, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrRuleParse }
