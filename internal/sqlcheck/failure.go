package sqlcheck

import "fmt"

const Kind = "ValidationFailure"

type Reason string

const (
	ReasonEmptyCandidate     Reason = "EmptyCandidate"
	ReasonSyntaxError        Reason = "SyntaxError"
	ReasonForbiddenOperation Reason = "ForbiddenOperation"
	ReasonUnknownTable       Reason = "UnknownTable"
	ReasonUnknownColumn      Reason = "UnknownColumn"
	ReasonStackedStatements  Reason = "StackedStatements"
)

// Failure is a rejected candidate. Table, Column and Token name the
// offending identifier when the reason has one.
type Failure struct {
	Reason Reason
	Table  string
	Column string
	Token  string
	Detail string
}

func (f *Failure) Error() string {
	switch f.Reason {
	case ReasonEmptyCandidate:
		return "no SQL statement found in model output"
	case ReasonSyntaxError:
		if f.Token != "" {
			return fmt.Sprintf("syntax error near %q: %s", f.Token, f.Detail)
		}
		return "syntax error: " + f.Detail
	case ReasonForbiddenOperation:
		return fmt.Sprintf("%s statements are not allowed, only read-only SELECT queries", f.Token)
	case ReasonUnknownTable:
		return fmt.Sprintf("table %q does not exist", f.Table)
	case ReasonUnknownColumn:
		if f.Table == "" {
			return fmt.Sprintf("column %q does not exist", f.Column)
		}
		return fmt.Sprintf("column %q does not exist on table %q", f.Column, f.Table)
	case ReasonStackedStatements:
		return "only a single statement is allowed"
	default:
		return string(f.Reason)
	}
}

// Identifier is the offending name the failure points at, if any.
func (f *Failure) Identifier() string {
	switch f.Reason {
	case ReasonUnknownTable:
		return f.Table
	case ReasonUnknownColumn:
		return f.Column
	default:
		return f.Token
	}
}

// Result is the outcome of validating one candidate. SQL is set only when
// the candidate is valid.
type Result struct {
	SQL     string
	Failure *Failure
}

func (r Result) Valid() bool {
	return r.Failure == nil
}

func valid(sql string) Result {
	return Result{SQL: sql}
}

func invalid(f *Failure) Result {
	return Result{Failure: f}
}
