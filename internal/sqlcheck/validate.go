// Package sqlcheck statically validates model-generated SQL against a
// schema snapshot before anything reaches the database.
package sqlcheck

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/querypilot/querypilot/internal/extract"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqltext"
)

// statementVerbs are leading keywords of statements that are recognized
// but never allowed to run.
var statementVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true, "REPLACE": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "RENAME": true, "COMMENT": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true, "REINDEX": true, "ANALYZE": true,
	"GRANT": true, "REVOKE": true, "BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true,
	"RELEASE": true, "START": true, "COPY": true, "CALL": true, "EXEC": true, "EXECUTE": true,
	"SET": true, "RESET": true, "EXPLAIN": true, "VALUES": true, "LOAD": true, "INSTALL": true, "USE": true,
	"SHOW": true, "DESCRIBE": true, "LOCK": true, "UNLOCK": true, "DO": true, "HANDLER": true,
}

// writeVerbs may follow a WITH clause.
var writeVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "REPLACE": true, "UPSERT": true,
}

// Validate runs the ordered checks on the candidate and stops at the first
// failure. A valid result carries the sanitized statement.
func Validate(candidate extract.Candidate, model *schema.Model) Result {
	body := sqltext.Body(candidate.SQL)
	if body == "" {
		return invalid(&Failure{Reason: ReasonEmptyCandidate})
	}

	script, err := scriptParser.ParseString("", body)
	if err != nil {
		if failure := forbiddenByVerb(body); failure != nil {
			return invalid(failure)
		}
		return invalid(syntaxFailure(err))
	}

	for _, stmt := range script.Statements {
		if failure := checkKind(stmt, body); failure != nil {
			return invalid(failure)
		}
	}

	var columnFailure *Failure
	for _, stmt := range script.Statements {
		r := newResolver(model)
		r.statement(stmt.Query)
		if r.unknownTable != nil {
			return invalid(r.unknownTable)
		}
		if columnFailure == nil {
			columnFailure = r.unknownColumn
		}
	}
	if columnFailure != nil {
		return invalid(columnFailure)
	}

	if len(script.Statements) > 1 {
		return invalid(&Failure{Reason: ReasonStackedStatements, Token: ";"})
	}
	return valid(body + ";")
}

func checkKind(stmt *Statement, body string) *Failure {
	if stmt.Query != nil {
		if selectsInto(stmt.Query) {
			return &Failure{Reason: ReasonForbiddenOperation, Token: "SELECT INTO"}
		}
		return nil
	}

	verb := strings.ToUpper(stmt.Other.Verb)
	if verb == "WITH" {
		if write := writeAfterWith(stmt.Other.Rest); write != "" {
			return &Failure{Reason: ReasonForbiddenOperation, Token: write}
		}
		// Not a write: report why the query itself did not parse.
		text := body[stmt.Pos.Offset:stmt.EndPos.Offset]
		if _, err := queryParser.ParseString("", text); err != nil {
			return syntaxFailure(err)
		}
		return &Failure{Reason: ReasonSyntaxError, Token: stmt.Other.Verb, Detail: "malformed WITH query"}
	}
	if statementVerbs[verb] {
		return &Failure{Reason: ReasonForbiddenOperation, Token: verb}
	}
	return &Failure{Reason: ReasonSyntaxError, Token: stmt.Other.Verb, Detail: "unknown statement"}
}

// forbiddenByVerb classifies each statement by its leading word alone. It
// covers writes the grammar cannot lex, such as placeholders or dialect
// operators, so they are still reported by verb.
func forbiddenByVerb(body string) *Failure {
	for _, statement := range sqltext.Statements(body) {
		words := sqltext.Words(statement)
		if len(words) == 0 {
			continue
		}
		verb := strings.ToUpper(words[0])
		switch {
		case verb == "WITH":
			if write := writeAfterWith(words[1:]); write != "" {
				return &Failure{Reason: ReasonForbiddenOperation, Token: write}
			}
		case statementVerbs[verb]:
			return &Failure{Reason: ReasonForbiddenOperation, Token: verb}
		}
	}
	return nil
}

func selectsInto(q *Query) bool {
	if q.First.Into != nil {
		return true
	}
	for _, part := range q.Compound {
		if part.Core.Into != nil {
			return true
		}
	}
	return false
}

func writeAfterWith(tokens []string) string {
	depth := 0
	for _, token := range tokens {
		switch token {
		case "(":
			depth++
		case ")":
			depth--
		default:
			if depth == 0 && writeVerbs[strings.ToUpper(token)] {
				return strings.ToUpper(token)
			}
		}
	}
	return ""
}

func syntaxFailure(err error) *Failure {
	failure := &Failure{Reason: ReasonSyntaxError, Detail: err.Error()}
	var unexpected *participle.UnexpectedTokenError
	if errors.As(err, &unexpected) {
		failure.Token = unexpected.Unexpected.Value
		failure.Detail = unexpected.Message()
		return failure
	}
	var parseErr participle.Error
	if errors.As(err, &parseErr) {
		failure.Detail = parseErr.Message()
	}
	return failure
}
