// Package prompt renders the model prompt from a schema snapshot, the fixed
// exemplar set, prior turns and, on retries, a correction for the last
// rejected answer. Rendering is deterministic for identical inputs.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlcheck"
)

//go:embed templates/*.tmpl templates/exemplars.yaml
var embeddedFS embed.FS

const DefaultVersion = "v1"

type Exemplar struct {
	Kind     string `yaml:"kind"`
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

type exemplarSet struct {
	Version   string     `yaml:"version"`
	Exemplars []Exemplar `yaml:"exemplars"`
}

// Turn is one earlier question in the same conversation and the SQL that
// answered it.
type Turn struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type Builder struct {
	version   string
	dialect   string
	tmpl      *template.Template
	exemplars []Exemplar
}

// New loads the embedded template and exemplars for version. An empty
// version selects DefaultVersion.
func New(version, dialect string) (*Builder, error) {
	return NewFromFS(embeddedFS, version, dialect)
}

func NewFromFS(fsys fs.FS, version, dialect string) (*Builder, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}
	dialect = strings.TrimSpace(dialect)
	if dialect == "" {
		dialect = "SQLite"
	}

	raw, err := fs.ReadFile(fsys, path.Join("templates", version+".tmpl"))
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", version, err)
	}
	tmpl, err := template.New(version).Funcs(template.FuncMap{"join": strings.Join}).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", version, err)
	}

	rawExemplars, err := fs.ReadFile(fsys, path.Join("templates", "exemplars.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read exemplars: %w", err)
	}
	var set exemplarSet
	if err := yaml.Unmarshal(rawExemplars, &set); err != nil {
		return nil, fmt.Errorf("decode exemplars: %w", err)
	}
	if set.Version != version {
		return nil, fmt.Errorf("exemplars version %q does not match template %q", set.Version, version)
	}
	if err := checkExemplarCoverage(set.Exemplars); err != nil {
		return nil, err
	}

	return &Builder{version: version, dialect: dialect, tmpl: tmpl, exemplars: set.Exemplars}, nil
}

func (b *Builder) Version() string {
	return b.version
}

var requiredExemplarKinds = []string{"filter", "aggregation", "join", "subquery"}

func checkExemplarCoverage(exemplars []Exemplar) error {
	seen := map[string]bool{}
	for _, exemplar := range exemplars {
		if strings.TrimSpace(exemplar.Question) == "" || strings.TrimSpace(exemplar.SQL) == "" {
			return fmt.Errorf("exemplar %q needs both a question and SQL", exemplar.Kind)
		}
		seen[exemplar.Kind] = true
	}
	for _, kind := range requiredExemplarKinds {
		if !seen[kind] {
			return fmt.Errorf("exemplar set has no %s example", kind)
		}
	}
	return nil
}

type tableView struct {
	Kind    string
	Name    string
	Columns []string
}

type correctionView struct {
	Instruction string
	Suggestions []string
}

type promptData struct {
	Dialect    string
	Tables     []tableView
	Relations  []string
	Exemplars  []Exemplar
	Turns      []Turn
	Correction *correctionView
	Question   string
}

// Build renders the prompt. turns are rendered oldest first; priorFailure
// is nil on the first attempt.
func (b *Builder) Build(model *schema.Model, question string, turns []Turn, priorFailure *sqlcheck.Failure) (string, error) {
	if model == nil {
		return "", fmt.Errorf("schema model is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is required")
	}

	data := promptData{
		Dialect:   b.dialect,
		Exemplars: b.exemplars,
		Question:  question,
	}
	for _, table := range model.Tables() {
		data.Tables = append(data.Tables, renderTable(table))
		for _, fk := range table.ForeignKeys {
			data.Relations = append(data.Relations, fmt.Sprintf(
				"%s.%s references %s.%s.", table.Name, fk.Column, fk.ReferencedTable, fk.ReferencedColumn))
		}
	}
	for _, turn := range turns {
		data.Turns = append(data.Turns, Turn{
			Question: strings.TrimSpace(turn.Question),
			SQL:      strings.TrimSpace(turn.SQL),
		})
	}
	if priorFailure != nil {
		data.Correction = &correctionView{
			Instruction: instruction(priorFailure),
			Suggestions: Suggest(model, priorFailure),
		}
	}

	var out bytes.Buffer
	if err := b.tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out.String(), nil
}

func renderTable(table schema.Table) tableView {
	kind := "TABLE"
	if table.View {
		kind = "VIEW"
	}
	references := map[string]bool{}
	for _, fk := range table.ForeignKeys {
		references[fk.Column] = true
	}

	view := tableView{Kind: kind, Name: table.Name}
	for _, column := range table.Columns {
		parts := []string{column.Name}
		if column.Type != "" {
			parts = append(parts, column.Type)
		}
		if column.PrimaryKey {
			parts = append(parts, "PK")
		}
		if references[column.Name] {
			parts = append(parts, "FK")
		}
		if !column.Nullable && !column.PrimaryKey {
			parts = append(parts, "NOT NULL")
		}
		view.Columns = append(view.Columns, strings.Join(parts, " "))
	}
	return view
}

func instruction(failure *sqlcheck.Failure) string {
	switch failure.Reason {
	case sqlcheck.ReasonEmptyCandidate:
		return "Your previous answer contained no SQL query. Answer with one SELECT statement."
	case sqlcheck.ReasonSyntaxError:
		if failure.Token != "" {
			return fmt.Sprintf("Your previous query was not valid SQL near %q. Write syntactically valid SQL.", failure.Token)
		}
		return "Your previous query was not valid SQL. Write syntactically valid SQL."
	case sqlcheck.ReasonForbiddenOperation:
		return fmt.Sprintf("Your previous query used %s. Only SELECT queries are allowed.", failure.Token)
	case sqlcheck.ReasonUnknownTable:
		return fmt.Sprintf("Your previous query referenced table %q, which does not exist. Use only the listed tables.", failure.Table)
	case sqlcheck.ReasonUnknownColumn:
		if failure.Table != "" {
			return fmt.Sprintf("Your previous query referenced column %q, which does not exist on table %q.", failure.Column, failure.Table)
		}
		return fmt.Sprintf("Your previous query referenced column %q, which does not exist.", failure.Column)
	case sqlcheck.ReasonStackedStatements:
		return "Your previous answer contained more than one statement. Return exactly one SELECT statement."
	default:
		return "Your previous query was rejected: " + failure.Error()
	}
}
