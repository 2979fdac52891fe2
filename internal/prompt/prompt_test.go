package prompt

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlcheck"
)

func shopModel(t *testing.T) *schema.Model {
	t.Helper()
	model, err := schema.New([]schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "user_id", Type: "INTEGER", PrimaryKey: true},
				{Name: "username", Type: "VARCHAR(50)"},
			},
		},
		{
			Name: "orders",
			Columns: []schema.Column{
				{Name: "order_id", Type: "INTEGER", PrimaryKey: true},
				{Name: "user_id", Type: "INTEGER"},
				{Name: "quantity", Type: "INTEGER", Nullable: true},
				{Name: "order_date", Type: "DATE", Nullable: true},
			},
			ForeignKeys: []schema.ForeignKey{{Column: "user_id", ReferencedTable: "users", ReferencedColumn: "user_id"}},
		},
		{
			Name:    "order_summary",
			View:    true,
			Columns: []schema.Column{{Name: "username", Type: "TEXT", Nullable: true}},
		},
	})
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	return model
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	builder, err := New("", "SQLite")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return builder
}

func TestBuildRendersSchemaExemplarsAndQuestion(t *testing.T) {
	builder := newBuilder(t)
	got, err := builder.Build(shopModel(t), "  How many orders did alice place?  ", nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, want := range []string{
		"read-only SQLite SQL query",
		"VIEW order_summary (username TEXT)",
		"TABLE orders (order_id INTEGER PK, user_id INTEGER FK NOT NULL, quantity INTEGER, order_date DATE)",
		"TABLE users (user_id INTEGER PK, username VARCHAR(50) NOT NULL)",
		"- orders.user_id references users.user_id.",
		"GROUP BY p.category",
		"NOT IN (SELECT o.user_id FROM orders o)",
		"JOIN users u ON o.user_id = u.user_id",
		"WHERE p.price > 5000",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "Question: How many orders did alice place?\nSQL:\n") {
		t.Fatalf("prompt does not end with the question:\n%s", got)
	}
	if strings.Contains(got, "TABLE order_summary") {
		t.Fatal("view rendered as a table")
	}
	if strings.Contains(got, "Correction:") {
		t.Fatal("first attempt must not carry a correction")
	}
	if strings.Index(got, "VIEW order_summary") > strings.Index(got, "TABLE orders") {
		t.Fatal("tables are not in lexical order")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	builder := newBuilder(t)
	model := shopModel(t)
	failure := &sqlcheck.Failure{Reason: sqlcheck.ReasonUnknownColumn, Column: "user_name", Table: "orders"}
	turns := []Turn{{Question: "list users", SQL: "SELECT * FROM users;"}}

	first, err := builder.Build(model, "top buyers", turns, failure)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := builder.Build(model, "top buyers", turns, failure)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if again != first {
			t.Fatalf("render %d differs", i)
		}
	}
}

func TestBuildRendersTurnsOldestFirst(t *testing.T) {
	builder := newBuilder(t)
	got, err := builder.Build(shopModel(t), "and yesterday?", []Turn{
		{Question: "orders today", SQL: "SELECT COUNT(*) FROM orders WHERE order_date = '2024-05-02';"},
		{Question: "orders this week", SQL: "SELECT COUNT(*) FROM orders;"},
	}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	first := strings.Index(got, "Question: orders today")
	second := strings.Index(got, "Question: orders this week")
	current := strings.LastIndex(got, "Question: and yesterday?")
	if first < 0 || second < 0 || !(first < second && second < current) {
		t.Fatalf("turn order wrong (%d, %d, %d):\n%s", first, second, current, got)
	}
}

func TestBuildCorrectionNamesRuleAndSuggestions(t *testing.T) {
	builder := newBuilder(t)
	got, err := builder.Build(shopModel(t), "orders per user", nil, &sqlcheck.Failure{
		Reason: sqlcheck.ReasonUnknownColumn,
		Column: "user_name",
		Table:  "orders",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(got, `Correction: Your previous query referenced column "user_name", which does not exist on table "orders".`) {
		t.Fatalf("correction missing:\n%s", got)
	}
	if !strings.Contains(got, "Did you mean: user_id") {
		t.Fatalf("suggestions missing:\n%s", got)
	}
	if strings.Index(got, "Correction:") > strings.LastIndex(got, "Question: orders per user") {
		t.Fatal("correction must precede the question")
	}

	forbidden, err := builder.Build(shopModel(t), "remove users", nil, &sqlcheck.Failure{
		Reason: sqlcheck.ReasonForbiddenOperation,
		Token:  "DROP",
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(forbidden, "Your previous query used DROP. Only SELECT queries are allowed.") {
		t.Fatalf("forbidden correction missing:\n%s", forbidden)
	}
	if strings.Contains(forbidden, "Did you mean") {
		t.Fatal("forbidden operations have no suggestions")
	}
}

func TestBuildRequiresModelAndQuestion(t *testing.T) {
	builder := newBuilder(t)
	if _, err := builder.Build(nil, "q", nil, nil); err == nil {
		t.Fatal("expected error for nil model")
	}
	if _, err := builder.Build(shopModel(t), "   ", nil, nil); err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestSuggestRanksByEditDistance(t *testing.T) {
	model := shopModel(t)
	got := Suggest(model, &sqlcheck.Failure{Reason: sqlcheck.ReasonUnknownTable, Table: "order"})
	if len(got) == 0 || got[0] != "orders" {
		t.Fatalf("Suggest() = %v, want orders first", got)
	}
	if len(got) > maxSuggestions {
		t.Fatalf("Suggest() returned %d names", len(got))
	}
	if got := Suggest(model, &sqlcheck.Failure{Reason: sqlcheck.ReasonSyntaxError}); got != nil {
		t.Fatalf("syntax errors have no suggestions, got %v", got)
	}
}

func TestNewFromFSRejectsIncompleteExemplars(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/v1.tmpl": {Data: []byte("{{.Question}}")},
		"templates/exemplars.yaml": {Data: []byte(`version: v1
exemplars:
  - kind: filter
    question: q
    sql: SELECT 1;
`)},
	}
	if _, err := NewFromFS(fsys, "v1", "SQLite"); err == nil || !strings.Contains(err.Error(), "aggregation") {
		t.Fatalf("NewFromFS() error = %v, want missing aggregation example", err)
	}
	if _, err := NewFromFS(fsys, "v2", "SQLite"); err == nil {
		t.Fatal("expected error for missing template version")
	}
}

func TestEmbeddedExemplarsAreValidSQL(t *testing.T) {
	model, err := schema.New([]schema.Table{
		{Name: "users", Columns: []schema.Column{{Name: "user_id"}, {Name: "username"}}},
		{Name: "products", Columns: []schema.Column{{Name: "product_id"}, {Name: "name"}, {Name: "price"}, {Name: "category"}}},
		{Name: "orders", Columns: []schema.Column{{Name: "order_id"}, {Name: "user_id"}, {Name: "product_id"}, {Name: "quantity"}}},
	})
	if err != nil {
		t.Fatalf("schema.New() error = %v", err)
	}
	builder := newBuilder(t)
	for _, exemplar := range builder.exemplars {
		result := sqlcheck.Validate(candidateFor(exemplar.SQL), model)
		if !result.Valid() {
			t.Fatalf("exemplar %s rejected: %v", exemplar.Kind, result.Failure)
		}
	}
}
