package sqlcheck

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// The grammar covers the read-only subset of SQL that the validator accepts.
// Anything that does not start with SELECT or WITH is captured as an opaque
// statement so its verb can be reported.

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*[\s\S]*?\*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")*\"|`[^`]*`|\\[[^\\]]*\\]"},
	{Name: "Number", Pattern: `(?:\d+\.\d*|\.\d+|\d+)(?:[eE][-+]?\d+)?`},
	{Name: "Keyword", Pattern: `(?i)\b(?:SELECT|FROM|WHERE|GROUP|BY|HAVING|ORDER|ASC|DESC|LIMIT|OFFSET|AS|JOIN|INNER|LEFT|RIGHT|FULL|OUTER|CROSS|NATURAL|ON|USING|AND|OR|NOT|IN|IS|NULL|LIKE|ILIKE|GLOB|BETWEEN|EXISTS|CASE|WHEN|THEN|ELSE|END|UNION|INTERSECT|EXCEPT|WITH|RECURSIVE|DISTINCT|ALL|TRUE|FALSE|CAST|NULLS|INTO|OVER|PARTITION|ESCAPE)\b`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_$]*`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Operator", Pattern: `::|<>|!=|<=|>=|==|\|\||[-+*/%,.()=<>]`},
})

const maxLookahead = 256

var scriptParser = participle.MustBuild[Script](
	participle.Lexer(sqlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(maxLookahead),
)

var queryParser = participle.MustBuild[Query](
	participle.Lexer(sqlLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(maxLookahead),
)

type Script struct {
	Statements []*Statement `";"* @@ ( ";"+ @@? )*`
}

type Statement struct {
	Pos    lexer.Position
	EndPos lexer.Position

	Query *Query `  @@`
	Other *Other `| @@`
}

// Other is any statement that is not a query. Only its verb matters.
type Other struct {
	Verb string   `@(Ident | "WITH")`
	Rest []string `@( Ident | Keyword | String | QuotedIdent | Number | Operator )*`
}

type Query struct {
	Recursive bool            `( "WITH" @"RECURSIVE"?`
	With      []*CTE          `  @@ ( "," @@ )* )?`
	First     *SelectCore     `@@`
	Compound  []*CompoundPart `@@*`
	OrderBy   []*OrderTerm    `( "ORDER" "BY" @@ ( "," @@ )* )?`
	Limit     *Expr           `( "LIMIT" @@`
	Offset    *Expr           `  ( ( "OFFSET" | "," ) @@ )? )?`
}

type CTE struct {
	Name    string   `@(Ident | QuotedIdent)`
	Columns []string `( "(" @(Ident | QuotedIdent) ( "," @(Ident | QuotedIdent) )* ")" )?`
	Query   *Query   `"AS" "(" @@ ")"`
}

type CompoundPart struct {
	Op   string      `@( "UNION" | "INTERSECT" | "EXCEPT" )`
	All  bool        `@"ALL"?`
	Core *SelectCore `@@`
}

type SelectCore struct {
	Distinct bool          `"SELECT" ( @"DISTINCT" | "ALL" )?`
	Items    []*SelectItem `@@ ( "," @@ )*`
	Into     *string       `( "INTO" @(Ident | QuotedIdent) )?`
	From     *FromClause   `( "FROM" @@ )?`
	Where    *Expr         `( "WHERE" @@ )?`
	GroupBy  []*Expr       `( "GROUP" "BY" @@ ( "," @@ )* )?`
	Having   *Expr         `( "HAVING" @@ )?`
}

type SelectItem struct {
	Star      bool    `  @"*"`
	TableStar *string `| @(Ident | QuotedIdent) "." "*"`
	Expr      *Expr   `| @@`
	Alias     *string `  ( "AS"? @(Ident | QuotedIdent | String) )?`
}

type FromClause struct {
	First *TableSource `@@`
	Joins []*Join      `@@*`
}

type Join struct {
	Comma  bool         `( @","`
	Kind   []string     `| @"NATURAL"? @( "LEFT" | "RIGHT" | "FULL" )? @"OUTER"? @( "INNER" | "CROSS" )? "JOIN" )`
	Source *TableSource `@@`
	On     *Expr        `( "ON" @@`
	Using  []string     `| "USING" "(" @(Ident | QuotedIdent) ( "," @(Ident | QuotedIdent) )* ")" )?`
}

type TableSource struct {
	Subquery *Query   `( "(" @@ ")"`
	Name     []string `| @(Ident | QuotedIdent) ( "." @(Ident | QuotedIdent) )* )`
	Alias    *string  `( "AS"? @(Ident | QuotedIdent) )?`
}

type OrderTerm struct {
	Expr  *Expr   `@@`
	Desc  bool    `( @"DESC" | "ASC" )?`
	Nulls *string `( "NULLS" @Ident )?`
}

type Expr struct {
	Or []*AndExpr `@@ ( "OR" @@ )*`
}

type AndExpr struct {
	And []*NotExpr `@@ ( "AND" @@ )*`
}

type NotExpr struct {
	Not       bool       `@"NOT"?`
	Predicate *Predicate `@@`
}

type Predicate struct {
	Left    *Additive   `@@`
	Compare *Comparison `( @@`
	Is      *IsTest     `| @@`
	Between *Between    `| @@`
	In      *InTest     `| @@`
	Like    *LikeTest   `| @@ )?`
}

type Comparison struct {
	Op    string    `@( "=" | "==" | "<>" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *Additive `@@`
}

type IsTest struct {
	Not   bool   `"IS" @"NOT"?`
	Value string `@( "NULL" | "TRUE" | "FALSE" )`
}

type Between struct {
	Not  bool      `@"NOT"? "BETWEEN"`
	Low  *Additive `@@`
	High *Additive `"AND" @@`
}

type InTest struct {
	Not      bool    `@"NOT"? "IN" "("`
	Subquery *Query  `( @@`
	Values   []*Expr `| @@ ( "," @@ )* ) ")"`
}

type LikeTest struct {
	Not     bool      `@"NOT"?`
	Op      string    `@( "LIKE" | "ILIKE" | "GLOB" )`
	Pattern *Additive `@@`
	Escape  *Additive `( "ESCAPE" @@ )?`
}

type Additive struct {
	Left  *Multiplicative `@@`
	Right []*AddOp        `@@*`
}

type AddOp struct {
	Op      string          `@( "+" | "-" | "||" )`
	Operand *Multiplicative `@@`
}

type Multiplicative struct {
	Left  *Unary   `@@`
	Right []*MulOp `@@*`
}

type MulOp struct {
	Op      string `@( "*" | "/" | "%" )`
	Operand *Unary `@@`
}

type Unary struct {
	Op      string   `@( "-" | "+" )?`
	Primary *Primary `@@`
	Casts   []string `( "::" @Ident )*`
}

type Primary struct {
	Subquery *Query     `  "(" @@ ")"`
	Exists   *Query     `| "EXISTS" "(" @@ ")"`
	Case     *CaseExpr  `| @@`
	Cast     *CastExpr  `| @@`
	Paren    *Expr      `| "(" @@ ")"`
	Number   *string    `| @Number`
	String   *string    `| @String`
	Null     bool       `| @"NULL"`
	Bool     *string    `| @( "TRUE" | "FALSE" )`
	Call     *FuncCall  `| @@`
	Column   *ColumnRef `| @@`
}

type CaseExpr struct {
	Operand *Expr         `"CASE" @@?`
	Whens   []*WhenClause `@@+`
	Else    *Expr         `( "ELSE" @@ )? "END"`
}

type WhenClause struct {
	Cond   *Expr `"WHEN" @@`
	Result *Expr `"THEN" @@`
}

type CastExpr struct {
	Value *Expr    `"CAST" "(" @@ "AS"`
	Type  []string `@Ident+`
	Args  []string `( "(" @Number ( "," @Number )* ")" )? ")"`
}

type FuncCall struct {
	Name     string  `@( Ident | "LEFT" | "RIGHT" ) "("`
	Star     bool    `( @"*"`
	Distinct bool    `| @"DISTINCT"? )`
	Args     []*Expr `( @@ ( "," @@ )* )? ")"`
	Over     *Window `( "OVER" @@ )?`
}

type Window struct {
	PartitionBy []*Expr      `"(" ( "PARTITION" "BY" @@ ( "," @@ )* )?`
	OrderBy     []*OrderTerm `( "ORDER" "BY" @@ ( "," @@ )* )? ")"`
}

type ColumnRef struct {
	Parts []string `@(Ident | QuotedIdent) ( "." @(Ident | QuotedIdent) )*`
}
