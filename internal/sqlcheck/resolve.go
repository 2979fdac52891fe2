package sqlcheck

import (
	"strings"

	"github.com/querypilot/querypilot/internal/schema"
)

// niladic names are valid bare identifiers without any FROM source.
var niladic = map[string]bool{
	"current_date": true, "current_time": true, "current_timestamp": true,
	"localtime": true, "localtimestamp": true, "current_user": true,
}

// source is one FROM entry visible in a scope. A nil columns set means the
// source's shape is unknown and any column is accepted.
type source struct {
	name    string
	alias   string
	table   string
	columns map[string]bool
}

func (s *source) open() bool {
	return s.columns == nil
}

func (s *source) matches(qualifier string) bool {
	if s.alias != "" && strings.EqualFold(s.alias, qualifier) {
		return true
	}
	return strings.EqualFold(s.name, qualifier)
}

type derived struct {
	columns []string
	open    bool
}

type scope struct {
	parent  *scope
	sources []*source
	aliases map[string]bool
	ctes    map[string]derived
}

func (s *scope) cte(name string) (derived, bool) {
	for current := s; current != nil; current = current.parent {
		if def, ok := current.ctes[strings.ToLower(name)]; ok {
			return def, true
		}
	}
	return derived{}, false
}

// resolver walks one statement and records the first unknown table and the
// first unknown column it meets. Unknown tables are reported ahead of
// unknown columns regardless of where they occur.
type resolver struct {
	model         *schema.Model
	unknownTable  *Failure
	unknownColumn *Failure
}

func newResolver(model *schema.Model) *resolver {
	return &resolver{model: model}
}

func (r *resolver) statement(q *Query) {
	if q != nil {
		r.query(q, nil)
	}
}

func (r *resolver) query(q *Query, parent *scope) derived {
	qs := &scope{parent: parent, ctes: map[string]derived{}}
	for _, cte := range q.With {
		key := strings.ToLower(unquote(cte.Name))
		if q.Recursive {
			qs.ctes[key] = derived{open: true}
		}
		def := r.query(cte.Query, qs)
		if len(cte.Columns) > 0 {
			def = derived{}
			for _, column := range cte.Columns {
				def.columns = append(def.columns, unquote(column))
			}
		}
		qs.ctes[key] = def
	}

	out, first := r.core(q.First, qs)
	for _, part := range q.Compound {
		r.core(part.Core, qs)
	}
	for _, term := range q.OrderBy {
		r.expr(term.Expr, first)
	}
	r.expr(q.Limit, qs)
	r.expr(q.Offset, qs)
	return out
}

func (r *resolver) core(c *SelectCore, parent *scope) (derived, *scope) {
	cs := &scope{parent: parent, aliases: map[string]bool{}}
	if c.From != nil {
		r.tableSource(c.From.First, cs)
		for _, join := range c.From.Joins {
			r.tableSource(join.Source, cs)
		}
	}
	for _, item := range c.Items {
		if item.Alias != nil {
			cs.aliases[strings.ToLower(unquote(*item.Alias))] = true
		}
	}

	out := derived{}
	for _, item := range c.Items {
		switch {
		case item.Star:
			for _, src := range cs.sources {
				out.add(src)
			}
		case item.TableStar != nil:
			src := r.qualified(unquote(*item.TableStar), cs)
			if src != nil {
				out.add(src)
			} else {
				out.open = true
			}
		default:
			r.expr(item.Expr, cs)
			if item.Alias != nil {
				out.columns = append(out.columns, unquote(*item.Alias))
			} else if ref := bareColumn(item.Expr); ref != nil {
				out.columns = append(out.columns, unquote(ref.Parts[len(ref.Parts)-1]))
			}
		}
	}

	if c.From != nil {
		for _, join := range c.From.Joins {
			r.expr(join.On, cs)
			for _, column := range join.Using {
				r.column(&ColumnRef{Parts: []string{column}}, cs)
			}
		}
	}
	r.expr(c.Where, cs)
	for _, e := range c.GroupBy {
		r.expr(e, cs)
	}
	r.expr(c.Having, cs)
	return out, cs
}

func (d *derived) add(src *source) {
	if src.open() {
		d.open = true
		return
	}
	for name := range src.columns {
		d.columns = append(d.columns, name)
	}
}

func (r *resolver) tableSource(ts *TableSource, cs *scope) {
	alias := ""
	if ts.Alias != nil {
		alias = unquote(*ts.Alias)
	}

	if ts.Subquery != nil {
		def := r.query(ts.Subquery, cs.parent)
		cs.sources = append(cs.sources, newDerivedSource(alias, alias, def))
		return
	}

	name := unquote(ts.Name[len(ts.Name)-1])
	if def, ok := cs.cte(name); ok && len(ts.Name) == 1 {
		cs.sources = append(cs.sources, newDerivedSource(name, alias, def))
		return
	}
	if r.model != nil {
		if table, ok := r.model.Table(name); ok {
			columns := make(map[string]bool, len(table.Columns))
			for _, column := range table.Columns {
				columns[strings.ToLower(column.Name)] = true
			}
			cs.sources = append(cs.sources, &source{name: table.Name, alias: alias, table: table.Name, columns: columns})
			return
		}
	}
	r.failTable(name)
	cs.sources = append(cs.sources, &source{name: name, alias: alias, table: name})
}

func newDerivedSource(name, alias string, def derived) *source {
	src := &source{name: name, alias: alias, table: name}
	if def.open {
		return src
	}
	src.columns = make(map[string]bool, len(def.columns))
	for _, column := range def.columns {
		src.columns[strings.ToLower(column)] = true
	}
	return src
}

func (r *resolver) qualified(qualifier string, cs *scope) *source {
	for current := cs; current != nil; current = current.parent {
		for _, src := range current.sources {
			if src.matches(qualifier) {
				return src
			}
		}
	}
	r.failTable(qualifier)
	return nil
}

func (r *resolver) column(ref *ColumnRef, cs *scope) {
	parts := make([]string, len(ref.Parts))
	for i, part := range ref.Parts {
		parts[i] = unquote(part)
	}
	name := parts[len(parts)-1]

	if len(parts) > 1 {
		src := r.qualified(parts[len(parts)-2], cs)
		if src == nil || src.open() || src.columns[strings.ToLower(name)] {
			return
		}
		r.failColumn(name, src.table)
		return
	}

	key := strings.ToLower(name)
	for current := cs; current != nil; current = current.parent {
		if current.aliases[key] {
			return
		}
		for _, src := range current.sources {
			if src.open() || src.columns[key] {
				return
			}
		}
	}
	if niladic[key] {
		return
	}
	table := ""
	for current := cs; current != nil; current = current.parent {
		if len(current.sources) > 0 {
			table = current.sources[0].table
			break
		}
	}
	r.failColumn(name, table)
}

func (r *resolver) failTable(name string) {
	if r.unknownTable == nil {
		r.unknownTable = &Failure{Reason: ReasonUnknownTable, Table: name}
	}
}

func (r *resolver) failColumn(column, table string) {
	if r.unknownColumn == nil {
		r.unknownColumn = &Failure{Reason: ReasonUnknownColumn, Column: column, Table: table}
	}
}

func (r *resolver) expr(e *Expr, cs *scope) {
	if e == nil {
		return
	}
	for _, and := range e.Or {
		for _, not := range and.And {
			r.predicate(not.Predicate, cs)
		}
	}
}

func (r *resolver) predicate(p *Predicate, cs *scope) {
	r.additive(p.Left, cs)
	switch {
	case p.Compare != nil:
		r.additive(p.Compare.Right, cs)
	case p.Between != nil:
		r.additive(p.Between.Low, cs)
		r.additive(p.Between.High, cs)
	case p.In != nil:
		if p.In.Subquery != nil {
			r.query(p.In.Subquery, cs)
		}
		for _, value := range p.In.Values {
			r.expr(value, cs)
		}
	case p.Like != nil:
		r.additive(p.Like.Pattern, cs)
		r.additive(p.Like.Escape, cs)
	}
}

func (r *resolver) additive(a *Additive, cs *scope) {
	if a == nil {
		return
	}
	r.multiplicative(a.Left, cs)
	for _, op := range a.Right {
		r.multiplicative(op.Operand, cs)
	}
}

func (r *resolver) multiplicative(m *Multiplicative, cs *scope) {
	r.primary(m.Left.Primary, cs)
	for _, op := range m.Right {
		r.primary(op.Operand.Primary, cs)
	}
}

func (r *resolver) primary(p *Primary, cs *scope) {
	switch {
	case p.Subquery != nil:
		r.query(p.Subquery, cs)
	case p.Exists != nil:
		r.query(p.Exists, cs)
	case p.Case != nil:
		r.expr(p.Case.Operand, cs)
		for _, when := range p.Case.Whens {
			r.expr(when.Cond, cs)
			r.expr(when.Result, cs)
		}
		r.expr(p.Case.Else, cs)
	case p.Cast != nil:
		r.expr(p.Cast.Value, cs)
	case p.Paren != nil:
		r.expr(p.Paren, cs)
	case p.Call != nil:
		for _, arg := range p.Call.Args {
			r.expr(arg, cs)
		}
		if p.Call.Over != nil {
			for _, e := range p.Call.Over.PartitionBy {
				r.expr(e, cs)
			}
			for _, term := range p.Call.Over.OrderBy {
				r.expr(term.Expr, cs)
			}
		}
	case p.Column != nil:
		r.column(p.Column, cs)
	}
}

// bareColumn returns the column reference when e is nothing but one.
func bareColumn(e *Expr) *ColumnRef {
	if e == nil || len(e.Or) != 1 || len(e.Or[0].And) != 1 {
		return nil
	}
	not := e.Or[0].And[0]
	p := not.Predicate
	if not.Not || p.Compare != nil || p.Is != nil || p.Between != nil || p.In != nil || p.Like != nil {
		return nil
	}
	if len(p.Left.Right) != 0 || len(p.Left.Left.Right) != 0 {
		return nil
	}
	unary := p.Left.Left.Left
	if unary.Op != "" || len(unary.Casts) != 0 {
		return nil
	}
	return unary.Primary.Column
}

func unquote(name string) string {
	if len(name) < 2 {
		return name
	}
	switch first, last := name[0], name[len(name)-1]; {
	case first == '"' && last == '"':
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	case first == '`' && last == '`', first == '[' && last == ']':
		return name[1 : len(name)-1]
	}
	return name
}
