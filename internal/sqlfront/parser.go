package sqlfront

import (
	"fmt"
	"strconv"

	"github.com/arcflow-db/arcdb/internal/arcerr"
)

// Parser holds the lexer, the current token and the token after it (a
// two-token lookahead) for recursive descent.
type Parser struct {
	lx   *lexer
	cur  token
	peek token
}

// NewParser prepares a parser over sql.
func NewParser(sql string) *Parser {
	p := &Parser{lx: newLexer(sql)}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()
	return p
}

func (p *Parser) advance() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *Parser) errf(format string, a ...any) error {
	return fmt.Errorf("near %q: %s: %w", p.cur.val, fmt.Sprintf(format, a...), arcerr.ErrParse)
}

func (p *Parser) expectKeyword(kw string) error {
	if p.cur.typ == tKeyword && p.cur.val == kw {
		p.advance()
		return nil
	}
	return p.errf("expected %s", kw)
}

func (p *Parser) expectSymbol(sym string) error {
	if p.cur.typ == tSymbol && p.cur.val == sym {
		p.advance()
		return nil
	}
	return p.errf("expected %q", sym)
}

func (p *Parser) isKeyword(kw string) bool { return p.cur.typ == tKeyword && p.cur.val == kw }
func (p *Parser) isSymbol(sym string) bool { return p.cur.typ == tSymbol && p.cur.val == sym }

// expectName accepts a plain identifier. Table/column/index names
// never collide with this grammar's small keyword set in practice, so
// there is no keyword-as-identifier fallback here.
func (p *Parser) expectName() (string, error) {
	if p.cur.typ != tIdent {
		return "", p.errf("expected a name")
	}
	name := p.cur.val
	p.advance()
	return name, nil
}

// ParseStatement parses exactly one statement from the parser's input.
func (p *Parser) ParseStatement() (Statement, error) {
	switch {
	case p.isKeyword("CREATE"):
		return p.parseCreate()
	case p.isKeyword("DROP"):
		return p.parseDrop()
	case p.isKeyword("INSERT"):
		return p.parseInsert()
	case p.isKeyword("SELECT"):
		return p.parseSelect()
	default:
		return nil, p.errf("expected a statement")
	}
}

func (p *Parser) parseCreate() (Statement, error) {
	p.advance() // CREATE
	switch {
	case p.isKeyword("TABLE"):
		p.advance()
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var cols []ColumnDef
		for {
			col, err := p.parseColumnDef()
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			if p.isSymbol(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &CreateTable{Table: name, Columns: cols}, nil

	case p.isKeyword("INDEX"):
		p.advance()
		indexName, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		tableName, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		column, err := p.expectName()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &CreateIndex{Index: indexName, Table: tableName, Column: column}, nil

	default:
		return nil, p.errf("expected TABLE or INDEX")
	}
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectName()
	if err != nil {
		return ColumnDef{}, err
	}
	if p.cur.typ != tKeyword {
		return ColumnDef{}, p.errf("expected a column type")
	}
	typeName := p.cur.val
	p.advance()
	col := ColumnDef{Name: name, Type: typeName}
	if typeName == "VARCHAR" {
		if err := p.expectSymbol("("); err != nil {
			return ColumnDef{}, err
		}
		if p.cur.typ != tNumber {
			return ColumnDef{}, p.errf("expected varchar length")
		}
		n, err := strconv.Atoi(p.cur.val)
		if err != nil {
			return ColumnDef{}, p.errf("invalid varchar length %q", p.cur.val)
		}
		col.Length = n
		p.advance()
		if err := p.expectSymbol(")"); err != nil {
			return ColumnDef{}, err
		}
	}
	return col, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.advance() // DROP
	switch {
	case p.isKeyword("TABLE"):
		p.advance()
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		return &DropTable{Table: name}, nil
	case p.isKeyword("INDEX"):
		p.advance()
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		return &DropIndex{Index: name}, nil
	default:
		return nil, p.errf("expected TABLE or INDEX")
	}
}

func (p *Parser) parseInsert() (Statement, error) {
	p.advance() // INSERT
	if p.isKeyword("INTO") {
		p.advance()
	}
	name, err := p.expectName()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var values []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, e)
		if p.isSymbol(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &Insert{Table: name, Values: values}, nil
}

func (p *Parser) parseSelect() (Statement, error) {
	p.advance() // SELECT
	stmt := &Select{}

	if p.isSymbol("*") {
		stmt.Star = true
		p.advance()
	} else {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.Projections = append(stmt.Projections, e)
			if p.isSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("FROM") {
		p.advance()
		for {
			name, err := p.expectName()
			if err != nil {
				return nil, err
			}
			stmt.From = append(stmt.From, name)
			if p.isSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("WHERE") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = e
	}

	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			term := OrderTerm{Expr: e}
			if p.isKeyword("DESC") {
				term.Desc = true
				p.advance()
			} else if p.isKeyword("ASC") {
				p.advance()
			}
			stmt.OrderBy = append(stmt.OrderBy, term)
			if p.isSymbol(",") {
				p.advance()
				continue
			}
			break
		}
	}

	return stmt, nil
}

// Expression grammar, precedence low to high:
//   parseExpr    -> OR
//   parseOr      -> AND ("OR" AND)*
//   parseAnd     -> NOT ("AND" NOT)*
//   parseNot     -> "NOT"? parseCmp
//   parseCmp     -> parseAddSub (("=" | "!=" | "<" | "<=" | ">" | ">=") parseAddSub)?
//   parseAddSub  -> parseMulDiv (("+" | "-") parseMulDiv)*
//   parseMulDiv  -> parseUnary (("*" | "/") parseUnary)*
//   parseUnary   -> "-" parseUnary | parsePrimary
//   parsePrimary -> literal | ident | "(" parseExpr ")"

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		operand, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Operand: operand}, nil
	}
	return p.parseCmp()
}

var cmpOps = map[string]bool{"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseCmp() (Expr, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	if p.cur.typ == tSymbol && cmpOps[p.cur.val] {
		op := p.cur.val
		p.advance()
		right, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAddSub() (Expr, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("+") || p.isSymbol("-") {
		op := p.cur.val
		p.advance()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMulDiv() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isSymbol("*") || p.isSymbol("/") {
		op := p.cur.val
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.isSymbol("-") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.cur.typ == tNumber:
		n, err := strconv.ParseInt(p.cur.val, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer %q", p.cur.val)
		}
		p.advance()
		return &IntLit{Value: n}, nil
	case p.cur.typ == tString:
		s := p.cur.val
		p.advance()
		return &StrLit{Value: s}, nil
	case p.isKeyword("TRUE"):
		p.advance()
		return &BoolLit{Value: true}, nil
	case p.isKeyword("FALSE"):
		p.advance()
		return &BoolLit{Value: false}, nil
	case p.cur.typ == tIdent:
		name := p.cur.val
		p.advance()
		return &Ident{Name: name}, nil
	case p.isSymbol("("):
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, p.errf("expected an expression")
	}
}
