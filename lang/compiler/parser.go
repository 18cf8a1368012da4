// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/probechain/probescript/lang/bytecode"
	"github.com/probechain/probescript/lang/gc"
	"github.com/probechain/probescript/lang/lexer"
	"github.com/probechain/probescript/lang/object"
	"github.com/probechain/probescript/lang/symbol"
	"github.com/probechain/probescript/lang/token"
	"github.com/probechain/probescript/lang/value"
)

// CompileError is one parse-time diagnostic (spec.md §4.5: "on error, record
// a formatted message with line number, flag has_error, synchronize to the
// next ';' or EOF, and keep compiling to surface more errors").
type CompileError struct {
	Line    int
	Message string
}

// ImportResolver resolves "import \"name\" for ...;" to the named module,
// compiling and running it on first sight if necessary. The compiler package
// never talks to a VM directly; the caller supplies this indirection so
// vm can depend on compiler without compiler depending on vm.
type ImportResolver func(name string) (*object.Module, error)

// Compile parses and emits source as a single module-init function: a
// zero-arity object.Function whose execution populates mod's globals.
// There is no AST or IR stage (spec §2/§4.5): every statement and
// expression emits bytecode directly through a functionBuilder as it is
// parsed.
func Compile(source string, kw token.KeywordTable, symbols *symbol.Table, heap *gc.Heap, mod *object.Module, resolver ImportResolver) (*object.Function, []CompileError) {
	lx := lexer.New(mod.Name, source, kw)
	p := &Parser{
		lex:           lx,
		heap:          heap,
		symbols:       symbols,
		mod:           mod,
		resolver:      resolver,
		classesByName: make(map[string]*object.Class),
		classValues:   make(map[string]value.Value),
	}
	p.advance()
	p.advance()
	p.fb = newFunctionBuilder(heap, mod.Name, nil)
	p.fb.pushScope()

	for !p.curIs(token.EOF) {
		p.parseStatement()
	}
	nullReg := p.loadNullReg()
	p.fb.emit(bytecode.EncodeBx(bytecode.OpReturn, 0, uint32(nullReg), 0), p.line())

	fn := p.fb.finish(0)
	fn.Module = mod

	for _, le := range lx.Errors() {
		p.errors = append(p.errors, CompileError{Line: le.Line, Message: le.Message})
	}
	return fn, p.errors
}

// placeKind classifies an lvalue an expression chain may have produced.
// Assignment is recognized only at the outermost position of an
// expression-statement (or a for-loop's post clause), not as a general
// Pratt subexpression: the lexer/parser's 2-token lookahead makes a fully
// generic right-associative assignment awkward to thread through the
// binary-operator climb, and every grammar form spec.md names an
// assignment target for (bare identifier, a.b, a[i]) is reachable this way.
type placeKind int

const (
	placeNone placeKind = iota
	placeLocal
	placeGlobal
	placeField
	placeIndex
)

type place struct {
	kind   placeKind
	reg    int // placeLocal: the local's register. placeField/placeIndex: the container register.
	sym    symbol.ID
	idxReg int
}

type loopCtx struct {
	breakJumps []int
}

// Parser is the single-pass Pratt parser: a 2-token lookahead over the
// lexer's token stream, emitting directly into the active functionBuilder.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token
	peek token.Token

	heap    *gc.Heap
	symbols *symbol.Table
	mod     *object.Module

	fb    *functionBuilder
	loops []*loopCtx

	classesByName map[string]*object.Class
	classValues   map[string]value.Value

	resolver ImportResolver
	errors   []CompileError
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) curIs(tt token.Type) bool { return p.cur.Type == tt }

func (p *Parser) line() int { return p.cur.Pos.Line }

func (p *Parser) errorf(line int, format string, args ...interface{}) {
	p.errors = append(p.errors, CompileError{Line: line, Message: fmt.Sprintf(format, args...)})
}

// expect records an error if cur is not tt, then unconditionally advances
// (the caller's shape is still whatever was actually there; recovery
// happens via synchronize on the enclosing statement).
func (p *Parser) expect(tt token.Type) token.Token {
	tok := p.cur
	if tok.Type != tt {
		p.errorf(tok.Pos.Line, "expected %s, got %s %q", tt, tok.Type, tok.Literal)
	}
	p.advance()
	return tok
}

// synchronize discards tokens through the next ';' (or EOF) so one bad
// statement doesn't cascade into spurious errors for the rest of the file.
func (p *Parser) synchronize() {
	for !p.curIs(token.SEMI) && !p.curIs(token.EOF) {
		p.advance()
	}
	if p.curIs(token.SEMI) {
		p.advance()
	}
}

// --- statements ---

// parseStatement dispatches one statement and releases every temp register
// it allocated once the statement is fully compiled - values that need to
// outlive the statement have already been written into a local slot or a
// module/field/index place by then, so this just keeps the per-function
// register file from growing unboundedly across a long function body.
func (p *Parser) parseStatement() {
	mark := p.fb.tempTop
	p.parseStatementInner()
	p.fb.releaseTemp(mark)
}

func (p *Parser) parseStatementInner() {
	switch p.cur.Type {
	case token.SEMI:
		p.advance()
	case token.LBRACE:
		p.parseBlockStmt()
	case token.VAR:
		p.advance()
		p.parseVarDecl(false)
	case token.STATIC:
		p.advance()
		switch p.cur.Type {
		case token.VAR:
			p.advance()
			p.parseVarDecl(true)
		case token.FUNC:
			p.advance()
			p.parseFuncDeclStmt()
		default:
			p.errorf(p.line(), "expected var or func after static")
			p.synchronize()
		}
	case token.FUNC:
		p.advance()
		p.parseFuncDeclStmt()
	case token.CLASS:
		p.parseClassStmt()
	case token.IMPORT:
		p.parseImportStmt()
	case token.IF:
		p.parseIfStmt()
	case token.WHILE:
		p.parseWhileStmt()
	case token.FOR:
		p.parseForStmt()
	case token.BREAK:
		p.parseBreakStmt()
	case token.RETURN:
		p.parseReturnStmt()
	default:
		p.parseExprStmt()
	}
}

func (p *Parser) parseBlockStmt() {
	p.advance() // {
	p.fb.pushScope()
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		p.parseStatement()
	}
	p.fb.popScope()
	p.expect(token.RBRACE)
}

// parseVarDecl handles both `var name [= expr];` (a local in the current
// function) and `static var name [= expr];` (always a module global,
// persisting past the enclosing function's return - the mechanism a nested
// function relies on to see a module-level binding by name).
func (p *Parser) parseVarDecl(isStatic bool) {
	line := p.line()
	nameTok := p.expect(token.IDENT)
	var valReg int
	if p.curIs(token.ASSIGN) {
		p.advance()
		valReg = p.parseExpr(0)
	} else {
		valReg = p.loadNullReg()
	}
	if isStatic {
		p.storeModuleGlobal(p.symbols.Intern(nameTok.Literal), valReg, line)
	} else {
		idx := p.fb.declLocal(nameTok.Literal)
		if idx < 0 {
			p.errorf(line, "%q already declared in this scope", nameTok.Literal)
		} else {
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, idx, uint32(valReg), 0), line)
		}
	}
	p.expect(token.SEMI)
}

// parseFuncDeclStmt handles a top-level (or nested-block) `func name(...)
// {...}` statement: it always binds name into the module's globals, since
// host and sibling functions resolve declared functions by name through the
// module, not through the enclosing function's locals.
func (p *Parser) parseFuncDeclStmt() {
	line := p.line()
	nameTok := p.expect(token.IDENT)
	fnVal := p.parseFunctionLiteralBody(nameTok.Literal, false)
	sym := p.symbols.Intern(nameTok.Literal)
	p.mod.Globals[sym] = fnVal
	reg := p.loadConstReg(fnVal)
	p.storeModuleGlobal(sym, reg, line)
}

func (p *Parser) parseReturnStmt() {
	line := p.line()
	p.advance()
	var reg int
	if p.curIs(token.SEMI) {
		reg = p.loadNullReg()
	} else {
		reg = p.parseExpr(0)
	}
	p.expect(token.SEMI)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpReturn, 0, uint32(reg), 0), line)
}

func (p *Parser) parseBreakStmt() {
	line := p.line()
	p.advance()
	p.expect(token.SEMI)
	if len(p.loops) == 0 {
		p.errorf(line, "break outside a loop")
		return
	}
	ip := len(p.fb.code)
	p.fb.code = append(p.fb.code, bytecode.BreakPlaceholder)
	p.fb.lines = append(p.fb.lines, line)
	loop := p.loops[len(p.loops)-1]
	loop.breakJumps = append(loop.breakJumps, ip)
}

func (p *Parser) parseIfStmt() {
	line := p.line()
	p.advance() // if
	p.expect(token.LPAREN)
	condReg := p.parseExpr(0)
	p.expect(token.RPAREN)

	jumpElseIp := p.fb.emit(bytecode.EncodeSBx(bytecode.OpJumpIfNot, condReg, 0, 0), line)
	p.parseStatement()

	hasElse := p.curIs(token.ELSE)
	var jumpEndIp int
	if hasElse {
		jumpEndIp = p.fb.emit(bytecode.EncodeSBx(bytecode.OpJump, 0, 0, 0), p.line())
	}
	afterThen := p.fb.here()
	p.fb.patchSBx(jumpElseIp, afterThen-(jumpElseIp+1))

	if hasElse {
		p.advance() // else
		p.parseStatement()
		afterElse := p.fb.here()
		p.fb.patchSBx(jumpEndIp, afterElse-(jumpEndIp+1))
	}
}

func (p *Parser) parseWhileStmt() {
	p.advance() // while
	p.expect(token.LPAREN)
	condIP := p.fb.here()
	condReg := p.parseExpr(0)
	p.expect(token.RPAREN)

	exitJumpIp := p.fb.emit(bytecode.EncodeSBx(bytecode.OpJumpIfNot, condReg, 0, 0), p.line())
	p.loops = append(p.loops, &loopCtx{})
	p.parseStatement()

	backDisp := condIP - (p.fb.here() + 1)
	p.fb.emit(bytecode.EncodeSBx(bytecode.OpJump, 0, backDisp, 0), p.line())
	endIp := p.fb.here()
	p.fb.patchSBx(exitJumpIp, endIp-(exitJumpIp+1))
	p.closeLoop(endIp)
}

// parseForStmt implements the classic three-clause C-style for loop. The
// post clause's source text sits before the body in program order but must
// execute after it; since everything is already buffered in memory, the
// parser snapshots the lexer right after the cond clause's ';', skips over
// the post clause's tokens without emitting, compiles the body, then
// rewinds the lexer to the saved snapshot and compiles the post clause for
// real once the body's bytecode is already in place, and finally returns the
// lexer to the point just past the body.
func (p *Parser) parseForStmt() {
	p.advance() // for
	p.expect(token.LPAREN)
	p.fb.pushScope()

	if p.curIs(token.SEMI) {
		p.advance()
	} else if p.curIs(token.VAR) {
		p.advance()
		p.parseVarDecl(false)
	} else {
		p.parseExprStmt()
	}

	condIP := p.fb.here()
	hasCond := !p.curIs(token.SEMI)
	var condReg int
	if hasCond {
		condReg = p.parseExpr(0)
	}
	p.expect(token.SEMI)

	savedLex := *p.lex
	savedCur, savedPeek := p.cur, p.peek
	p.skipBalancedUntilRParen()
	p.expect(token.RPAREN)

	exitJumpIp := -1
	if hasCond {
		exitJumpIp = p.fb.emit(bytecode.EncodeSBx(bytecode.OpJumpIfNot, condReg, 0, 0), p.line())
	}
	p.loops = append(p.loops, &loopCtx{})
	p.parseStatement() // body
	afterLex := *p.lex
	afterCur, afterPeek := p.cur, p.peek

	*p.lex = savedLex
	p.cur, p.peek = savedCur, savedPeek
	if !p.curIs(token.RPAREN) {
		p.parseAssignOrExpr()
	}
	p.expect(token.RPAREN)
	*p.lex = afterLex
	p.cur, p.peek = afterCur, afterPeek

	backDisp := condIP - (p.fb.here() + 1)
	p.fb.emit(bytecode.EncodeSBx(bytecode.OpJump, 0, backDisp, 0), p.line())
	endIp := p.fb.here()
	if exitJumpIp >= 0 {
		p.fb.patchSBx(exitJumpIp, endIp-(exitJumpIp+1))
	}
	p.closeLoop(endIp)
	p.fb.popScope()
}

func (p *Parser) closeLoop(endIp int) {
	loop := p.loops[len(p.loops)-1]
	p.loops = p.loops[:len(p.loops)-1]
	for _, bj := range loop.breakJumps {
		p.fb.patchBreak(bj, endIp-(bj+1))
	}
}

// skipBalancedUntilRParen advances past the for-post clause's tokens
// without emitting anything, stopping with cur positioned on the closing
// ')' of the for(...) header (not consumed).
func (p *Parser) skipBalancedUntilRParen() {
	depth := 1
	for depth > 0 && !p.curIs(token.EOF) {
		if p.curIs(token.LPAREN) {
			depth++
		}
		if p.curIs(token.RPAREN) {
			depth--
			if depth == 0 {
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) parseImportStmt() {
	line := p.line()
	p.advance() // import
	modTok := p.expect(token.STRING)
	modName := unescapeString(modTok.Literal)
	p.expect(token.FOR)

	type importItem struct{ src, as string }
	var items []importItem
	for {
		nameTok := p.expect(token.IDENT)
		item := importItem{src: nameTok.Literal, as: nameTok.Literal}
		if p.curIs(token.AS) {
			p.advance()
			asTok := p.expect(token.IDENT)
			item.as = asTok.Literal
		}
		items = append(items, item)
		if p.curIs(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	p.expect(token.SEMI)

	if p.resolver == nil {
		p.errorf(line, "import %q: no module resolver configured", modName)
		return
	}
	importedMod, err := p.resolver(modName)
	if err != nil {
		p.errorf(line, "import %q: %v", modName, err)
		return
	}
	for _, it := range items {
		v, ok := importedMod.Globals[p.symbols.Intern(it.src)]
		if !ok {
			p.errorf(line, "module %q has no export %q", modName, it.src)
			continue
		}
		p.mod.Globals[p.symbols.Intern(it.as)] = v
	}
}

func (p *Parser) parseClassStmt() {
	line := p.line()
	p.advance() // class
	nameTok := p.expect(token.IDENT)

	var base *object.Class
	if p.curIs(token.COLON) {
		p.advance()
		baseTok := p.expect(token.IDENT)
		if b, ok := p.classesByName[baseTok.Literal]; ok {
			base = b
		} else {
			p.errorf(line, "unknown base class %q", baseTok.Literal)
		}
	}

	clsVal, cls := p.heap.NewClass(nameTok.Literal, base, p.mod)
	p.classesByName[nameTok.Literal] = cls
	p.classValues[nameTok.Literal] = clsVal
	p.mod.Globals[p.symbols.Intern(nameTok.Literal)] = clsVal

	p.expect(token.LBRACE)
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		p.parseClassMember(cls)
	}
	p.expect(token.RBRACE)

	reg := p.loadConstReg(clsVal)
	p.storeModuleGlobal(p.symbols.Intern(nameTok.Literal), reg, line)
}

func (p *Parser) parseClassMember(cls *object.Class) {
	line := p.line()
	isStatic := false
	if p.curIs(token.STATIC) {
		isStatic = true
		p.advance()
	}
	switch p.cur.Type {
	case token.VAR:
		p.advance()
		nameTok := p.expect(token.IDENT)
		initVal := value.Null
		if p.curIs(token.ASSIGN) {
			p.advance()
			initVal = p.parseConstExpr()
		}
		p.expect(token.SEMI)
		if isStatic {
			cls.Statics[p.symbols.Intern(nameTok.Literal)] = initVal
		} else {
			// Field default values are not retained: object.Instance's
			// Fields map starts empty and the compiler has no side
			// channel to carry per-class defaults into NewInstance. Only
			// the slot count (used for sizing/diagnostics) survives.
			cls.NumFields++
		}
	case token.FUNC:
		p.advance()
		name := p.parseMethodName()
		fnVal := p.parseFunctionLiteralBody(name, !isStatic)
		sym := p.symbols.Intern(name)
		if isStatic {
			cls.Statics[sym] = fnVal
		} else {
			cls.Methods[sym] = fnVal
			switch name {
			case "ctor":
				cls.Ctor = sym
				cls.HasCtor = true
			case "dtor":
				cls.Dtor = sym
				cls.HasDtorID = true
			}
		}
	default:
		p.errorf(line, "unexpected token %s in class body", p.cur.Type)
		p.synchronize()
	}
}

// parseMethodName additionally recognizes the "[]" / "[]=" sugar names
// spec.md §4.5 describes for index read/write operator overloading.
func (p *Parser) parseMethodName() string {
	if p.curIs(token.LBRACKET) {
		p.advance()
		p.expect(token.RBRACKET)
		if p.curIs(token.ASSIGN) {
			p.advance()
			return "[]="
		}
		return "[]"
	}
	return p.expect(token.IDENT).Literal
}

func (p *Parser) parseConstExpr() value.Value {
	neg := false
	if p.curIs(token.MINUS) {
		neg = true
		p.advance()
	}
	switch p.cur.Type {
	case token.NUMBER:
		f, _ := strconv.ParseFloat(p.cur.Literal, 64)
		p.advance()
		if neg {
			f = -f
		}
		return value.Number(f)
	case token.STRING:
		s := unescapeString(p.cur.Literal)
		p.advance()
		return p.heap.NewString(s)
	case token.TRUE:
		p.advance()
		return value.True
	case token.FALSE:
		p.advance()
		return value.False
	case token.NULL:
		p.advance()
		return value.Null
	default:
		p.errorf(p.line(), "expected a constant expression, got %s", p.cur.Type)
		p.advance()
		return value.Null
	}
}

// parseFunctionLiteralBody parses "(" params ")" "{" statements "}" into a
// freshly allocated object.Function and returns its heap Value. Used for
// named top-level declarations, class methods, and anonymous func
// expressions alike.
func (p *Parser) parseFunctionLiteralBody(name string, implicitSelf bool) value.Value {
	p.expect(token.LPAREN)
	var params []string
	if !p.curIs(token.RPAREN) {
		for {
			params = append(params, p.expect(token.IDENT).Literal)
			if p.curIs(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(token.RPAREN)

	parentFb := p.fb
	child := newFunctionBuilder(p.heap, name, parentFb)
	p.fb = child
	child.pushScope()
	if implicitSelf {
		child.declLocal("self")
	}
	for _, prm := range params {
		child.declLocal(prm)
	}
	arity := len(params)
	if implicitSelf {
		arity++
	}

	p.expect(token.LBRACE)
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		p.parseStatement()
	}
	p.expect(token.RBRACE)
	child.popScope()

	nullReg := p.loadNullReg()
	child.emit(bytecode.EncodeBx(bytecode.OpReturn, 0, uint32(nullReg), 0), p.line())

	fn := child.finish(arity)
	fn.Module = p.mod
	p.fb = parentFb
	return p.heap.NewFunction(fn)
}

// --- expressions ---

// parseExpr parses a full expression (no assignment) at minPrec or above.
func (p *Parser) parseExpr(minPrec int) int {
	reg, _ := p.parseChain()
	return p.parseBinaryFrom(reg, minPrec)
}

// parseAssignOrExpr parses either an assignment (`place (= | += | -=)
// expr`) or a plain expression, consuming neither a leading keyword nor a
// trailing terminator - the caller (parseExprStmt / a for-loop clause)
// handles that.
func (p *Parser) parseAssignOrExpr() {
	line := p.line()
	reg, pl := p.parseChain()
	if pl.kind == placeField && p.curIs(token.ASSIGN) {
		// A plain `=` never reads the field: drop the LOAD_SYMBOL the chain
		// just emitted for it, so assigning a field the instance does not
		// have yet is not a failed lookup.
		p.fb.code = p.fb.code[:len(p.fb.code)-1]
		p.fb.lines = p.fb.lines[:len(p.fb.lines)-1]
	}
	if pl.kind != placeNone && isAssignOp(p.cur.Type) {
		opTok := p.cur.Type
		p.advance()
		rhsReg := p.parseExpr(0)
		var finalReg int
		switch opTok {
		case token.ASSIGN:
			finalReg = rhsReg
		case token.PLUSEQ:
			finalReg, _ = p.fb.pushTemp(1)
			p.fb.emit(bytecode.Encode(bytecode.OpMathAdd, finalReg, reg, rhsReg), line)
		case token.MINUSEQ:
			finalReg, _ = p.fb.pushTemp(1)
			p.fb.emit(bytecode.Encode(bytecode.OpMathSub, finalReg, reg, rhsReg), line)
		}
		p.storeToPlace(pl, finalReg, line)
		return
	}
	p.parseBinaryFrom(reg, 0)
}

func (p *Parser) parseExprStmt() {
	p.parseAssignOrExpr()
	p.expect(token.SEMI)
}

func isAssignOp(tt token.Type) bool {
	return tt == token.ASSIGN || tt == token.PLUSEQ || tt == token.MINUSEQ
}

func (p *Parser) storeToPlace(pl place, valueReg int, line int) {
	switch pl.kind {
	case placeLocal:
		p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, pl.reg, uint32(valueReg), 0), line)
	case placeGlobal:
		p.storeModuleGlobal(pl.sym, valueReg, line)
	case placeField:
		p.fb.emit(bytecode.Encode(bytecode.OpStoreSymbol, pl.reg, int(pl.sym), valueReg), line)
	case placeIndex:
		sym := p.symbols.Intern("[]=")
		base, mark := p.fb.pushTemp(4)
		p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, base, pl.reg, int(sym)), line)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+1, uint32(pl.reg), 0), line)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+2, uint32(pl.idxReg), 0), line)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+3, uint32(valueReg), 0), line)
		p.fb.emit(bytecode.Encode(bytecode.OpCallFn, base+1, base, 3), line)
		p.fb.releaseTemp(mark)
	}
}

// precedenceOf implements the binary operator table: Logical OR < Logical
// AND < Equality < Comparison < Term < Factor, left-associative throughout.
func precedenceOf(tt token.Type) int {
	switch tt {
	case token.OROR:
		return 1
	case token.ANDAND:
		return 2
	case token.EQ, token.NEQ:
		return 3
	case token.LT, token.GT, token.LTE, token.GTE:
		return 4
	case token.PLUS, token.MINUS:
		return 5
	case token.STAR, token.SLASH:
		return 6
	default:
		return 0
	}
}

func opcodeFor(tt token.Type) bytecode.Opcode {
	switch tt {
	case token.PLUS:
		return bytecode.OpMathAdd
	case token.MINUS:
		return bytecode.OpMathSub
	case token.STAR:
		return bytecode.OpMathMul
	case token.SLASH:
		return bytecode.OpMathDiv
	case token.EQ:
		return bytecode.OpCmpEq
	case token.NEQ:
		return bytecode.OpCmpNe
	case token.LT:
		return bytecode.OpCmpLt
	case token.GT:
		return bytecode.OpCmpGt
	case token.LTE:
		return bytecode.OpCmpLe
	case token.GTE:
		return bytecode.OpCmpGe
	}
	panic("opcodeFor: not a binary operator token")
}

func (p *Parser) parseBinaryFrom(left int, minPrec int) int {
	for {
		prec := precedenceOf(p.cur.Type)
		if prec == 0 || prec < minPrec {
			return left
		}
		opTok := p.cur.Type
		line := p.line()
		p.advance()

		if opTok == token.ANDAND || opTok == token.OROR {
			left = p.compileShortCircuit(left, opTok, prec, line)
			continue
		}

		rhsReg, _ := p.parseChain()
		right := p.parseBinaryFrom(rhsReg, prec+1)
		dst, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.Encode(opcodeFor(opTok), dst, left, right), line)
		left = dst
	}
}

// compileShortCircuit emits a rhs temp, a constant-jump that skips
// evaluating the rhs once the left side already decided the answer, then
// the arithmetic CMP_AND/CMP_OR op on the path that does need the rhs
// (spec §4.5's "Binary ops ... allocate a rhs temp, emit a constant-jump
// for short-circuit, parse the rhs, emit the op, patch the jump").
func (p *Parser) compileShortCircuit(left int, op token.Type, prec int, line int) int {
	dst, _ := p.fb.pushTemp(1)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, dst, uint32(left), 0), line)

	var skipIp int
	if op == token.ANDAND {
		skipIp = p.fb.emit(bytecode.EncodeSBx(bytecode.OpJumpIfNot, dst, 0, 0), line)
	} else {
		skipIp = p.fb.emit(bytecode.EncodeSBx(bytecode.OpJumpIf, dst, 0, 0), line)
	}

	rhsReg, _ := p.parseChain()
	right := p.parseBinaryFrom(rhsReg, prec+1)
	if op == token.ANDAND {
		p.fb.emit(bytecode.Encode(bytecode.OpCmpAnd, dst, left, right), line)
	} else {
		p.fb.emit(bytecode.Encode(bytecode.OpCmpOr, dst, left, right), line)
	}

	endJumpIp := p.fb.emit(bytecode.EncodeSBx(bytecode.OpJump, 0, 0, 0), line)
	end := p.fb.here()
	p.fb.patchSBx(skipIp, end-(skipIp+1))
	p.fb.patchSBx(endJumpIp, end-(endJumpIp+1))
	return dst
}

// parseChain parses a primary expression and any trailing postfix chain
// (.name, :name(args), (args), [expr]), returning the register holding its
// value and, when the chain ends on an assignable form, the place
// describing how to write back to it.
func (p *Parser) parseChain() (int, place) {
	reg, pl := p.parsePrimary()
	return p.parsePostfix(reg, pl)
}

func (p *Parser) parsePrimary() (int, place) {
	line := p.line()
	switch p.cur.Type {
	case token.NUMBER:
		f, _ := strconv.ParseFloat(p.cur.Literal, 64)
		p.advance()
		return p.loadConstReg(value.Number(f)), place{}
	case token.STRING:
		s := unescapeString(p.cur.Literal)
		p.advance()
		return p.loadConstReg(p.heap.NewString(s)), place{}
	case token.TRUE:
		p.advance()
		reg, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, reg, 0, 0), line)
		return reg, place{}
	case token.FALSE:
		p.advance()
		reg, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, reg, 1, 0), line)
		return reg, place{}
	case token.NULL:
		p.advance()
		return p.loadNullReg(), place{}
	case token.LPAREN:
		p.advance()
		reg := p.parseExpr(0)
		p.expect(token.RPAREN)
		return reg, place{}
	case token.BANG:
		p.advance()
		operand, _ := p.parseChain()
		reg, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpNot, reg, uint32(operand), 0), line)
		return reg, place{}
	case token.MINUS:
		p.advance()
		operand, _ := p.parseChain()
		zero := p.loadConstReg(value.Number(0))
		reg, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.Encode(bytecode.OpMathSub, reg, zero, operand), line)
		return reg, place{}
	case token.NEW:
		return p.parseNewExpr(), place{}
	case token.FUNC:
		p.advance()
		fnVal := p.parseFunctionLiteralBody("<anonymous>", false)
		return p.loadConstReg(fnVal), place{}
	case token.IDENT:
		name := p.cur.Literal
		p.advance()
		if idx, ok := p.fb.lookup(name, false); ok {
			return idx, place{kind: placeLocal, reg: idx}
		}
		sym := p.symbols.Intern(name)
		reg, markR := p.fb.pushTemp(1)
		modReg, _ := p.fb.pushTemp(1)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, modReg, 3, 0), line)
		p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, reg, modReg, int(sym)), line)
		p.fb.releaseTemp(markR + 1) // drop modReg, keep reg
		return reg, place{kind: placeGlobal, sym: sym}
	default:
		p.errorf(line, "unexpected token %s in expression", p.cur.Type)
		p.advance()
		return p.loadNullReg(), place{}
	}
}

func (p *Parser) parsePostfix(reg int, pl place) (int, place) {
	for {
		switch p.cur.Type {
		case token.DOT:
			line := p.line()
			p.advance()
			sym := p.symbols.Intern(p.expect(token.IDENT).Literal)
			container := reg
			newReg, _ := p.fb.pushTemp(1)
			p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, newReg, container, int(sym)), line)
			reg = newReg
			pl = place{kind: placeField, reg: container, sym: sym}

		case token.COLON:
			line := p.line()
			p.advance()
			sym := p.symbols.Intern(p.expect(token.IDENT).Literal)
			p.expect(token.LPAREN)
			argRegs := p.parseArgList(token.RPAREN)
			receiver := reg
			base, _ := p.fb.pushTemp(2 + len(argRegs))
			p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, base, receiver, int(sym)), line)
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+1, uint32(receiver), 0), line)
			for i, a := range argRegs {
				p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+2+i, uint32(a), 0), line)
			}
			p.fb.emit(bytecode.Encode(bytecode.OpCallFn, base+1, base, 1+len(argRegs)), line)
			reg, pl = base+1, place{}

		case token.LPAREN:
			line := p.line()
			p.advance()
			argRegs := p.parseArgList(token.RPAREN)
			fnReg := reg
			base, _ := p.fb.pushTemp(1 + len(argRegs))
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base, uint32(fnReg), 0), line)
			for i, a := range argRegs {
				p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+1+i, uint32(a), 0), line)
			}
			p.fb.emit(bytecode.Encode(bytecode.OpCallFn, base+1, base, len(argRegs)), line)
			reg, pl = base+1, place{}

		case token.LBRACKET:
			line := p.line()
			p.advance()
			idxReg := p.parseExpr(0)
			p.expect(token.RBRACKET)
			container := reg
			sym := p.symbols.Intern("[]")
			base, _ := p.fb.pushTemp(3)
			p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, base, container, int(sym)), line)
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+1, uint32(container), 0), line)
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+2, uint32(idxReg), 0), line)
			p.fb.emit(bytecode.Encode(bytecode.OpCallFn, base+1, base, 2), line)
			reg = base + 1
			pl = place{kind: placeIndex, reg: container, idxReg: idxReg}

		default:
			return reg, pl
		}
	}
}

func (p *Parser) parseArgList(closeTok token.Type) []int {
	var regs []int
	if !p.curIs(closeTok) {
		for {
			regs = append(regs, p.parseExpr(0))
			if p.curIs(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(closeTok)
	return regs
}

// parseNewExpr compiles `new ClassName[.ctorName](args)`: the class is
// resolved against classesByName at compile time (classes are allocated
// into the heap eagerly as their `class` statement is parsed, so a later
// `new` always finds a fully-formed *object.Class), a NEW_CLZ allocates the
// instance, and the named constructor (default "ctor") is invoked with the
// instance prepended as the receiver. The call's own result register is
// scratch; the expression's value is the instance register.
func (p *Parser) parseNewExpr() int {
	line := p.line()
	p.advance() // new
	classTok := p.expect(token.IDENT)
	ctorName := "ctor"
	if p.curIs(token.DOT) {
		p.advance()
		ctorName = p.expect(token.IDENT).Literal
	}

	cls, ok := p.classesByName[classTok.Literal]
	if !ok {
		p.errorf(line, "unknown class %q", classTok.Literal)
		p.expect(token.LPAREN)
		p.parseArgList(token.RPAREN)
		return p.loadNullReg()
	}
	clsVal := p.classValues[classTok.Literal]
	clsReg := p.loadConstReg(clsVal)

	dest, _ := p.fb.pushTemp(1)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpNewClz, dest, uint32(clsReg), 0), line)

	p.expect(token.LPAREN)
	argRegs := p.parseArgList(token.RPAREN)

	ctorSym := p.symbols.Intern(ctorName)
	if _, hasCtor := cls.Methods[ctorSym]; hasCtor || cls.HasCtor {
		base, _ := p.fb.pushTemp(2 + len(argRegs))
		p.fb.emit(bytecode.Encode(bytecode.OpLoadSymbol, base, dest, int(ctorSym)), line)
		p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+1, uint32(dest), 0), line)
		for i, a := range argRegs {
			p.fb.emit(bytecode.EncodeBx(bytecode.OpStoreMove, base+2+i, uint32(a), 0), line)
		}
		p.fb.emit(bytecode.Encode(bytecode.OpCallFn, base+1, base, 1+len(argRegs)), line)
	}
	return dest
}

func (p *Parser) loadConstReg(v value.Value) int {
	idx := p.fb.addConstant(v)
	reg, _ := p.fb.pushTemp(1)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, reg, uint32(4+idx), 0), p.line())
	return reg
}

func (p *Parser) loadNullReg() int {
	reg, _ := p.fb.pushTemp(1)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, reg, 2, 0), p.line())
	return reg
}

func (p *Parser) storeModuleGlobal(sym symbol.ID, valueReg int, line int) {
	modReg, mark := p.fb.pushTemp(1)
	p.fb.emit(bytecode.EncodeBx(bytecode.OpLoadBasic, modReg, 3, 0), line)
	p.fb.emit(bytecode.Encode(bytecode.OpStoreSymbol, modReg, int(sym), valueReg), line)
	p.fb.releaseTemp(mark)
}

// unescapeString processes the backslash escapes spec.md §6.4 lists for
// string literals; the lexer hands back the raw slice between quotes.
func unescapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'v':
				b.WriteByte('\v')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			case '?':
				b.WriteByte('?')
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
