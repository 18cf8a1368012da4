// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package lexer_test

import (
	"testing"

	"github.com/probechain/probescript/lang/lexer"
	"github.com/probechain/probescript/lang/token"
)

type tokenCase struct {
	typ     token.Type
	literal string
}

func runTokenize(t *testing.T, name, input string, want []tokenCase) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		t.Helper()
		l := lexer.New("test.probe", input, token.DefaultKeywords())
		for i, w := range want {
			got := l.NextToken()
			if got.Type != w.typ || got.Literal != w.literal {
				t.Fatalf("token %d: got {%v %q}, want {%v %q}", i, got.Type, got.Literal, w.typ, w.literal)
			}
		}
		if eof := l.NextToken(); eof.Type != token.EOF {
			t.Errorf("expected EOF after expected tokens, got %v", eof.Type)
		}
	})
}

func TestKeywordsAndIdents(t *testing.T) {
	runTokenize(t, "keywords", "var x = func class import", []tokenCase{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.FUNC, "func"},
		{token.CLASS, "class"},
		{token.IMPORT, "import"},
	})
}

func TestNumbers(t *testing.T) {
	runTokenize(t, "numbers", "42 3.14 1e10 2.5e-3", []tokenCase{
		{token.NUMBER, "42"},
		{token.NUMBER, "3.14"},
		{token.NUMBER, "1e10"},
		{token.NUMBER, "2.5e-3"},
	})
}

func TestStringLiteralKeepsEscapesRaw(t *testing.T) {
	runTokenize(t, "string", `"hi\nthere"`, []tokenCase{
		{token.STRING, `hi\nthere`},
	})
}

func TestOperators(t *testing.T) {
	runTokenize(t, "operators", "+= -= == != <= >= && || = < > + - * / !", []tokenCase{
		{token.PLUSEQ, "+="},
		{token.MINUSEQ, "-="},
		{token.EQ, "=="},
		{token.NEQ, "!="},
		{token.LTE, "<="},
		{token.GTE, ">="},
		{token.ANDAND, "&&"},
		{token.OROR, "||"},
		{token.ASSIGN, "="},
		{token.LT, "<"},
		{token.GT, ">"},
		{token.PLUS, "+"},
		{token.MINUS, "-"},
		{token.STAR, "*"},
		{token.SLASH, "/"},
		{token.BANG, "!"},
	})
}

func TestCommentsAreSkippedEntirely(t *testing.T) {
	runTokenize(t, "comments", "var // trailing line comment\nx /* block\nspans lines */ = 1;", []tokenCase{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "1"},
		{token.SEMI, ";"},
	})
}

func TestUnterminatedBlockCommentReportsOpeningLine(t *testing.T) {
	l := lexer.New("test.probe", "var x;\n/* never closed", token.DefaultKeywords())
	for {
		if tok := l.NextToken(); tok.Type == token.EOF {
			break
		}
	}
	errs := l.Errors()
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Line != 2 {
		t.Errorf("unterminated comment blamed on line %d, want 2", errs[0].Line)
	}
}

func TestUnknownCharacterContinuesScanning(t *testing.T) {
	runTokenize(t, "unknown char", "var $ x;", []tokenCase{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.SEMI, ";"},
	})
}

func TestCustomKeywordTable(t *testing.T) {
	custom := token.KeywordTable{"fn": token.FUNC}
	l := lexer.New("test.probe", "fn var", custom)
	if tok := l.NextToken(); tok.Type != token.FUNC {
		t.Fatalf("custom table: got %v, want FUNC", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != token.IDENT || tok.Literal != "var" {
		t.Errorf("'var' not registered in custom table should lex as IDENT, got %v %q", tok.Type, tok.Literal)
	}
}
