// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package truthtable expands boolean expressions into truth tables.
package truthtable // import "github.com/go-lpc/litescope/internal/truthtable"

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"
)

// MaxOperands is the maximum number of distinct operands of an expression.
const MaxOperands = 16

var ErrSyntax = errors.New("truthtable: invalid expression")

// Table is the truth table of a boolean expression.
type Table struct {
	// Operands are the sorted names of the expression operands.
	// Operand j is bit j of a table index.
	Operands []string

	// Out holds the value of the expression, 0 or 1, for every
	// combination of the operands.
	Out []uint8
}

// Generate returns the truth table of expr.
//
// Operands are identifiers; 0 and 1 are constants. Supported operators
// are & | ^ && || == != as binary operators, ! ~ ^ as negation, and
// parentheses.
func Generate(expr string) (Table, error) {
	node, err := parser.ParseExpr(strings.ReplaceAll(expr, "~", "!"))
	if err != nil {
		return Table{}, fmt.Errorf("%w %q: %v", ErrSyntax, expr, err)
	}

	ops := operands(node)
	if len(ops) > MaxOperands {
		return Table{}, fmt.Errorf("%w %q: too many operands (got=%d, max=%d)", ErrSyntax, expr, len(ops), MaxOperands)
	}

	var (
		tbl = Table{
			Operands: ops,
			Out:      make([]uint8, 1<<len(ops)),
		}
		env = make(map[string]bool, len(ops))
	)
	for i := range tbl.Out {
		for j, name := range ops {
			env[name] = i>>j&1 == 1
		}
		v, err := eval(node, env)
		if err != nil {
			return Table{}, fmt.Errorf("%w %q: %v", ErrSyntax, expr, err)
		}
		if v {
			tbl.Out[i] = 1
		}
	}

	return tbl, nil
}

func operands(node ast.Expr) []string {
	set := make(map[string]struct{})
	ast.Inspect(node, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			set[id.Name] = struct{}{}
		}
		return true
	})

	ops := make([]string, 0, len(set))
	for name := range set {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	return ops
}

func eval(node ast.Expr, env map[string]bool) (bool, error) {
	switch node := node.(type) {
	case *ast.Ident:
		return env[node.Name], nil

	case *ast.BasicLit:
		switch {
		case node.Kind == token.INT && node.Value == "0":
			return false, nil
		case node.Kind == token.INT && node.Value == "1":
			return true, nil
		}
		return false, fmt.Errorf("invalid constant %s", node.Value)

	case *ast.ParenExpr:
		return eval(node.X, env)

	case *ast.UnaryExpr:
		x, err := eval(node.X, env)
		if err != nil {
			return false, err
		}
		switch node.Op {
		case token.NOT, token.XOR:
			return !x, nil
		}
		return false, fmt.Errorf("invalid unary operator %v", node.Op)

	case *ast.BinaryExpr:
		x, err := eval(node.X, env)
		if err != nil {
			return false, err
		}
		y, err := eval(node.Y, env)
		if err != nil {
			return false, err
		}
		switch node.Op {
		case token.AND, token.LAND:
			return x && y, nil
		case token.OR, token.LOR:
			return x || y, nil
		case token.XOR, token.NEQ:
			return x != y, nil
		case token.EQL:
			return x == y, nil
		}
		return false, fmt.Errorf("invalid binary operator %v", node.Op)
	}

	return false, fmt.Errorf("invalid term %T", node)
}
