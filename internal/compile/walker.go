package compile

import "github.com/hashicorp/hcl/v2/hclsyntax"

// walkFunctionCalls recursively walks the expression AST and reports every
// function call to fn. Variables are handled separately via Variables().
func walkFunctionCalls(expr hclsyntax.Expression, fn func(*hclsyntax.FunctionCallExpr)) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		fn(e)
		for _, arg := range e.Args {
			walkFunctionCalls(arg, fn)
		}
	case *hclsyntax.BinaryOpExpr:
		walkFunctionCalls(e.LHS, fn)
		walkFunctionCalls(e.RHS, fn)
	case *hclsyntax.ConditionalExpr:
		walkFunctionCalls(e.Condition, fn)
		walkFunctionCalls(e.TrueResult, fn)
		walkFunctionCalls(e.FalseResult, fn)
	case *hclsyntax.UnaryOpExpr:
		walkFunctionCalls(e.Val, fn)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkFunctionCalls(part, fn)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkFunctionCalls(e.Wrapped, fn)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkFunctionCalls(item, fn)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkFunctionCalls(item.KeyExpr, fn)
			walkFunctionCalls(item.ValueExpr, fn)
		}
	case *hclsyntax.ForExpr:
		walkFunctionCalls(e.CollExpr, fn)
		walkFunctionCalls(e.KeyExpr, fn)
		walkFunctionCalls(e.ValExpr, fn)
		walkFunctionCalls(e.CondExpr, fn)
	case *hclsyntax.IndexExpr:
		walkFunctionCalls(e.Collection, fn)
		walkFunctionCalls(e.Key, fn)
	case *hclsyntax.SplatExpr:
		walkFunctionCalls(e.Source, fn)
		walkFunctionCalls(e.Each, fn)
	case *hclsyntax.ParenthesesExpr:
		walkFunctionCalls(e.Expression, fn)
	}
}
