// Package ir defines the intermediate representation for assembled queries.
//
// Two sealed interfaces form the core of the IR:
//
//   - Expr: anything that can appear in a SELECT list or as a comparison
//     operand (columns, literal values, function calls, arithmetic).
//   - Condition: anything that can appear in a WHERE clause (comparisons,
//     null checks, boolean trees, raw fragments).
//
// Both interfaces use the marker-method pattern so that only types in this
// package implement them, enabling exhaustive type switches in the SQL
// renderer. The IR is dialect-agnostic: identifier quoting, placeholder
// style, and LIKE semantics are decided at render time.
package ir
