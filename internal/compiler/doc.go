// Package compiler turns the JSON search bodies of chain requests into
// ir.Search values.
//
// A body is first checked against the closed CUE definition #Search, so
// unknown keys, wrong types and malformed timestamps are rejected with a
// source position before anything reaches the query layer. ValidateSearch
// then applies the cross-field rules CUE does not express well, and is also
// used on searches built directly in Go (CLI flags, service calls).
package compiler
