// Package gql parses GraphQL documents and sends them to a GraphQL endpoint.
package gql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var ErrNoOperation = errors.New("document has no operation")

// Document is a parsed, single-operation GraphQL document.
type Document struct {
	Source    string
	Operation string // empty for anonymous operations
	Kind      string // query, mutation or subscription
	required  []string
}

// Parse checks the syntax of src and records its operation. Documents with
// more than one operation are rejected; the client always sends one.
func Parse(src string) (*Document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "document", Input: src})
	if err != nil {
		return nil, fmt.Errorf("parse graphql document: %w", err)
	}
	switch n := len(doc.Operations); {
	case n == 0:
		return nil, ErrNoOperation
	case n > 1:
		return nil, fmt.Errorf("document has %d operations, want 1", n)
	}
	op := doc.Operations[0]

	d := &Document{
		Source:    src,
		Operation: op.Name,
		Kind:      string(op.Operation),
	}
	if d.Kind == "" {
		d.Kind = string(ast.Query)
	}
	for _, v := range op.VariableDefinitions {
		if v.Type != nil && v.Type.NonNull && v.DefaultValue == nil {
			d.required = append(d.required, v.Variable)
		}
	}
	return d, nil
}

// MustParse is Parse for package-level documents known to be valid.
func MustParse(src string) *Document {
	d, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return d
}

// Name is the operation name, or "anonymous".
func (d *Document) Name() string {
	if d.Operation == "" {
		return "anonymous"
	}
	return d.Operation
}

// CheckVariables reports the first non-null variable without a default that
// vars does not supply.
func (d *Document) CheckVariables(vars map[string]any) error {
	var missing []string
	for _, name := range d.required {
		if v, ok := vars[name]; !ok || v == nil {
			missing = append(missing, "$"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%s: missing required variables %s", d.Name(), strings.Join(missing, ", "))
}
