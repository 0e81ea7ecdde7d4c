// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultMaxSize bounds the size of a decoded document (5 MiB).
const DefaultMaxSize int64 = 5 << 20

type (
	options struct {
		maxSize  int64
		partial  bool
		filename string
	}

	// Option configures Decode.
	Option func(*options)
)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option {
	return func(o *options) { o.maxSize = n }
}

// WithPartial accepts documents that leave optional fields unset.
func WithPartial() Option {
	return func(o *options) { o.partial = true }
}

// WithFilename names the document in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// Decode unifies data with the schema definition named by definition
// (for example "#Config"), validates the result and decodes it into a T.
func Decode[T any](schema string, data []byte, definition string, opts ...Option) (*T, error) {
	o := options{maxSize: DefaultMaxSize, filename: "<input>"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := CheckSize(data, o.maxSize, o.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(schema)
	if err := schemaValue.Err(); err != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", err)
	}
	def := schemaValue.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("internal error: schema has no %s: %w", definition, err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := doc.Err(); err != nil {
		return nil, FormatError(err, o.filename)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(!o.partial)); err != nil {
		return nil, FormatError(err, o.filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return &out, nil
}
