package treefile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Error is a document that could not be read or does not match the schema.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// IDGenerator returns identifiers for nodes and capacities that have none.
type IDGenerator func() string

type options struct {
	newID IDGenerator
}

// Option configures Load and Parse.
type Option func(*options)

// WithIDGenerator replaces the UUID generator used for missing IDs.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		o.newID = gen
	}
}

// Load reads and validates the document at path. The format follows the
// extension: .yaml, .yml, .json or .cue.
func Load(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tree document: %w", err)
	}
	return Parse(path, data, opts...)
}

// Parse validates data as a document. name is used for the format and for
// error positions.
func Parse(name string, data []byte, opts ...Option) (*Document, error) {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Path: name, Message: fmt.Sprintf("parse yaml: %v", err)}
		}
		value = ctx.Encode(raw)
	case ".json", ".cue":
		// JSON is valid CUE, and compiling it keeps line positions.
		value = ctx.CompileBytes(data, cue.Filename(name))
	default:
		return nil, &Error{Path: name, Message: fmt.Sprintf("unsupported document format %q", ext)}
	}
	if err := value.Err(); err != nil {
		return nil, cueError(name, err)
	}

	value = schema.LookupPath(cue.ParsePath("#Document")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(name, err)
	}

	js, err := value.MarshalJSON()
	if err != nil {
		return nil, cueError(name, err)
	}
	var raw rawDocument
	if err := json.Unmarshal(js, &raw); err != nil {
		return nil, &Error{Path: name, Message: fmt.Sprintf("decode document: %v", err)}
	}

	doc, err := build(raw, o.newID)
	if err != nil {
		return nil, &Error{Path: name, Message: err.Error()}
	}
	doc.Source = name
	return doc, nil
}

// cueError keeps the first error and its position.
func cueError(path string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: path, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Path: path, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
