package vsix

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ValidationError lists every document that failed schema validation.
type ValidationError struct {
	Problems []Problem
}

// Problem is one failed document.
type Problem struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("validation failed: %s: %v", e.Problems[0].Path, e.Problems[0].Err)
	}
	return fmt.Sprintf("validation failed: %d documents", len(e.Problems))
}

var (
	schemaOnce      sync.Once
	extensionSchema *jsonschema.Schema
	taskSchema      *jsonschema.Schema
	schemaErr       error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range []string{"extension", "task"} {
			data, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemaErr = err
				return
			}
			if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
				schemaErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}
		if extensionSchema, schemaErr = compiler.Compile(schemaURL("extension")); schemaErr != nil {
			return
		}
		taskSchema, schemaErr = compiler.Compile(schemaURL("task"))
	})
	return schemaErr
}

func schemaURL(name string) string {
	return "inmemory://vsixctl/" + name + ".json"
}

// Validate checks the extension manifest and every task manifest against
// the bundled JSON schemas. All failures are reported together in a
// *ValidationError; I/O and parse failures are returned as is.
func (r *Reader) Validate() error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	manifestPath, err := r.ManifestPath()
	if err != nil {
		return err
	}

	var problems []Problem
	check := func(p string, s *jsonschema.Schema) error {
		data, err := r.readNormalized("validate", p)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(trimBOM(data), &doc); err != nil {
			return &ParseError{Path: p, Err: err}
		}
		if err := s.Validate(doc); err != nil {
			var ve *jsonschema.ValidationError
			if !errors.As(err, &ve) {
				return err
			}
			problems = append(problems, Problem{Path: p, Err: err})
		}
		return nil
	}

	if err := check(manifestPath, extensionSchema); err != nil {
		return err
	}
	tasks, err := r.TasksInfo()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := check(t.Path, taskSchema); err != nil {
			return err
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
