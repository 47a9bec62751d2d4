package policy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

// readModules loads path as one .rego file or a directory of them
func readModules(path string) ([]func(*rego.Rego), error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat policy path", goerr.V("path", path))
	}

	files := []string{path}
	if st.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.rego"))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to glob policy files")
		}
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}
	return modules, nil
}

func prepareQuery(ctx context.Context, modules []func(*rego.Rego), query string) (*rego.PreparedEvalQuery, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+2)
	options = append(options, rego.Query(query), rego.EnablePrintStatements(true))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", query))
	}
	return &prepared, nil
}
