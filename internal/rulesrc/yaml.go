// Package rulesrc loads gethead ignore rules from YAML documents kept in
// a local file, an SSM parameter or an S3 object.
//
// The document has a single key:
//
//	ignorePaths:
//	  - /api/buffer
//	  - regex: ^/internal/
//
// ignorePaths may also be a single string or a single {regex: ...} map.
package rulesrc

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/keithlinneman/gethead/internal/gethead"
	"github.com/keithlinneman/gethead/internal/xerrors"
)

type document struct {
	IgnorePaths any `yaml:"ignorePaths"`
}

// Result is a decoded document. Skipped describes elements that were not
// a string or a {regex: ...} map; they are dropped, not treated as errors.
type Result struct {
	Rules   gethead.Rules
	Skipped []string
}

// Parse decodes an ignore-rule document. An empty document or a missing
// ignorePaths key yields no rules. A regex that does not compile is an
// error.
func Parse(data []byte) (Result, error) {
	var res Result
	if strings.TrimSpace(string(data)) == "" {
		return res, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return res, xerrors.Wrap(err, "decode ignore rules")
	}

	switch v := doc.IgnorePaths.(type) {
	case nil:
	case []any:
		for i, el := range v {
			if err := res.add(fmt.Sprintf("ignorePaths[%d]", i), el); err != nil {
				return Result{}, err
			}
		}
	default:
		if err := res.add("ignorePaths", v); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func (res *Result) add(where string, el any) error {
	switch x := el.(type) {
	case string:
		res.Rules = append(res.Rules, gethead.Exact(x))
		return nil
	case map[string]any:
		expr, ok := x["regex"].(string)
		if !ok || len(x) != 1 {
			break
		}
		p, err := gethead.NewPattern(expr)
		if err != nil {
			return xerrors.Wrap(err, where)
		}
		res.Rules = append(res.Rules, p)
		return nil
	}
	res.Skipped = append(res.Skipped, fmt.Sprintf("%s: unsupported %T", where, el))
	return nil
}
