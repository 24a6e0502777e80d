package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// JqQuery is a compiled jq program run against tree records. The program
// can refer to $project, the project name.
type JqQuery struct {
	source string
	code   *gojq.Code
}

// NewJqQuery parses and compiles query.
func NewJqQuery(query string) (*JqQuery, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq query '%s': %w", query, err)
	}

	code, err := gojq.Compile(parsed, gojq.WithVariables([]string{"$project"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq query '%s': %w", query, err)
	}

	return &JqQuery{source: query, code: code}, nil
}

func (q *JqQuery) String() string {
	return q.source
}

// Run applies the query to input and collects every result. Input is
// first brought into plain JSON form so structs such as Record are seen
// as objects.
func (q *JqQuery) Run(ctx context.Context, input any, project string) ([]any, error) {
	plain, err := toPlain(input)
	if err != nil {
		return nil, err
	}

	iter := q.code.RunWithContext(ctx, plain, project)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if haltErr, halted := err.(*gojq.HaltError); halted && haltErr.Value() == nil {
				break
			}
			return results, fmt.Errorf("jq: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

func toPlain(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64, int, map[string]any, []any:
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return plain, nil
}
