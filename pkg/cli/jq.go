package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/kaptinlin/jsonrepair"
)

// FilterJQ applies a jq expression to a script result.
//
// Output that parses as JSON is filtered as a value. Object or array output
// that is almost JSON (single quotes, unquoted keys, trailing commas) is
// repaired first. Anything else is filtered as a JSON string.
func FilterJQ(output, expr string) ([]any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression %q: %w", expr, err)
	}

	input := decodeOutput(output)

	var results []any
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// FormatJQ renders jq results one per line. Strings are written bare.
func FormatJQ(results []any) (string, error) {
	var out []byte
	for _, v := range results {
		if s, ok := v.(string); ok {
			out = append(out, s...)
		} else {
			data, err := gojq.Marshal(v)
			if err != nil {
				return "", err
			}
			out = append(out, data...)
		}
		out = append(out, '\n')
	}
	return string(out), nil
}

func decodeOutput(output string) any {
	var v any
	if err := json.Unmarshal([]byte(output), &v); err == nil {
		return v
	}
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return output
	}
	fixed, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return output
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return output
	}
	return v
}
