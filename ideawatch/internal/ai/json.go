package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSON strips surrounding whitespace and markdown code fences
// (```json ... ``` or ``` ... ```) from a model response.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// GenerateJSON issues req as a structured call and decodes the cleaned
// response into v. Decoding failures wrap ErrMalformed.
func GenerateJSON(ctx context.Context, g Generator, req Request, v any) error {
	req.JSON = true
	out, err := g.Generate(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(CleanJSON(out)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
