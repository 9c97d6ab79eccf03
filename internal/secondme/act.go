package secondme

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ActionControl describes the structured output the upstream judgment call
// must produce: a natural-language description plus a JSON Schema.
type ActionControl struct {
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// CompatibilityScore is the fixed-schema judgment for two-party matching.
type CompatibilityScore struct {
	Score      float64  `json:"score"`
	Reasoning  string   `json:"reasoning"`
	Strengths  []string `json:"strengths"`
	Challenges []string `json:"challenges"`
}

// actRaw issues a non-streaming chat call with an action control attached and
// returns the raw judgment result, which may be a JSON string or an object.
func (c *Client) actRaw(ctx context.Context, accessToken, prompt string, control ActionControl) (json.RawMessage, error) {
	data, err := c.postJSON(ctx, c.chatURL(), accessToken, chatReq{
		Content:       prompt,
		Stream:        false,
		ActionControl: &control,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("secondme: decode act result: %w", err)
	}
	return out.Result, nil
}

// Act runs a caller-supplied judgment. When the upstream returns the result
// as a JSON string that does not parse, the raw string is handed back as-is.
func (c *Client) Act(ctx context.Context, accessToken, prompt string, control ActionControl) (any, error) {
	raw, err := c.actRaw(ctx, accessToken, prompt, control)
	if err != nil {
		return nil, err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return s, nil
		}
		return parsed, nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("secondme: decode act result: %w", err)
	}
	return parsed, nil
}

// GetCompatibilityScore scores how well two users match based on their shade
// lists and optional bios. Unlike Act, schema conformance is required here:
// a result that does not parse into CompatibilityScore is an error.
func (c *Client) GetCompatibilityScore(ctx context.Context, accessToken string, user1Shades, user2Shades []string, user1Bio, user2Bio string) (*CompatibilityScore, error) {
	raw, err := c.actRaw(ctx, accessToken, compatibilityPrompt(user1Shades, user2Shades, user1Bio, user2Bio), compatibilityControl())
	if err != nil {
		return nil, err
	}

	payload := raw
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		payload = []byte(s)
	}

	var score CompatibilityScore
	if err := json.Unmarshal(payload, &score); err != nil {
		return nil, fmt.Errorf("secondme: compatibility result does not conform to schema: %w", err)
	}
	return &score, nil
}

func compatibilityControl() ActionControl {
	return ActionControl{
		Description: "Analyze the interest tags and bios of two users and judge how well they match. Return a 0-100 score with reasoning, strengths and potential challenges.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"score": map[string]any{
					"type":        "number",
					"description": "compatibility score (0-100)",
					"minimum":     0,
					"maximum":     100,
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "detailed explanation of the score",
				},
				"strengths": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "shared ground and match strengths",
				},
				"challenges": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "possible challenges or differences",
				},
			},
			"required": []string{"score", "reasoning", "strengths", "challenges"},
		},
	}
}

func compatibilityPrompt(user1Shades, user2Shades []string, user1Bio, user2Bio string) string {
	var b strings.Builder
	b.WriteString("Analyze the compatibility of the following two users:\n\n")
	fmt.Fprintf(&b, "User A interest tags: %s\n", strings.Join(user1Shades, ", "))
	if user1Bio != "" {
		fmt.Fprintf(&b, "User A bio: %s\n", user1Bio)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "User B interest tags: %s\n", strings.Join(user2Shades, ", "))
	if user2Bio != "" {
		fmt.Fprintf(&b, "User B bio: %s\n", user2Bio)
	}
	b.WriteString("\nAssess how well they match and provide a detailed analysis.")
	return b.String()
}
