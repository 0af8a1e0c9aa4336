package toolllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// promptGenerationSystem instructs the model to split an ad script into
// clip-sized fragments paired with visual prompts.
const promptGenerationSystem = `You are a video advertisement director.
Split the provided script into at most %d fragments and write one visual
prompt per fragment describing what the character does on screen while
speaking it.

Rules:
- Each fragment must be the EXACT text from the script, copied verbatim.
  Never paraphrase, reorder, or drop words.
- The fragments in order must reconstruct the full script.
- Each visual prompt describes the character "%s" speaking the fragment to
  camera, with concrete motion and framing suitable for a short vertical ad.
- Respond with JSON only: {"clips":[{"prompt":"...","fragment":"..."}]}`

// promptAdjustmentSystem asks for a revised visual prompt after a failed
// verification, keeping the script fragment untouched.
const promptAdjustmentSystem = `You are a video advertisement director.
A generated clip failed verification against its script fragment. Write a
revised visual prompt that addresses the failure. The script fragment must
not change. Respond with JSON only: {"prompt":"..."}`

// PromptPair binds one visual prompt to the exact script fragment it covers.
type PromptPair struct {
	Prompt   string `json:"prompt"`
	Fragment string `json:"fragment"`
}

// GeneratePrompts splits the script into at most maxClips fragments, each
// paired with a visual prompt. A structurally invalid result (no clips, a
// blank field, or a fragment not present verbatim in the script) is an error.
func (c *Client) GeneratePrompts(ctx context.Context, script, characterName string, maxClips int) ([]PromptPair, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, errors.New("generate prompts: script required")
	}
	if maxClips <= 0 {
		return nil, fmt.Errorf("generate prompts: invalid clip limit %d", maxClips)
	}
	characterName = strings.TrimSpace(characterName)
	if characterName == "" {
		characterName = "the presenter"
	}

	system := fmt.Sprintf(promptGenerationSystem, maxClips, characterName)
	content, err := c.CompleteJSON(ctx, system, script)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Clips []PromptPair `json:"clips"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("generate prompts: parse payload: %w", err)
	}
	return validatePromptPairs(parsed.Clips, script, maxClips)
}

// AdjustPrompt produces a revised visual prompt for a clip whose previous
// attempt failed verification. The script fragment is never altered.
func (c *Client) AdjustPrompt(ctx context.Context, previousPrompt, fragment, failureNotes string) (string, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "", errors.New("adjust prompt: fragment required")
	}
	user := fmt.Sprintf(
		"Previous prompt: %s\nScript fragment (immutable): %s\nVerification notes: %s",
		strings.TrimSpace(previousPrompt),
		fragment,
		strings.TrimSpace(failureNotes),
	)
	content, err := c.CompleteJSON(ctx, promptAdjustmentSystem, user)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Prompt string `json:"prompt"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return "", fmt.Errorf("adjust prompt: parse payload: %w", err)
	}
	prompt := strings.TrimSpace(parsed.Prompt)
	if prompt == "" {
		return "", errors.New("adjust prompt: model returned empty prompt")
	}
	return prompt, nil
}

func validatePromptPairs(pairs []PromptPair, script string, maxClips int) ([]PromptPair, error) {
	if len(pairs) == 0 {
		return nil, errors.New("generate prompts: model returned no clips")
	}
	if len(pairs) > maxClips {
		return nil, fmt.Errorf("generate prompts: model returned %d clips, limit is %d", len(pairs), maxClips)
	}
	normalizedScript := normalizeWhitespace(script)
	out := make([]PromptPair, 0, len(pairs))
	for i, pair := range pairs {
		prompt := strings.TrimSpace(pair.Prompt)
		fragment := strings.TrimSpace(pair.Fragment)
		if prompt == "" {
			return nil, fmt.Errorf("generate prompts: clip %d has empty prompt", i)
		}
		if fragment == "" {
			return nil, fmt.Errorf("generate prompts: clip %d has empty fragment", i)
		}
		if !strings.Contains(normalizedScript, normalizeWhitespace(fragment)) {
			return nil, fmt.Errorf("generate prompts: clip %d fragment is not verbatim script text", i)
		}
		out = append(out, PromptPair{Prompt: prompt, Fragment: fragment})
	}
	return out, nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
