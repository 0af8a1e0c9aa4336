// Package toolllm provides an OpenRouter chat client used for prompt
// generation, tool-driven orchestration, and vision analysis.
//
// This package is used by:
//   - Prompt generation step: split a script into clip fragments with
//     paired visual prompts (Client.GeneratePrompts).
//   - Agent driver: multi-turn tool-calling conversations (Client.Chat).
//   - Vision gateway: JSON-mode analysis of extracted frames
//     (Client.CompleteJSONVision).
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Chat: send a transcript with an optional tools array, receive the
// assistant turn including tool calls.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.GeneratePrompts / Client.AdjustPrompt: ad-specific completions.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default),
// honoring Retry-After when present. Context cancellation aborts retries
// immediately.
package toolllm
