package agent

import "adforge/internal/services/toolllm"

// Tool names form a closed set. A call naming anything else is answered with
// an error payload instead of being dispatched.
const (
	ToolGeneratePrompts = "generate_prompts"
	ToolGenerateOneClip = "generate_one_clip"
	ToolVerifyOneClip   = "verify_one_clip"
	ToolMergeClips      = "merge_clips"
	ToolEnhanceVoice    = "enhance_voice"
	ToolFinalize        = "finalize"
)

func toolMenu() []toolllm.Tool {
	return []toolllm.Tool{
		toolllm.NewTool(ToolGeneratePrompts,
			"Split the ad script into visual prompts paired with exact script fragments, synthesize the voice track, and plan one clip task per pair. Call this exactly once, before any other tool.",
			`{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}`),
		toolllm.NewTool(ToolGenerateOneClip,
			"Generate the video for one planned clip. Pass an adjusted visual prompt to regenerate a clip that failed verification; the script fragment can never be changed. At most 2 regenerations per clip are allowed.",
			`{
  "type": "object",
  "properties": {
    "clip_index": {"type": "integer", "description": "Zero-based index of the clip task."},
    "prompt": {"type": "string", "description": "Visual prompt to generate with. Omit to reuse the clip's current prompt."}
  },
  "required": ["clip_index"],
  "additionalProperties": false
}`),
		toolllm.NewTool(ToolVerifyOneClip,
			"Check a generated clip against its script fragment with the vision service. Every generated clip must be verified before merging.",
			`{
  "type": "object",
  "properties": {
    "clip_index": {"type": "integer", "description": "Zero-based index of the clip task."}
  },
  "required": ["clip_index"],
  "additionalProperties": false
}`),
		toolllm.NewTool(ToolMergeClips,
			"Concatenate every verified clip in index order into one video. Requires at least one verified clip.",
			`{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}`),
		toolllm.NewTool(ToolEnhanceVoice,
			"Convert the merged video's soundtrack to the requested voice. Failure is non-critical: the merged video carries forward unchanged.",
			`{
  "type": "object",
  "properties": {
    "voice": {"type": "string", "description": "Voice id override. Omit to use the job's voice preference."}
  },
  "additionalProperties": false
}`),
		toolllm.NewTool(ToolFinalize,
			"Publish the finished video as the job's durable asset. Call this exactly once, as the last tool, to finish the job. Do not answer in plain text instead.",
			`{
  "type": "object",
  "properties": {},
  "additionalProperties": false
}`),
	}
}

type generateClipArgs struct {
	ClipIndex int    `json:"clip_index"`
	Prompt    string `json:"prompt"`
}

type verifyClipArgs struct {
	ClipIndex int `json:"clip_index"`
}

type enhanceVoiceArgs struct {
	Voice string `json:"voice"`
}
