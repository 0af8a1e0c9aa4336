package agent

import "adforge/internal/store"

// overlayPercent maps a successful tool call onto the job's progress scale.
// The mapping is a heuristic: it only ever raises the current percent, so a
// model that revisits earlier tools never walks progress backward.
func overlayPercent(tool string, clipIndex, totalClips int, current float64) float64 {
	var target float64
	switch tool {
	case ToolGeneratePrompts:
		target = 20
	case ToolGenerateOneClip:
		if totalClips > 0 {
			target = 20 + 40*float64(clipIndex+1)/float64(totalClips)
		}
	case ToolVerifyOneClip:
		if totalClips > 0 {
			target = 60 + 15*float64(clipIndex+1)/float64(totalClips)
		}
	case ToolMergeClips:
		target = 85
	case ToolEnhanceVoice:
		target = 92
	case ToolFinalize:
		target = 99
	}
	if target < current {
		return current
	}
	return target
}

// statusForTool labels the job with the step the model just performed.
func statusForTool(tool string) (store.Status, bool) {
	switch tool {
	case ToolGeneratePrompts:
		return store.StatusGeneratingPrompts, true
	case ToolGenerateOneClip:
		return store.StatusGeneratingVideos, true
	case ToolVerifyOneClip:
		return store.StatusVerifyingClips, true
	case ToolMergeClips:
		return store.StatusMergingVideos, true
	case ToolEnhanceVoice:
		return store.StatusEnhancingVoice, true
	case ToolFinalize:
		return store.StatusFinalizing, true
	default:
		return "", false
	}
}
