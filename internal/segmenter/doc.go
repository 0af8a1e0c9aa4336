// Package segmenter converts one continuous speech recording plus its ordered
// script fragments into per-fragment audio slices. Boundary positions are
// weighted by character count and snapped to detected pauses so each slice
// starts and ends on natural speech breaks.
package segmenter
