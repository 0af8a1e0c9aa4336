// Package media shells out to ffmpeg/ffprobe for the audio and video
// operations the pipeline needs: probing, slicing, silence detection,
// concatenation, audio splicing, and frame extraction.
package media
