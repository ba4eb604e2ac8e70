// Package chunker rebuilds logical frames from a fragmented instrument byte stream.
//
// Instruments deliver command echoes, prompts, text/XML records and fixed-size
// binary records interleaved on one link, in chunks that never line up with
// message boundaries. A Chunker buffers everything it is fed and applies an
// ordered set of Matchers; each Matcher recognizes one frame kind and only
// reports a frame once it is complete, so a partial frame at the buffer tail
// stays pending until the next Feed.
//
// # Selection rules
//
// On every Feed the whole buffer is rescanned:
//
//   - the complete frame with the earliest start offset wins; on a tie the
//     Matcher listed first wins.
//   - the winner is held back while a Matcher listed before it has an
//     incomplete frame starting earlier, because the winner may be part of
//     that frame's payload.
//   - bytes before the winner are discarded as noise.
//
// Frames therefore come out in strictly increasing start order and are
// byte-identical to the input span, independent of how the stream was split.
//
// When the buffer grows past the configured bound without completing a frame,
// Feed reports a StalledFrameError. The condition is not fatal; the caller
// decides whether to Flush.
package chunker
