// Package record turns recognized frames into typed Samples.
//
// A Decoder holds one Rule per frame kind:
//
//   - TextRule extracts fields from text or XML frames with capturing
//     patterns and coerces them to string, integer, float, boolean or an
//     NTP timestamp parsed from a date layout.
//   - BinaryRule reads big-endian integers at fixed offsets after checking
//     that the frame has exactly the expected size.
//
// MetadataRule decodes the time-on/time-off pair and the derived sample count
// that accompany profiler data files.
//
// Every decode path is a pure function of its input. Failures are reported as
// *DecodeError, which matches ErrDecode with errors.Is and keeps the frame for
// diagnostics.
package record
