// Package batch runs independent synthesis work items under a bounded
// concurrency cap with shared retry and timeout semantics. The TTS, image,
// and research stages all fan out through it.
package batch
