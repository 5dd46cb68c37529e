// Package gateway validates, stages and releases untrusted video uploads before
// they are handed to the analysis backend.
//
// A candidate goes through Validate (pure, reads only metadata), then Stage,
// which copies its bytes into a Stager-owned resource (temp file, memory or an
// object in S3). Every StagedUpload must be released exactly once; Session and
// Manager make sure that happens when a user replaces a file, discards it, goes
// idle or the process shuts down.
package gateway
