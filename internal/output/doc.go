// Package output provides the destinations a rendered manifest is written to
// and the encoders used for machine-readable listings.
//
// [FileWriter] replaces its target atomically: data goes to a temporary file
// in the same directory which is then renamed over the target, so readers
// never observe a half-written manifest and a failed write leaves the
// previous file intact. [StdoutWriter] is used for dry runs.
//
// [Registry] maps format names such as "json" and "yaml" to [Encoder]s.
package output
