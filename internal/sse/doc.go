// Package sse streams pipeline progress to HTTP callers as newline-delimited
// "data: <json>" frames. Each stream has a single writer; if the client goes
// away emission stops but in-flight stage work keeps running to completion.
package sse
