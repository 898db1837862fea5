// Package port checks that the server's listening port is free before the
// HTTP server starts, and picks a replacement when asked to.
//
// The Scanner probes availability with net.Listen on the configured bind
// address. Resolve keeps the preferred port when it is free; with auto
// fallback enabled it searches the next few ports above it and then the
// IANA dynamic range (49152-65535).
package port
