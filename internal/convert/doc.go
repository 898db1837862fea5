// Package convert turns uploaded JPEG images into WebP and bundles the
// results into a ZIP archive.
//
// The package is transport-agnostic: the HTTP server feeds it multipart
// uploads and the convert command feeds it files from disk. Both go through
// ConvertBatch, which sanitizes names, filters on the .jpg/.jpeg suffix,
// converts concurrently and writes archive entries in input order.
//
// Encoding uses github.com/chai2010/webp (libwebp via cgo) because the
// golang.org/x/image/webp package only decodes.
package convert
