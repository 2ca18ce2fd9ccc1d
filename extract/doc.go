// Package extract turns stored files into plain text, keyed by the file
// type declared at upload.
//
// Extraction never fails across the package boundary: Registry.Extract
// logs any problem and returns "". Callers treat an empty result as an
// extraction failure.
package extract
