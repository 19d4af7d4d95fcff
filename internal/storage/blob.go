// Package storage holds the supporting documents a case ships with: bank
// statements, invoices, rollforward schedules. The trainer records which of
// these a trainee opened; the bytes themselves live here.
package storage

import "io"

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}

// DocKey is the canonical blob key for one supporting document of a case.
func DocKey(caseID, docID string) string {
	return "cases/" + caseID + "/docs/" + docID
}
