package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/auditworks/casetrainer/internal/session"
	"github.com/auditworks/casetrainer/internal/storage"
)

// POST /cases/{caseID}/docs/{docID}
// Uploads a supporting document (bank statement, invoice packet) for a case.
func UploadCaseDocHandler(bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
		docID := strings.TrimSpace(chi.URLParam(r, "docID"))
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		key, err := bs.Put(storage.DocKey(caseID, docID), f)
		if err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"key": key})
	}
}

// GET /cases/{caseID}/docs/{docID}
// Streams a supporting document. Opening a doc through a live session counts
// toward the trainee's required-docs compliance.
func GetCaseDocHandler(bs storage.BlobStore, mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
		docID := strings.TrimSpace(chi.URLParam(r, "docID"))

		rc, err := bs.Get(storage.DocKey(caseID, docID))
		if err != nil {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		defer rc.Close()

		if e, ok := liveSession(mgr, r); ok {
			e.MarkDocOpened(docID)
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	}
}
