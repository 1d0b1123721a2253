package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// storedBatch is a recorded batch response, replayed for a repeated Idempotency-Key.
type storedBatch struct {
	BodyHash string
	Status   int
	Payload  []byte
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    []byte
}

func (w *captureWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
func (w *captureWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf = append(w.buf, b...)
	return w.ResponseWriter.Write(b)
}

// storeBatch records a completed batch response. Server errors are not
// recorded so the client can retry them.
func (s *Server) storeBatch(key, bodyHash string, rw *captureWriter) {
	if rw.status == 0 || rw.status >= http.StatusInternalServerError {
		return
	}
	s.batches.Set(key, storedBatch{BodyHash: bodyHash, Status: rw.status, Payload: append([]byte(nil), rw.buf...)})
}
