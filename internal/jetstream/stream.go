package jetstream

import (
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName    = "HOOPSTREAM"
	SubjectPrefix = "hoopstream.pred."

	doneSuffix = ".done"
)

// EnsureStream creates the prediction chunk stream. Chunks are held on
// disk for a day so the analytics consumer can lag or restart without
// losing streams.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"hoopstream.>"},
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

// ChunkSubject carries raw SSE bytes for one prediction request.
func ChunkSubject(requestID string) string {
	return SubjectPrefix + requestID
}

// DoneSubject marks the end of a request's chunk stream.
func DoneSubject(requestID string) string {
	return SubjectPrefix + requestID + doneSuffix
}

// SplitSubject recovers the request ID from a chunk or done subject.
// done reports whether the subject is an end-of-stream marker.
func SplitSubject(subject string) (requestID string, done bool, ok bool) {
	rest, found := strings.CutPrefix(subject, SubjectPrefix)
	if !found || rest == "" {
		return "", false, false
	}
	if id, isDone := strings.CutSuffix(rest, doneSuffix); isDone {
		return id, true, id != ""
	}
	if strings.Contains(rest, ".") {
		return "", false, false
	}
	return rest, false, true
}
