package jetstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSubject(t *testing.T) {
	tests := []struct {
		subject string
		id      string
		done    bool
		ok      bool
	}{
		{ChunkSubject("abc-123"), "abc-123", false, true},
		{DoneSubject("abc-123"), "abc-123", true, true},
		{SubjectPrefix, "", false, false},
		{SubjectPrefix + ".done", "", false, false},
		{"hoopstream.other", "", false, false},
		{SubjectPrefix + "a.b", "", false, false},
		{"unrelated.subject", "", false, false},
	}

	for _, tt := range tests {
		id, done, ok := SplitSubject(tt.subject)
		assert.Equal(t, tt.ok, ok, "subject %q", tt.subject)
		if tt.ok {
			assert.Equal(t, tt.id, id, "subject %q", tt.subject)
			assert.Equal(t, tt.done, done, "subject %q", tt.subject)
		}
	}
}

func TestSubjectRoundTrip(t *testing.T) {
	id := "8f14e45f-ceea-467f-9575-b8c6df2c1f6e"

	gotID, done, ok := SplitSubject(ChunkSubject(id))
	assert.True(t, ok)
	assert.False(t, done)
	assert.Equal(t, id, gotID)

	gotID, done, ok = SplitSubject(DoneSubject(id))
	assert.True(t, ok)
	assert.True(t, done)
	assert.Equal(t, id, gotID)
}
