package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResumeIndex(t *testing.T) {
	order := []string{"Q1", "Q2", "Q3"}

	cases := []struct {
		name     string
		answered map[string]struct{}
		want     int
	}{
		{"nothing answered", map[string]struct{}{}, 0},
		{"first answered", map[string]struct{}{"Q1": {}}, 1},
		{"gap resumes at first unanswered", map[string]struct{}{"Q1": {}, "Q3": {}}, 1},
		{"all answered", map[string]struct{}{"Q1": {}, "Q2": {}, "Q3": {}}, 3},
		{"unknown extras ignored", map[string]struct{}{"Q9": {}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResumeIndex(order, tc.answered))
		})
	}
}

func TestResumeIndexEmptyOrder(t *testing.T) {
	assert.Equal(t, 0, ResumeIndex(nil, map[string]struct{}{"Q1": {}}))
}

func TestSessionKeyNormalizesParticipant(t *testing.T) {
	assert.Equal(t, sessionKey("alex"), sessionKey("  ALEX "))
	assert.Equal(t, sessionKey("mary ann"), sessionKey("Mary  Ann"))
}
