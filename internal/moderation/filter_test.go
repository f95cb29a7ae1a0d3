package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterCheck(t *testing.T) {
	f := NewFilter([]string{"gore", " Violence ", "", "裸体"})

	tests := []struct {
		name    string
		text    string
		matched string
		banned  bool
	}{
		{"clean prompt", "a watercolor cat", "", false},
		{"exact keyword", "a scene of gore", "gore", true},
		{"case insensitive", "extreme VIOLENCE everywhere", "violence", true},
		{"substring match", "gores and more", "gore", true},
		{"chinese keyword", "画一个裸体的人", "裸体", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, banned := f.Check(tt.text)
			assert.Equal(t, tt.banned, banned)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestFilterEmptyKeywordListAllowsEverything(t *testing.T) {
	f := NewFilter(nil)
	_, banned := f.Check("anything at all")
	assert.False(t, banned)
}
