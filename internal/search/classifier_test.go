package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testEntities = []string{"宝玉", "黛玉", "Rosalind"}
	testKeywords = []string{"why", "relationship", "为什么", "关系"}
)

func TestAnalyzeQuery(t *testing.T) {
	f := AnalyzeQuery("黛玉葬花", testEntities, testKeywords)
	assert.Equal(t, 4, f.RuneCount)
	assert.True(t, f.HasEntityName)
	assert.False(t, f.HasSemanticKeyword)

	f = AnalyzeQuery("What does ROSALIND want?", testEntities, testKeywords)
	assert.True(t, f.HasEntityName, "entity matching is case-insensitive")

	f = AnalyzeQuery("为什么宝玉要出家", testEntities, testKeywords)
	assert.True(t, f.HasEntityName)
	assert.True(t, f.HasSemanticKeyword)

	f = AnalyzeQuery("garden moonlight", testEntities, testKeywords)
	assert.False(t, f.HasEntityName)
	assert.False(t, f.HasSemanticKeyword)
}

func TestChooseStrategy(t *testing.T) {
	tests := []struct {
		name string
		f    QueryFeatures
		want Strategy
	}{
		{
			name: "short entity lookup goes lexical",
			f:    QueryFeatures{RuneCount: 4, HasEntityName: true},
			want: StrategyText,
		},
		{
			name: "long abstraction question goes semantic",
			f:    QueryFeatures{RuneCount: 60, HasSemanticKeyword: true},
			want: StrategySemantic,
		},
		{
			name: "long entity query stays hybrid",
			f:    QueryFeatures{RuneCount: 60, HasEntityName: true},
			want: StrategyHybrid,
		},
		{
			name: "short keyword query stays hybrid",
			f:    QueryFeatures{RuneCount: 10, HasSemanticKeyword: true},
			want: StrategyHybrid,
		},
		{
			name: "plain query stays hybrid",
			f:    QueryFeatures{RuneCount: 30},
			want: StrategyHybrid,
		},
		{
			name: "entity at exact short boundary goes lexical",
			f:    QueryFeatures{RuneCount: 20, HasEntityName: true},
			want: StrategyText,
		},
		{
			name: "keyword at exact long boundary stays hybrid",
			f:    QueryFeatures{RuneCount: 50, HasSemanticKeyword: true},
			want: StrategyHybrid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseStrategy(tt.f, 20, 50))
		})
	}
}

func TestChooseStrategy_IsDeterministic(t *testing.T) {
	f := AnalyzeQuery("宝玉和黛玉是什么关系", testEntities, testKeywords)
	first := ChooseStrategy(f, 20, 50)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ChooseStrategy(f, 20, 50))
	}
}
