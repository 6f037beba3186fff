package alignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSectionNumbers(t *testing.T) {
	t.Run("Should find decimal and labelled numbers", func(t *testing.T) {
		assert.Equal(t, []string{"1.2", "7", "7"}, extractSectionNumbers("see 1.2 and Article 7"))
		assert.Equal(t, []string{"4"}, extractSectionNumbers("section4"))
	})

	t.Run("Should convert CJK numerals", func(t *testing.T) {
		assert.Equal(t, []string{"3"}, extractSectionNumbers("第三条"))
		assert.Equal(t, []string{"20"}, extractSectionNumbers("第二十条"))
		assert.Equal(t, []string{"105"}, extractSectionNumbers("第一百零五条"))
	})

	t.Run("Should ignore identifiers without numbers", func(t *testing.T) {
		assert.Empty(t, extractSectionNumbers("sec_abc"))
		assert.Empty(t, extractSectionNumbers(""))
	})
}

func TestSectionNumberScore(t *testing.T) {
	assert.InDelta(t, 0.75, sectionNumberScore([]string{"2"}, []string{"2"}), 1e-9)
	assert.InDelta(t, 0.65, sectionNumberScore([]string{"2"}, []string{"2.1"}), 1e-9)
	assert.InDelta(t, 0.65, sectionNumberScore([]string{"2.1.3"}, []string{"2.1"}), 1e-9)
	assert.InDelta(t, 0.75, sectionNumberScore([]string{"2", "5"}, []string{"2.1", "5"}), 1e-9)
	assert.Zero(t, sectionNumberScore([]string{"1"}, []string{"10"}))
}
