package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCategories() map[string][]string {
	return map[string][]string{
		"billing": {"bill", "charge", "refund"},
		"support": {"help", "broken", "issue"},
	}
}

func TestCategorizeBestMatch(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), testCategories())

	assert.Equal(t, "billing", categorizer.Categorize("I was charged twice and want a refund for this bill"))
	assert.Equal(t, "support", categorizer.Categorize("my device is broken, please help"))
}

func TestCategorizeNoMatchIsOther(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), testCategories())

	assert.Equal(t, DefaultCategory, categorizer.Categorize("just calling to say hi"))
}

func TestCategorizeEmptyConfiguration(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), nil)

	assert.Equal(t, DefaultCategory, categorizer.Categorize("anything at all"))
}

func TestCategorizeTieBreaksDeterministically(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), testCategories())

	// One keyword from each category: the lexicographically smaller name wins.
	result := categorizer.Categorize("the charge is broken")
	assert.Equal(t, "billing", result)
}

func TestCategorizeCaseInsensitive(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), testCategories())

	assert.Equal(t, "billing", categorizer.Categorize("REFUND my CHARGE"))
}

func TestCategorizeIgnoresPunctuation(t *testing.T) {
	categorizer := NewCategorizer(newTestLogger(), testCategories())

	assert.Equal(t, "support", categorizer.Categorize("It's broken! Help?"))
}
