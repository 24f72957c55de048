package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFormula(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		base    float64
		want    float64
	}{
		{"markup", "cost*1.2", 10, 12},
		{"price alias", "price*1.15", 2, 2.3},
		{"fixed price", "3.5", 99, 3.5},
		{"addition", "cost+0.5", 3, 3.5},
		{"parentheses", "(cost+1)*2", 4, 10},
		{"subtraction", "cost*2-1", 5, 9},
		{"division", "cost/2", 7, 3.5},
		{"whitespace and case", " Cost * 1.2 ", 10, 12},
		{"precedence", "1+cost*2", 3, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := compileFormula(tt.formula)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, tree.eval(tt.base), 1e-9)
		})
	}
}

func TestCompileFormula_Invalid(t *testing.T) {
	tests := []string{
		"",
		"cost*",
		"(cost*1.2",
		"hello world",
		"1..2",
	}

	for _, formula := range tests {
		t.Run(formula, func(t *testing.T) {
			_, err := compileFormula(formula)
			assert.Error(t, err)
		})
	}
}

func TestCompileFormula_SanitizesInjection(t *testing.T) {
	// letters outside the cost/price tokens are stripped before parsing
	tree, err := compileFormula("cost*1.2; drop table rules")
	require.NoError(t, err)
	assert.InDelta(t, 12, tree.eval(10), 1e-9)
}

func TestEval_DivisionByZero(t *testing.T) {
	tree, err := compileFormula("cost/0")
	require.NoError(t, err)
	assert.Equal(t, 0.0, tree.eval(5))
}
