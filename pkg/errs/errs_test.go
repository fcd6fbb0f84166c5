package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	parseErr := Parse("sexp", ErrUnexpectedEOF)
	ioErr := IO("read", "/nope.kicad_sch", os.ErrNotExist)

	assert.True(t, IsParse(parseErr))
	assert.False(t, IsIO(parseErr))
	assert.True(t, IsIO(ioErr))
	assert.True(t, errors.Is(parseErr, ErrUnexpectedEOF))
	assert.True(t, errors.Is(ioErr, os.ErrNotExist))
	assert.Contains(t, ioErr.Error(), "/nope.kicad_sch")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Parse("x", nil))
	assert.NoError(t, IO("x", "p", nil))
}

func TestClassSurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("validate board: %w", Parse("pcb", ErrUnbalanced))
	c, ok := ClassOf(err)
	require.True(t, ok)
	assert.Equal(t, ClassParse, c)
	assert.Equal(t, "parse", c.String())
}

func TestNoDoubleWrap(t *testing.T) {
	inner := Parse("sexp", ErrUnbalanced)
	outer := Parse("schematic", inner)
	assert.Same(t, inner, outer)
}
