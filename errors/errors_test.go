package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsIdentity(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "summarize %s", "doc-1")

	assert.Contains(t, wrapped.Error(), "summarize doc-1")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestMarkSurvivesWrapping(t *testing.T) {
	base := New("unexpected token in JSON")
	err := Wrap(Mark(base, ErrParse), "summarize representation 42")
	err = Wrap(err, "document task")

	assert.True(t, IsParseError(err))
	assert.False(t, IsUnavailableError(err))
	assert.True(t, Is(err, base))
	// The message keeps the original cause, not the sentinel's text.
	assert.NotContains(t, err.Error(), ErrParse.Error())
}

func TestMarkUnavailable(t *testing.T) {
	assert.Nil(t, MarkUnavailable(nil))

	err := MarkUnavailable(New("connection refused"))
	assert.True(t, IsUnavailableError(err))
	assert.Equal(t, "connection refused", err.Error())
}

func TestNewParseError(t *testing.T) {
	err := NewParseError("policy %q not valid for theme %q", "Jobs", "Homes")
	require.Error(t, err)
	assert.True(t, Is(err, ErrParse))
	assert.Equal(t, `policy "Jobs" not valid for theme "Homes"`, err.Error())
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("run %s", "abc")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("other")))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrInvalidConfig, ErrNoThemeFound, ErrParse,
		ErrCombine, ErrCondense, ErrUnavailable, ErrBudgetExceeded}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v should not match %v", a, b)
		}
	}
}

func TestIsAny(t *testing.T) {
	err := Mark(New("batch 3"), ErrCombine)
	assert.True(t, IsAny(err, ErrCondense, ErrCombine))
	assert.False(t, IsAny(err, ErrCondense, ErrParse))
}

func TestHintsAndDetails(t *testing.T) {
	err := New("api key missing")
	err = WithHint(err, "set OPENROUTER_API_KEY")
	err = WithDetailf(err, "provider=%s", "openrouter")
	err = Wrap(err, "build capabilities")

	assert.Contains(t, GetAllHints(err), "set OPENROUTER_API_KEY")
	assert.Contains(t, GetAllDetails(err), "provider=openrouter")
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestCombineErrors(t *testing.T) {
	a := New("batch 1")
	b := New("batch 2")
	err := CombineErrors(a, b)
	assert.True(t, Is(err, a))
	assert.Equal(t, a, CombineErrors(a, nil))
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "select themes")
	fmt.Println(err)
	// Output: select themes: connection failed
}
