package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameIdea_CaseAndWhitespaceVariants(t *testing.T) {
	variants := []string{"Eco Packaging", "eco packaging", "  Eco Packaging  ", "ECO PACKAGING\n"}
	for _, a := range variants {
		for _, b := range variants {
			assert.True(t, SameIdea(a, b), "%q vs %q", a, b)
		}
	}
	assert.False(t, SameIdea("Eco Packaging", "Eco-Packaging"))
}

func TestValidateIdea(t *testing.T) {
	got, err := ValidateIdea("  AI tutoring app ")
	require.NoError(t, err)
	assert.Equal(t, "AI tutoring app", got)

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, err := ValidateIdea(blank)
		assert.ErrorIs(t, err, ErrEmptyIdea)
	}
}

func TestTypedErrors_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"upstream", &UpstreamError{Op: "sections.overview", Err: cause}, "sections.overview: upstream error: connection refused"},
		{"upstream with status", &UpstreamError{Op: "sections.overview", StatusCode: 503, Err: cause}, "status 503"},
		{"malformed", &MalformedResponseError{Op: "sections.competitors", Reason: "missing key competitors"}, "missing key competitors"},
		{"generation", &GenerationError{Idea: "x", Err: cause}, `startup plan for "x"`},
		{"persistence", &PersistenceError{Op: "insert", Err: cause}, "persistence insert failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.want)
		})
	}

	wrapped := &GenerationError{Idea: "x", Err: &UpstreamError{Op: "sections.overview", Err: cause}}
	var up *UpstreamError
	require.ErrorAs(t, wrapped, &up)
	assert.ErrorIs(t, wrapped, cause)
}
