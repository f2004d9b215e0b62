package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomySurvivesWrapping(t *testing.T) {
	err := Wrap(Schema("rfm", "customer_id"), "running stage")

	assert.True(t, Is(err, ErrSchema))
	assert.False(t, Is(err, ErrPrerequisite))
	assert.Equal(t, "schema_error", Kind(err))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
	assert.Contains(t, err.Error(), `required column "customer_id" is missing`)
}

func TestKindMapping(t *testing.T) {
	cases := map[string]error{
		"prerequisite_error": Prerequisite("segmentation", "cleaned dataset"),
		"insufficient_data":  InsufficientData("need %d periods", 12),
		"computation_error":  Computation(New("nan"), "scaling features"),
		"invalid_parameter":  InvalidParameter("bad k"),
		"run_in_progress":    Wrap(ErrRunInProgress, "start"),
		"not_found":          NotFound("dataset %s", "x.csv"),
		"internal_error":     New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Kind(err), err.Error())
	}
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrRunInProgress))
}

func TestComputationWithoutCause(t *testing.T) {
	err := Computation(nil, "zero variance in %d features", 6)
	assert.True(t, Is(err, ErrComputation))
	assert.Equal(t, "zero variance in 6 features", err.Error())
}

func TestStackIncludesTrace(t *testing.T) {
	err := New("stage exploded")
	stack := Stack(err)
	assert.Contains(t, stack, "stage exploded")
	assert.Contains(t, stack, "errors_test.go")
	assert.Empty(t, Stack(nil))
}
