package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	okBefore := testutil.ToFloat64(runsTotal.WithLabelValues("apply", "ok"))
	incBefore := testutil.ToFloat64(decisionsTotal.WithLabelValues("increase"))
	appliedBefore := testutil.ToFloat64(appliedTotal)

	ObserveRun(RunResult{
		ActionMode: "apply",
		Actions:    map[string]int{"increase": 2, "hold": 5},
		Applied:    2,
		Duration:   120 * time.Millisecond,
	})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(runsTotal.WithLabelValues("apply", "ok")))
	assert.Equal(t, incBefore+2, testutil.ToFloat64(decisionsTotal.WithLabelValues("increase")))
	assert.Equal(t, appliedBefore+2, testutil.ToFloat64(appliedTotal))
}

func TestObserveRunFailure(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("suggest", "error"))
	ObserveRunFailure("suggest")
	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("suggest", "error")))
}

func TestObserveClassification(t *testing.T) {
	ObserveClassification(map[string]int{"STABLE": 3, "HIGH": 1})
	ObserveClassification(map[string]int{"STABLE": 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(classifiedSKUs.WithLabelValues("STABLE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(classifiedSKUs.WithLabelValues("HIGH")), "categories missing from the latest run drop to zero")
}
