package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFetch_LabelsOutcome(t *testing.T) {
	ok := testutil.ToFloat64(fetchTotal.WithLabelValues("test_op", OutcomeOK))
	absent := testutil.ToFloat64(fetchTotal.WithLabelValues("test_op", OutcomeAbsent))

	RecordFetch("test_op", true, time.Second)
	RecordFetch("test_op", false, time.Second)
	RecordFetch("test_op", false, time.Second)

	assert.Equal(t, ok+1, testutil.ToFloat64(fetchTotal.WithLabelValues("test_op", OutcomeOK)))
	assert.Equal(t, absent+2, testutil.ToFloat64(fetchTotal.WithLabelValues("test_op", OutcomeAbsent)))
}

func TestTrackInFlight(t *testing.T) {
	before := testutil.ToFloat64(inFlight)

	done := TrackInFlight()
	assert.Equal(t, before+1, testutil.ToFloat64(inFlight))

	done()
	assert.Equal(t, before, testutil.ToFloat64(inFlight))
}

func TestRecordTeardownError(t *testing.T) {
	before := testutil.ToFloat64(teardownErrors.WithLabelValues("page"))
	RecordTeardownError("page")
	assert.Equal(t, before+1, testutil.ToFloat64(teardownErrors.WithLabelValues("page")))
}
