package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTool(t *testing.T) {
	okBefore := testutil.ToFloat64(ToolInvocations.WithLabelValues("ffprobe", "ok"))
	errBefore := testutil.ToFloat64(ToolInvocations.WithLabelValues("ffprobe", "error"))

	ObserveTool("ffprobe", 0.2, nil)
	ObserveTool("ffprobe", 0.3, errors.New("boom"))
	ObserveTool("ffprobe", 0.1, nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(ToolInvocations.WithLabelValues("ffprobe", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(ToolInvocations.WithLabelValues("ffprobe", "error")))
}
