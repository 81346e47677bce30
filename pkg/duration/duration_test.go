package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacingOrder(t *testing.T) {
	assert.Less(t, StagePause, PerHostInterval, "stage pause should be shorter than host spacing")
	assert.Less(t, PerHostInterval, ProbeTimeout)
	assert.Equal(t, 6*time.Second, ProbeTimeout)
}

func TestShutdownBounds(t *testing.T) {
	for name, d := range map[string]time.Duration{
		"reporter": ReporterShutdown,
		"metrics":  MetricsShutdown,
		"browser":  BrowserShutdown,
	} {
		assert.Positive(t, d, name)
	}
}
