package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relaychat/appcore/internal/boot"
	"github.com/relaychat/appcore/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestBootObserver_CountsTransitionsAndErrors(t *testing.T) {
	m := New()
	observe := m.BootObserver()

	from := boot.NewState()
	to := boot.Reduce(from, boot.PlatformDetected(types.PlatformInfo{OS: "darwin", IsMac: true}))
	observe(from, to, boot.PlatformDetected(to.Platform))

	errState := boot.Reduce(to, boot.Fatal(errors.New("boom")))
	observe(to, errState, boot.Fatal(errors.New("boom")))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.bootTransitions.WithLabelValues("uninitialized", "checking-storage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bootErrors.WithLabelValues("false")))
}

func TestBootObserver_IgnoresSamePhaseDispatch(t *testing.T) {
	m := New()
	observe := m.BootObserver()

	s := boot.NewState()
	observe(s, s, boot.StorageChecked())

	assert.Equal(t, 0, testutil.CollectAndCount(m.bootTransitions))
}

func TestJobObserver_TracksRunningGauge(t *testing.T) {
	m := New()
	observe := m.JobObserver()

	observe(types.JobContacts, types.JobQueued)
	observe(types.JobContacts, types.JobRunning)
	observe(types.JobMessages, types.JobRunning)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsRunning))

	observe(types.JobContacts, types.JobComplete)
	observe(types.JobMessages, types.JobError)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobsRunning))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobFailures.WithLabelValues("messages")))
}
