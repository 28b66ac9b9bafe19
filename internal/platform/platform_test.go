package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFrom(t *testing.T) {
	mac := detectFrom("darwin")
	assert.True(t, mac.IsMac)
	assert.False(t, mac.IsWindows)
	assert.Equal(t, "darwin", mac.OS)

	win := detectFrom("windows")
	assert.False(t, win.IsMac)
	assert.True(t, win.IsWindows)

	linux := detectFrom("linux")
	assert.False(t, linux.IsMac)
	assert.False(t, linux.IsWindows)
}

func TestPredicatesMutuallyExclusive(t *testing.T) {
	for _, goos := range []string{"darwin", "windows", "linux", "freebsd", ""} {
		info := detectFrom(goos)
		auto := AutoInitializes(info)
		consent := RequiresExplicitConsent(info)
		assert.NotEqual(t, auto, consent, "exactly one predicate must hold for %q", goos)
	}
}

func TestAmbiguousPlatformDefaultsToConsent(t *testing.T) {
	// Unknown platforms must take the conservative branch rather than
	// silently auto-initializing the credential store.
	info := detectFrom("plan9")
	assert.True(t, RequiresExplicitConsent(info))
	assert.False(t, AutoInitializes(info))
}
