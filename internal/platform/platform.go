// Package platform detects the host platform and exposes the two capability
// predicates the bootstrap sequence branches on: whether the credential store
// initializes on its own, or needs a user-visible consent step first.
package platform

import (
	"runtime"

	"github.com/relaychat/appcore/pkg/types"
)

// Detect captures the host platform. Call once at startup; the result is
// immutable and cached by the caller in bootstrap state.
func Detect() types.PlatformInfo {
	return detectFrom(runtime.GOOS)
}

func detectFrom(goos string) types.PlatformInfo {
	return types.PlatformInfo{
		OS:        goos,
		IsMac:     goos == "darwin",
		IsWindows: goos == "windows",
	}
}

// AutoInitializes reports whether the platform's credential store comes up
// without user interaction. Only macOS qualifies: the keychain unlocks with
// the login session.
func AutoInitializes(info types.PlatformInfo) bool {
	return info.IsMac
}

// RequiresExplicitConsent reports whether credential store setup must wait
// for a user-acknowledged consent step. Defined as the negation of
// AutoInitializes so the two predicates are mutually exclusive by
// construction, and any ambiguous platform lands on the conservative
// consent-requiring branch.
func RequiresExplicitConsent(info types.PlatformInfo) bool {
	return !AutoInitializes(info)
}
