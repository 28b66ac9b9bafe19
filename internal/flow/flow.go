// Package flow owns the onboarding step model: the canonical step order used
// for derivation, the per-platform display flows, and the pure function that
// answers "what must the user complete next".
//
// The canonical order and the display flows are deliberately two separate
// artifacts. A display flow may reorder steps for platform-specific reasons,
// but derivation always consults the canonical list, so "what comes next" is
// never ambiguous. ValidateFlows binds the two with a set-equality check.
package flow

import (
	"fmt"
	"sort"

	"github.com/relaychat/appcore/internal/platform"
	"github.com/relaychat/appcore/pkg/types"
)

// CanonicalStepOrder is the single source of truth for derivation order.
// Never reorder this to change what the UI displays; edit the platform flows
// in Registry instead.
var CanonicalStepOrder = []types.StepID{
	types.StepPermissions,
	types.StepPhoneType,
	types.StepEmailConnect,
	types.StepSecureStorage,
}

// completion maps each step to its predicate over the flag snapshot. A step
// is complete when its predicate is true.
var completion = map[types.StepID]func(types.FlagSnapshot) bool{
	types.StepPermissions:   func(f types.FlagSnapshot) bool { return f.HasPermissions },
	types.StepPhoneType:     func(f types.FlagSnapshot) bool { return f.HasPhoneType },
	types.StepEmailConnect:  func(f types.FlagSnapshot) bool { return f.HasEmail },
	types.StepSecureStorage: func(f types.FlagSnapshot) bool { return f.SecureStorageReady },
}

// FlowDefinition is a platform's ordered list of onboarding steps as
// displayed. Static configuration, never mutated at runtime.
type FlowDefinition struct {
	Platform     string         `json:"platform"`
	OrderedSteps []types.StepID `json:"ordered_steps"`
}

// Registry holds one display flow per platform family. Windows surfaces the
// secure-storage consent step first so every later step can rely on the
// credential store being up; macOS follows the canonical order.
var Registry = map[string]FlowDefinition{
	"mac": {
		Platform: "mac",
		OrderedSteps: []types.StepID{
			types.StepPermissions,
			types.StepPhoneType,
			types.StepEmailConnect,
			types.StepSecureStorage,
		},
	},
	"windows": {
		Platform: "windows",
		OrderedSteps: []types.StepID{
			types.StepSecureStorage,
			types.StepPermissions,
			types.StepPhoneType,
			types.StepEmailConnect,
		},
	},
}

// FlowFor returns the display flow for the detected platform. Platforms
// without their own flow use the windows flow, matching the conservative
// consent-first branch they are placed on.
func FlowFor(info types.PlatformInfo) FlowDefinition {
	if platform.AutoInitializes(info) {
		return Registry["mac"]
	}
	return Registry["windows"]
}

// DeriveCurrentStep returns the first step in order whose completion
// predicate is false, or StepReady when every step is complete. Pure; it has
// no knowledge of display flows. An empty snapshot yields the first step.
func DeriveCurrentStep(order []types.StepID, flags types.FlagSnapshot) types.StepID {
	for _, step := range order {
		done, ok := completion[step]
		if !ok {
			// Unknown steps are treated as incomplete so a drifted
			// order list fails loudly in tests, not silently.
			return step
		}
		if !done(flags) {
			return step
		}
	}
	return types.StepReady
}

// ValidateFlows checks that every registered flow contains exactly the same
// set of steps as CanonicalStepOrder (order may differ) and that every
// canonical step has a completion predicate. Run at startup and in tests.
func ValidateFlows() error {
	canonical := stepSet(CanonicalStepOrder)
	for _, step := range CanonicalStepOrder {
		if _, ok := completion[step]; !ok {
			return fmt.Errorf("canonical step %q has no completion predicate", step)
		}
	}
	for name, def := range Registry {
		if got := stepSet(def.OrderedSteps); got != canonical {
			return fmt.Errorf("flow %q steps %v do not match canonical set %v",
				name, sorted(def.OrderedSteps), sorted(CanonicalStepOrder))
		}
	}
	return nil
}

func stepSet(steps []types.StepID) string {
	return fmt.Sprint(sorted(steps))
}

func sorted(steps []types.StepID) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	sort.Strings(out)
	return out
}
