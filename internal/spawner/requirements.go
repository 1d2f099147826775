package spawner

import (
	"os/exec"

	"github.com/corewright/taskrunner/internal/runnable"
	"github.com/corewright/taskrunner/internal/task"
)

// RequirementChecker evaluates a single declared requirement kind.
type RequirementChecker func(req runnable.Requirement) bool

// defaultRequirementCheckers are shared by every spawner variant: triage
// is a property of the runnable, not of how it gets executed.
var defaultRequirementCheckers = map[string]RequirementChecker{
	"binary": checkBinaryRequirement,
}

// checkBinaryRequirement passes if Args["name"] resolves on $PATH.
func checkBinaryRequirement(req runnable.Requirement) bool {
	name, _ := req.Args["name"].(string)
	if name == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

// checkRequirements passes iff every declared requirement is both
// recognized and satisfied. An empty list is vacuously true.
func checkRequirements(rt *task.RuntimeTask, checkers map[string]RequirementChecker) bool {
	for _, req := range rt.Runnable.Requirements {
		checker, ok := checkers[req.Kind]
		if !ok {
			return false
		}
		if !checker(req) {
			return false
		}
	}
	return true
}
