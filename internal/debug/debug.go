package debug

import (
	"fmt"
	"os"
)

// StopEnv names the variable that selects a stop point.
const StopEnv = "MAGICWAND_TEST_STOP"

// StopIf blocks until the process is signalled when StopEnv equals label.
// The marker on stderr lets interruption tests wait for the exact point
// before sending SIGINT; cancellation of ctx-bound children is then observable.
func StopIf(label string) {
	if os.Getenv(StopEnv) != label {
		return
	}
	fmt.Fprintf(os.Stderr, "TEST_stop_point_%s\n", label)
	select {}
}
