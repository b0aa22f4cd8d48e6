// Command pqcnet-sim drives small, self-contained simulations of PQCNet's
// core scenarios — rotation handshakes, DAG convergence, and reroute under
// threat — printing a JSON trace of each step to stdout (or a file).
//
// In the spirit of the teacher's gen-ephemsec-vectors: minimal wiring over
// the library packages, no network or disk I/O beyond the optional output
// file, just enough plumbing to exercise the real collaborator contracts.
package main

import (
	"fmt"
	"log"
	"os"
)

const usageFmt = `
Command Usage: %s <scenario> [Flags]
  Run a PQCNet core scenario and print a JSON trace.

Scenarios:
  rotation   QFKH epoch announce/encapsulate/activate over several hops
  dag        qsdag out-of-order diff insertion and convergence
  reroute    QSTP tunnel under QACE reroute/rekey/failover decisions

Run '%s <scenario> -h' for scenario-specific flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usageFmt, os.Args[0], os.Args[0])
		os.Exit(2)
	}

	scenario := os.Args[1]
	args := os.Args[2:]

	var err error
	switch scenario {
	case "rotation":
		err = runRotation(args)
	case "dag":
		err = runDag(args)
	case "reroute":
		err = runReroute(args)
	case "-h", "--help", "help":
		fmt.Fprintf(os.Stderr, usageFmt, os.Args[0], os.Args[0])
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", scenario)
		fmt.Fprintf(os.Stderr, usageFmt, os.Args[0], os.Args[0])
		os.Exit(2)
	}
	if nil != err {
		log.Fatalf("%s: %v", scenario, err)
	}
}

func openOutput(path string) (*os.File, error) {
	if "-" == path || "" == path {
		return os.Stdout, nil
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}
