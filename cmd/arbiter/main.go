// Command arbiter evaluates access requests against the master tracker.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "sync":
		return runSyncCmd(args[2:], stdout, stderr)
	case "train":
		return runTrainCmd(args[2:], stdout, stderr)
	case "evaluate", "eval":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "sample":
		return runSampleCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "arbiter - access request evaluation")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  arbiter <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  sync      Read the master tracker and print the rule-set summary")
	fmt.Fprintln(w, "  train     Run interactive setup for the active rule set")
	fmt.Fprintln(w, "  evaluate  Evaluate an access request (--user, --permission)")
	fmt.Fprintln(w, "  verify    Verify an exported evidence pack (--pack)")
	fmt.Fprintln(w, "  sample    Write a sample master tracker workbook (--out)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration comes from environment variables (TRACKER_PATH,")
	fmt.Fprintln(w, "STORE_BACKEND, DATABASE_URL, TICKET_ENDPOINT, ...) plus an optional")
	fmt.Fprintln(w, "deployment profile (--profile-dir, --profile).")
	fmt.Fprintln(w, "")
}
