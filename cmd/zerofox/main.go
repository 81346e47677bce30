// Command zerofox probes parameterized URLs for reflected XSS.
//
// Usage:
//
//	zerofox scan -l urls.txt [flags]
//	cat urls.txt | zerofox scan -stdin
//	zerofox version
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/ui"
)

func main() {
	ui.PrepareConsole()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return defaults.ExitUsage
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stdin, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "%s %s (commit %s, built %s)\n", defaults.ToolName, ui.Version, ui.Commit, ui.BuildDate)
		return defaults.ExitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return defaults.ExitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return defaults.ExitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%[1]s %[2]s - two-stage reflected XSS prober

Usage:
  %[1]s scan [flags]     probe candidate URLs (see "%[1]s scan -h")
  %[1]s version          print version information
  %[1]s help             show this help

Examples:
  %[1]s scan -u 'https://example.com/search?q=1'
  %[1]s scan -l urls.txt -c 50 -rps 100 -o out
  gau example.com | %[1]s scan -stdin -verify

Output:
  <out>/xss_found_urls.txt       sorted probe URLs that reflected a payload
  <out>/evidence/*__resp.html    response bodies, one per unique finding
`, defaults.ToolName, ui.Version)
}
