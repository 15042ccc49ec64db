// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Command sorafeedd is the SoraFeed server daemon and operations CLI.
//
// # Subcommands
//
//	serve                           run the supervised server (default)
//	scan-once                       run a single ingestion cycle and exit
//	reset-display <code>            clear a display's timeline and rebuild it
//	export-playlist <code>          write the display's active playlist as CSV to stdout
//	import-playlist <code> <file>   install a playlist from a CSV file
//
// # Architecture
//
// The serve subcommand assembles the full component graph and hands every
// long-running piece to a suture supervisor tree:
//
//	sorafeed (root)
//	├── ingest-layer      adaptive feed scanner
//	├── messaging-layer   realtime hub, optional NATS relay
//	└── api-layer         HTTP server (chi)
//
// Crashed services restart with exponential backoff; SIGINT/SIGTERM cancel
// the root context for graceful shutdown.
//
// # Configuration
//
// Configuration is layered: built-in defaults, then an optional YAML file
// (SORAFEED_CONFIG), then SORAFEED_* environment variables. See
// internal/config for the full key list.
//
// # Build Tags
//
// The NATS event relay compiles in with -tags=nats. Without the tag the
// relay is a stub and the server runs single-instance with the in-process
// bus only.
//
// # Exit Codes
//
//	0  success
//	1  usage error (unknown subcommand or bad arguments)
//	2  runtime failure
package main

import (
	"fmt"
	"os"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
)

const usage = `Usage: sorafeedd [subcommand] [args]

Subcommands:
  serve                           run the server (default)
  scan-once                       run a single ingestion cycle and exit
  reset-display <code>            clear a display's timeline and rebuild it
  export-playlist <code>          write the active playlist as CSV to stdout
  import-playlist <code> <file>   install a playlist from a CSV file
`

func main() {
	args := os.Args[1:]
	sub := "serve"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "serve":
		os.Exit(runServe())
	case "scan-once":
		if len(args) != 0 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(exitUsage)
		}
		os.Exit(runScanOnce())
	case "reset-display":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "reset-display requires exactly one display code")
			os.Exit(exitUsage)
		}
		os.Exit(runResetDisplay(args[0]))
	case "export-playlist":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "export-playlist requires exactly one display code")
			os.Exit(exitUsage)
		}
		os.Exit(runExportPlaylist(args[0]))
	case "import-playlist":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "import-playlist requires a display code and a CSV file")
			os.Exit(exitUsage)
		}
		os.Exit(runImportPlaylist(args[0], args[1]))
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n\n%s", sub, usage)
		os.Exit(exitUsage)
	}
}
