// Package flags contains the command line flags specific to the bonding
// engine node.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// MonitoringPortFlag defines the port used for prometheus metrics and health checks.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listen and respond metrics for prometheus.",
		Value: 8081,
	}
	// EvidenceKeyFileFlag points at the 32-byte hex key sealing evidence at rest.
	EvidenceKeyFileFlag = &cli.StringFlag{
		Name:  "evidence-key-file",
		Usage: "Path to the hex-encoded 32-byte key used to seal evidence records. Generated on first start when absent.",
		Value: "",
	}
	// EvidenceCacheItemsFlag bounds the in-memory evidence blob cache.
	EvidenceCacheItemsFlag = &cli.IntFlag{
		Name:  "evidence-cache-items",
		Usage: "Maximum number of sealed evidence blobs held in the in-memory read cache.",
		Value: 4096,
	}
)
