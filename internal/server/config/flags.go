package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/usenetsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   access-string HMAC secret key
//	-n string   newsgroup for segment articles
//	-z int      segment size, bytes
//	-r int      max retry count per queue item
//	-w int      workers per transfer direction
//	-m float    aggregate rate ceiling, Mbps (0 = unlimited)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Servers and interval settings have no flag form; use the JSON file.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-n", "-z", "-r", "-w", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.ShareSecretKey, "s", config.ShareSecretKey, "share secret key")
	fs.StringVar(&config.Newsgroup, "n", config.Newsgroup, "newsgroup for segment articles")
	fs.IntVar(&config.SegmentSizeBytes, "z", config.SegmentSizeBytes, "segment size (in bytes)")
	fs.IntVar(&config.MaxRetryCount, "r", config.MaxRetryCount, "max retry count")
	fs.IntVar(&config.WorkersPerDirection, "w", config.WorkersPerDirection, "workers per direction")
	fs.Float64Var(&config.MaxRateMbps, "m", config.MaxRateMbps, "max transfer rate (in Mbps, 0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
