// Package applog builds the process-wide structured logger using
// log/slog plus a colored console handler.
package applog

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phsym/console-slog"
)

// New builds a colored, leveled logger writing to stdout. pretty disables
// ANSI coloring when false, for redirecting output to a file or a
// non-terminal consumer.
func New(level slog.Level, pretty bool) *slog.Logger {
	return slog.New(console.NewHandler(os.Stdout, &console.HandlerOptions{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !pretty,
	}))
}

var std = New(slog.LevelInfo, true)

// SetDefault replaces the logger ForRelay and ForBridge derive their
// scoped child loggers from.
func SetDefault(log *slog.Logger) {
	std = log
}

// ForRelay returns a logger scoped to one relay's local address.
func ForRelay(addr fmt.Stringer) *slog.Logger {
	return std.With("relay", addr.String())
}

// ForBridge returns a logger scoped to one client's remote address.
func ForBridge(addr fmt.Stringer) *slog.Logger {
	return std.With("client", addr.String())
}

// Banner prints the startup banner.
func Banner(title, version string) {
	const banner = `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██╗     ███████╗ ██████╗ ███████╗██╗  ██╗██╗███╗   ███╗ ║
║   ██║     ██╔════╝██╔════╝ ██╔════╝██║  ██║██║████╗ ████║ ║
║   ██║     █████╗  ██║  ███╗███████╗███████║██║██╔████╔██║ ║
║   ██║     ██╔══╝  ██║   ██║╚════██║██╔══██║██║██║╚██╔╝██║ ║
║   ███████╗███████╗╚██████╔╝███████║██║  ██║██║██║ ╚═╝ ██║ ║
║   ╚══════╝╚══════╝ ╚═════╝ ╚══════╝╚═╝  ╚═╝╚═╝╚═╝     ╚═╝ ║
║                                                           ║
║              %-44s║
║                    Version %-33s║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}
