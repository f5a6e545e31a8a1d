// Package mode decides, once per process, what cunzhi runs as.
package mode

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/pkg/constants"
)

// Kind enumerates the operating modes
type Kind int

const (
	Desktop Kind = iota
	Help
	Version
	AutomatedRequest
	Server
)

func (k Kind) String() string {
	switch k {
	case Desktop:
		return "desktop"
	case Help:
		return "help"
	case Version:
		return "version"
	case AutomatedRequest:
		return "automated-request"
	case Server:
		return "server"
	default:
		return fmt.Sprintf("mode-%d", int(k))
	}
}

// Command-line flags
const (
	FlagHelp         = "--help"
	FlagHelpShort    = "-h"
	FlagVersion      = "--version"
	FlagVersionShort = "-v"
	FlagRequest      = "--mcp-request"
)

// Mode is the selected operating mode. RequestFile is set for
// AutomatedRequest and Port for Server.
type Mode struct {
	Kind        Kind
	RequestFile string
	Port        int
}

// Env looks up CUNZHI_* variables by key (see config.Env* constants)
type Env interface {
	Lookup(key string) (string, bool)
}

// UsageError is a malformed invocation. The process prints Message (and the
// help text when ShowHelp is set) to standard error and exits 1.
type UsageError struct {
	Message  string
	ShowHelp bool
}

func (e *UsageError) Error() string {
	return e.Message
}

// Resolve selects the mode from the arguments after the program name and the
// environment. The CUNZHI_MODE override is checked first; "desktop" falls
// through to argument dispatch.
func Resolve(args []string, env Env) (Mode, error) {
	if env != nil {
		if raw, ok := env.Lookup(config.EnvMode); ok {
			switch strings.ToLower(raw) {
			case constants.ServerModeName:
				port, _ := env.Lookup(config.EnvWebPort)
				return Mode{Kind: Server, Port: parsePort(port)}, nil
			case constants.DesktopModeName:
			default:
				return Mode{}, &UsageError{
					Message: fmt.Sprintf("invalid CUNZHI_MODE value: %s, supported values: desktop, web", raw),
				}
			}
		}
	}

	switch len(args) {
	case 0:
		return Mode{Kind: Desktop}, nil
	case 1:
		switch args[0] {
		case FlagHelp, FlagHelpShort:
			return Mode{Kind: Help}, nil
		case FlagVersion, FlagVersionShort:
			return Mode{Kind: Version}, nil
		default:
			return Mode{}, &UsageError{Message: "unknown argument: " + args[0], ShowHelp: true}
		}
	default:
		if args[0] == FlagRequest {
			return Mode{Kind: AutomatedRequest, RequestFile: args[1]}, nil
		}
		return Mode{}, &UsageError{Message: "invalid command line arguments", ShowHelp: true}
	}
}

// parsePort reads a TCP port; anything unparsable means the default
func parsePort(raw string) int {
	port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return constants.DefaultWebPort
	}
	return int(port)
}

// PrintHelp writes the usage text
func PrintHelp(w io.Writer) {
	name := constants.AppName
	fmt.Fprintf(w, "%s - %s\n\n", name, constants.AppDescription)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %-36s start the desktop interface\n", name)
	fmt.Fprintf(w, "  %-36s handle an MCP request\n", name+" "+FlagRequest+" <file>")
	fmt.Fprintf(w, "  %-36s show this help\n", name+" "+FlagHelp)
	fmt.Fprintf(w, "  %-36s show version information\n", name+" "+FlagVersion)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  %-36s start the desktop interface (default)\n", "CUNZHI_MODE=desktop")
	fmt.Fprintf(w, "  %-36s start the web interface\n", "CUNZHI_MODE=web")
	fmt.Fprintf(w, "  %-36s web port (default %d)\n", "CUNZHI_WEB_PORT=8080", constants.DefaultWebPort)
	fmt.Fprintf(w, "  %-36s configuration directory\n", "CUNZHI_CONFIG_DIR=<dir>")
	fmt.Fprintf(w, "  %-36s configuration backend: json, sqlite\n", "CUNZHI_STORE=json")
	fmt.Fprintf(w, "  %-36s log level: debug, info, warn, error\n", "CUNZHI_LOG_LEVEL=info")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintf(w, "  %-44s # desktop mode\n", name)
	fmt.Fprintf(w, "  %-44s # web mode, port %d\n", "CUNZHI_MODE=web "+name, constants.DefaultWebPort)
	fmt.Fprintf(w, "  %-44s # web mode, port 8080\n", "CUNZHI_MODE=web CUNZHI_WEB_PORT=8080 "+name)
}

// PrintVersion writes the version line
func PrintVersion(w io.Writer, version string) {
	fmt.Fprintf(w, "%s v%s\n", constants.AppName, version)
}
