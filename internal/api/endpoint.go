package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one API operation: the HTTP route the server mounts and the
// CLI command that calls it.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the handler needs the pipeline and the
	// recipe store. Such routes answer 503 until the server has started.
	RequiresInit() bool

	// Command returns a cobra command that calls this endpoint over HTTP.
	// getServerURL is read when the command runs, after flags are parsed.
	Command(getServerURL func() string) *cobra.Command
}

// Grouped is implemented by endpoints whose command lives under a parent,
// such as "recipes list" or "tasks get". Ungrouped commands sit directly
// under "api".
type Grouped interface {
	Group() (name, short string)
}
