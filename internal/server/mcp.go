package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "mcpdocs"
	serverVersion = "0.5.0"
)

// BuildMCPServer assembles the MCP server: server info, startup
// instructions, and the six documentation tools. onInitialized is invoked
// when a session completes the protocol handshake.
func BuildMCPServer(h *Handler, instructions string, onInitialized func(*mcp.ServerSession)) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: serverVersion},
		&mcp.ServerOptions{
			Instructions: instructions,
			InitializedHandler: func(_ context.Context, req *mcp.InitializedRequest) {
				if onInitialized != nil {
					onInitialized(req.Session)
				}
			},
		})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_docs",
		Description: "Search a package's documentation with a natural-language question and return the most relevant fragments.",
	}, h.QueryDocs)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_package",
		Description: "Track a package and start ingesting its documentation in the background.",
	}, h.AddPackage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_packages",
		Description: "Track several packages at once; each starts a background ingestion.",
	}, h.AddPackages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_packages",
		Description: "List tracked package configurations.",
	}, h.ListPackages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_status",
		Description: "Report the ingestion and availability status of a tracked package.",
	}, h.CheckStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_package",
		Description: "Stop tracking a package and remove it from the queryable set.",
	}, h.RemovePackage)

	return server
}
