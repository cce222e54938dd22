// Package control exposes the compositor to MCP clients over stdio.
package control

import (
	"context"
	"image"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gogpu/scrim"
	"github.com/gogpu/scrim/effect"
)

const (
	ServerName    = "scrim"
	ServerVersion = scrim.Version
)

// Target is the compositor surface the tools drive.
type Target interface {
	Registry() *effect.Registry
	SelectEffect(hotkey int) error
	TogglePause() bool
	WindowRegionChanged(r image.Rectangle)
	Status() scrim.Status
}

// Snapshotter saves the current output and returns the file path.
type Snapshotter interface {
	Save() (string, error)
}

// Server is the MCP server for one compositor.
type Server struct {
	mcpServer *mcpsdk.Server
	target    Target
	snapshots Snapshotter
}

// NewServer creates a server for target. A nil snapshots makes
// save_snapshot report an error.
func NewServer(target Target, snapshots Snapshotter) *Server {
	s := &Server{target: target, snapshots: snapshots}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	Logger().Info("control: serving MCP on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// MCPServer returns the underlying SDK server, for other transports.
func (s *Server) MCPServer() *mcpsdk.Server { return s.mcpServer }

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_effects",
		Description: "List the loaded effects with their hotkeys, marking the active one, plus any effects excluded at startup and why.",
	}, s.handleListEffects)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "select_effect",
		Description: "Activate the effect bound to a hotkey. The change applies from the next rendered frame.",
	}, s.handleSelectEffect)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toggle_pause",
		Description: "Pause or resume the overlay. While paused nothing is captured and the last output stays on screen.",
	}, s.handleTogglePause)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_region",
		Description: "Set the desktop rectangle the overlay processes, in desktop pixels. Parts outside the desktop are filled from the nearest edge.",
	}, s.handleSetRegion)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "save_snapshot",
		Description: "Save the most recently presented output to the snapshot directory and return the file path.",
	}, s.handleSaveSnapshot)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "status",
		Description: "Report frames rendered, the active effect, pause state, the requested region and the part of it covered by desktop pixels.",
	}, s.handleStatus)
}
