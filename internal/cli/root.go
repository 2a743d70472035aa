// Package cli is the command tree of the local meeting agent.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Consult/internal/adapters/rooms"
	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
)

type Dependencies struct {
	Config *config.Config
	Rooms  core.RoomProvider
	// Devices opens the capture drivers on first use so commands that never
	// touch hardware do not pay for it.
	Devices func() (core.Devices, error)
}

func NewDependencies(cfg *config.Config, devices func() (core.Devices, error)) *Dependencies {
	return &Dependencies{
		Config:  cfg,
		Rooms:   rooms.New(cfg.Meeting),
		Devices: devices,
	}
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "consult",
		Short:         "Local meeting agent",
		Long:          "Runs the meeting session coordinator that a browser page drives over a local control socket.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewRoomCmd(deps))

	return rootCmd
}
