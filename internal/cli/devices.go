package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dkeye/Consult/internal/app/preview"
)

func NewDevicesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List cameras and microphones",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := deps.Devices()
			if err != nil {
				return fmt.Errorf("opening capture drivers: %w", err)
			}
			list, err := preview.NewManager(devices, preview.Selection{}).ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tID\tLABEL")
			for _, d := range list.Cameras {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Kind, d.ID, d.Label)
			}
			for _, d := range list.Microphones {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Kind, d.ID, d.Label)
			}
			return w.Flush()
		},
	}
}
