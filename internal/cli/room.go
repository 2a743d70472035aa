package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkeye/Consult/internal/domain"
)

func NewRoomCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Create or check meeting rooms",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a new meeting room",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := deps.Rooms.GetToken(cmd.Context())
			if err != nil {
				return err
			}
			id, err := deps.Rooms.CreateRoom(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <meeting-id>",
		Short: "Check that a meeting room can be joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := deps.Rooms.GetToken(cmd.Context())
			if err != nil {
				return err
			}
			id, err := deps.Rooms.ValidateRoom(cmd.Context(), domain.MeetingID(args[0]), token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", id)
			return nil
		},
	})

	return cmd
}
