package cli

import "github.com/spf13/cobra"

var rootCommand = &cobra.Command{
	Use:   "admin",
	Short: "admin cli for the authseed pipeline",
	Long:  "admin cli to run migrations and inspect or reset persisted user state",
	Run: func(cmd *cobra.Command, args []string) {
		//show help if no sub-command is provided
		cmd.Help()
	},
}

func Execute() error {
	return rootCommand.Execute()
}
