package cmd

import "github.com/spf13/cobra"

// Root returns the provisioner CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "provisioner",
		Short:        "Orchestrates site installations across control panel, DNS and installer",
		SilenceUsage: true,
	}

	cmd.AddCommand(Serve())
	cmd.AddCommand(Migrate())
	cmd.AddCommand(Watch())

	return cmd
}
