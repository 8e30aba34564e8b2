// cmd/ports.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/wklink/internal/port"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long:  `List the serial ports on this machine. The one "auto" would pick is marked with *.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := port.List()
		if err != nil {
			return err
		}
		printPorts(cmd.OutOrStdout(), ports)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func printPorts(w io.Writer, ports []port.Info) {
	picked, ok := port.Pick(ports)
	if !ok {
		fmt.Fprintln(w, port.ErrNoPorts)
		return
	}
	for _, p := range ports {
		mark := " "
		if p.Name == picked.Name {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, p)
	}
}
