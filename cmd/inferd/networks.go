package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"inferd/internal/registry"
	"inferd/pkg/types"
)

func newNetworksCmd() *cobra.Command {
	var graphsDir string
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List the graph descriptions found in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadDir(graphsDir)
			if err != nil {
				return err
			}
			infos := make([]types.NetworkInfo, 0, len(reg))
			for _, e := range reg {
				infos = append(infos, e.Info)
			}
			writeNetworksTable(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().StringVar(&graphsDir, "graphs-dir", defaultGraphsDir, "Directory to scan for graph descriptions")
	return cmd
}

func writeNetworksTable(w io.Writer, infos []types.NetworkInfo) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Network", "Nodes", "Inputs", "Outputs", "Path"})
	table.SetAutoWrapText(false)
	for _, n := range infos {
		table.Append([]string{n.Name, fmt.Sprint(n.Nodes), formatPorts(n.Inputs), formatPorts(n.Outputs), n.Path})
	}
	table.Render()
}

func formatPorts(ps []types.PortInfo) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		dims := make([]string, len(p.Shape))
		for i, d := range p.Shape {
			if d < 0 {
				dims[i] = "?"
			} else {
				dims[i] = fmt.Sprint(d)
			}
		}
		parts = append(parts, fmt.Sprintf("%s:%s[%s]", p.Name, p.Precision, strings.Join(dims, "x")))
	}
	return strings.Join(parts, " ")
}
