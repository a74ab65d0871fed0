package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docmail/docmail/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show docmail version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			format := ""
			if rt != nil {
				writer = rt.Writer()
				format = rt.OutputFormat("")
			}

			switch Format(format) {
			case FormatJSON, FormatYAML:
				return WriteObject(writer, Format(format), info)
			default:
				_, _ = fmt.Fprintln(writer, info.String())
				return nil
			}
		},
	}
}
