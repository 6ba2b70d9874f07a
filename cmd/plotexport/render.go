package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-static-export/export"
	"github.com/spf13/cobra"
)

func getCmdRender(gs *globalState) *cobra.Command {
	var (
		in     string
		out    string
		format string
		width  int
		height int
		scale  float64
	)

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a plot document to a static image",
		Long: `Render a plot document to a static image.

  The plot is read from --in ("-" for stdin). With --out the image is written
  to that path using the format's extension, otherwise it goes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plot, err := readPlot(in, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req, err := export.NewRequest(export.Format(format), plot, width, height, scale)
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}

			exp, _, release, err := gs.newExporter(cmd)
			if err != nil {
				return err
			}
			defer release()

			if out == "" {
				data, err := exp.ToBytes(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path, err := exp.WriteToFile(cmd.Context(), req, out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	flags := renderCmd.Flags()
	flags.StringVarP(&in, "in", "i", "-", "plot JSON file")
	flags.StringVarP(&out, "out", "o", "", "output path, the extension is set from --format")
	flags.StringVarP(&format, "format", "f", string(export.FormatPNG), "png, jpeg, webp, svg or pdf")
	flags.IntVar(&width, "width", 700, "image width in pixels")
	flags.IntVar(&height, "height", 500, "image height in pixels")
	flags.Float64Var(&scale, "scale", 1, "pixel scale factor")
	return renderCmd
}

func readPlot(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, export.NewError(export.KindIO, "read plot", err)
	}
	return export.PlotFrom(json.RawMessage(data))
}
