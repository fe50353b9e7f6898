package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/repo"
)

func newInsertCmd() *cobra.Command {
	var wkt, crs string

	cmd := &cobra.Command{
		Use:   "insert <name> [property=value...]",
		Short: "Write a feature into the working tree",
		Long: `Write a feature into the working tree, replacing any feature of the
same name. Property values are typed: null, true, false, integers and floats
are recognized; quote a value to keep it as text.`,
		Example: `  geogot insert parcels/17 owner=Ada area=412.5 --wkt "POINT(4.89 52.37)" --crs EPSG:4326`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := feature.New()
			for _, raw := range args[1:] {
				name, value, err := feature.ParseProperty(raw)
				if err != nil {
					return err
				}
				if err := f.Set(name, value); err != nil {
					return err
				}
			}
			if wkt != "" {
				g, err := feature.ParseWKT(wkt)
				if err != nil {
					return err
				}
				f.Geometry = g
			}

			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			tree, err := r.Insert(repo.FeatureInput{Name: args[0], Feature: f, CRS: crs})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %s (working tree %s)\n", args[0], tree.Short())
			return nil
		},
	}

	cmd.Flags().StringVar(&wkt, "wkt", "", "geometry as well-known text (POINT, LINESTRING or POLYGON)")
	cmd.Flags().StringVar(&crs, "crs", "", "coordinate reference system, e.g. EPSG:4326")
	return cmd
}
