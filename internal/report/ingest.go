package report

import (
	"fmt"
	"text/tabwriter"

	"civicdata/internal/ckan"
	"civicdata/internal/shapefile"
)

// Fetched summarizes downloaded packages.
func (r *Renderer) Fetched(results []*ckan.FetchResult) error {
	if r.format != Text {
		return r.encode(struct {
			Packages []*ckan.FetchResult `json:"packages" yaml:"packages"`
		}{nonNil(results)})
	}
	return r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "package\tfiles\textracted\tdir")
		for _, res := range results {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", res.Package, len(res.Downloaded), len(res.Extracted), res.Dir)
		}
	})
}

// Loaded summarizes shapefile layers written to the store.
func (r *Renderer) Loaded(layers []shapefile.Layer) error {
	if r.format != Text {
		return r.encode(struct {
			Layers []shapefile.Layer `json:"layers" yaml:"layers"`
		}{nonNil(layers)})
	}
	if len(layers) == 0 {
		_, err := fmt.Fprintln(r.w, "no layers loaded")
		return err
	}
	return r.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "table\trows\tsrid\tgeometry")
		for _, l := range layers {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", l.Table, l.Rows, l.SRID, l.GeometryType)
		}
	})
}

// Written confirms a file export.
func (r *Renderer) Written(path string, rows int64) error {
	if r.format != Text {
		return r.encode(struct {
			Path string `json:"path" yaml:"path"`
			Rows int64  `json:"rows" yaml:"rows"`
		}{path, rows})
	}
	_, err := fmt.Fprintf(r.w, "wrote %d rows to %s\n", rows, r.good(path))
	return err
}
