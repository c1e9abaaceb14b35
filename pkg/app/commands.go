package app

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// RouteList writes the route table as aligned columns.
func (a *Application) RouteList(out io.Writer) error {
	routes := a.buildRouter().Routes()
	if len(routes) == 0 {
		_, err := fmt.Fprintln(out, "No routes registered.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tNAME")
	fmt.Fprintln(w, "------\t----\t----")
	for _, ri := range routes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
	}
	return w.Flush()
}
