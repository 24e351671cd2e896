package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SegaraRai/uabxautomate/internal/discovery"
	"github.com/SegaraRai/uabxautomate/internal/inspect"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var onlySupported bool

	cmd := &cobra.Command{
		Use:   "inspect [file|glob ...]",
		Short: "List the objects of containers and whether they can be extracted",
		Long: `List the objects of containers and whether they can be extracted.

Arguments may be files or globs ("**" is supported). Without arguments the
src and exclude patterns of the configuration are used.`,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := inspectPaths(ctx, args)
			if err != nil {
				return err
			}

			listings, failed := inspect.Files(paths, onlySupported)
			if ctx.JSONMode() {
				if err := writeJSON(cmd, listings); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				printListings(out, listings, shouldColorize(out))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be inspected", failed, len(listings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&onlySupported, "only-supported", "s", false, "Only list objects that have a decoder")
	return cmd
}

// inspectPaths expands glob arguments. Plain paths are kept as given so a
// missing file is reported on its listing instead of vanishing.
func inspectPaths(ctx *commandContext, args []string) ([]string, error) {
	if len(args) == 0 {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		return discovery.Find(cfg.Src, cfg.Exclude)
	}
	var paths []string
	for _, arg := range args {
		if !hasGlobMeta(arg) {
			paths = append(paths, arg)
			continue
		}
		matches, err := discovery.Find(arg, nil)
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func printListings(out io.Writer, listings []inspect.Listing, colorize bool) {
	for i, listing := range listings {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if listing.Error != "" {
			fmt.Fprintf(out, "%s\n  %s\n", listing.Path, paint(listing.Error, ansiRed, colorize))
			continue
		}
		title := fmt.Sprintf("%s (%s, %d objects, %d supported)", listing.Path, listing.Compression, listing.Objects, listing.Supported)
		if len(listing.Entries) == 0 {
			fmt.Fprintln(out, title)
			fmt.Fprintln(out, "  no objects to list")
			continue
		}
		rows := make([][]string, 0, len(listing.Entries))
		for _, entry := range listing.Entries {
			rows = append(rows, []string{
				strconv.Itoa(entry.Index),
				strconv.FormatInt(entry.PathID, 10),
				entry.Type,
				entry.Container,
				entry.Name,
				strconv.Itoa(entry.Size),
				yesNo(entry.Supported),
			})
		}
		fmt.Fprintln(out, renderTable(title,
			[]string{"#", "Path ID", "Type", "Container", "Name", "Bytes", "Supported"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
}
