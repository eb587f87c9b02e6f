package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/resource"
)

func newResourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource",
		Short: "Work with persistent resources",
	}

	resolve := &cobra.Command{
		Use:   "resolve <sha1> <filename>",
		Short: "Make a resource available locally, fetching it from the origin if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(); err != nil {
				return err
			}
			proxy, _, err := a.resources()
			if err != nil {
				return err
			}
			f, err := proxy.Resolve(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			fmt.Fprintln(cmd.OutOrStdout(), f.Name())
			return nil
		},
	}

	uri := &cobra.Command{
		Use:   "uri <sha1> <filename>",
		Short: "Print the public URI of a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(); err != nil {
				return err
			}
			if err := resource.ValidateHash(args[0]); err != nil {
				return err
			}
			_, target, err := a.resources()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), target.PublicURI(args[0], args[1]))
			return nil
		},
	}

	publish := &cobra.Command{
		Use:   "publish <sha1:filename>...",
		Short: "Publish resources present in local storage, skipping missing ones",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(); err != nil {
				return err
			}
			refs := make([]resource.Ref, 0, len(args))
			for _, arg := range args {
				hash, name, ok := strings.Cut(arg, ":")
				if !ok {
					return fmt.Errorf("expected <sha1>:<filename>, got %q", arg)
				}
				if err := resource.ValidateHash(hash); err != nil {
					return err
				}
				refs = append(refs, resource.Ref{Hash: hash, Filename: name})
			}
			_, target, err := a.resources()
			if err != nil {
				return err
			}
			n, err := target.PublishAll(refs)
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d of %d resources\n", n, len(refs))
			return err
		},
	}

	cmd.AddCommand(resolve, uri, publish)
	return cmd
}
