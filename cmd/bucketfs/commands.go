package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
	"github.com/s3fs-fuse/bucketfs/internal/fuse"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the file browser API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				a.log.WithFields(logrus.Fields{
					"version": version,
					"backend": a.cfg.Backend.Type,
				}).Info("Starting bucketfs server")

				srv := server.New(server.Config{
					Listen:      a.cfg.Server.Listen,
					ServiceURLs: a.cfg.ServiceURLs(),
				}, a.fs, a.provider, a.metrics, a.log)
				return srv.Start(ctx)
			})
		},
	}
	cmd.Flags().StringP("listen", "l", "127.0.0.1:8888", "Listen address")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	return cmd
}

func newMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <container> <mountpoint>",
		Short: "Mount a container with FUSE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				perms := fuse.DefaultPermissions()
				if a.cfg.Mount.Uid >= 0 {
					perms.Uid = uint32(a.cfg.Mount.Uid)
				}
				if a.cfg.Mount.Gid >= 0 {
					perms.Gid = uint32(a.cfg.Mount.Gid)
				}
				perms.FileMode = os.FileMode(a.cfg.Mount.FileMode)
				perms.DirMode = os.FileMode(a.cfg.Mount.DirMode)

				return fuse.Mount(ctx, args[1], a.fs, fuse.Options{
					Container:   args[0],
					Permissions: perms,
					ReadOnly:    a.cfg.Mount.ReadOnly,
				}, a.log)
			})
		},
	}
	cmd.Flags().Int("uid", -1, "Owner uid of every file (default current user)")
	cmd.Flags().Int("gid", -1, "Owner gid of every file (default current group)")
	cmd.Flags().Bool("read-only", false, "Mount read-only")
	return cmd
}

func newBucketsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets [prefix]",
		Short: "List containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return runApp(cmd, func(ctx context.Context, a *app) error {
				containers, err := a.fs.ListContainers(ctx, prefix)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, c := range containers {
					fmt.Fprintf(w, "%s\t%s\n", c.Name, formatTime(c.Created))
				}
				return w.Flush()
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.fs.List(ctx, args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
				for _, e := range entries {
					name := e.Name
					if e.IsDir() {
						name += "/"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t\n", e.Size, formatTime(e.LastModified), name)
				}
				return w.Flush()
			})
		},
	}
}

func newStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the attributes of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.fs.Stat(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
}

func newCatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("format")
			format, err := objectstore.ParseFormat(name)
			if err != nil {
				return err
			}
			return runApp(cmd, func(ctx context.Context, a *app) error {
				content, err := a.fs.Read(ctx, args[0], format)
				if err != nil {
					return err
				}
				if format == objectstore.FormatJSON {
					return printJSON(cmd.OutOrStdout(), content.Document)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), content.Value())
				return err
			})
		},
	}
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, base64)")
	return cmd
}

func newPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <path> [file]",
		Short: "Upload a local file, or standard input, to path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if len(args) == 2 && args[1] != "-" {
				body, err = os.ReadFile(args[1])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			return runApp(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.fs.Write(ctx, args[0], body)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d bytes %s\n", entry.Path(), entry.Size, entry.ContentType)
				return nil
			})
		},
	}
}

func newMkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				entry, err := a.fs.Mkdir(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), entry.Path()+"/")
				return nil
			})
		},
	}
}

func newRemoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or an empty folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			return runApp(cmd, func(ctx context.Context, a *app) error {
				var err error
				if recursive {
					err = a.fs.RemoveAll(ctx, args[0])
				} else {
					err = a.fs.Remove(ctx, args[0])
				}
				return withResidue(cmd, err)
			})
		},
	}
	cmd.Flags().BoolP("recursive", "r", false, "Delete a folder and everything below it")
	return cmd
}

func newMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, func(ctx context.Context, a *app) error {
				return withResidue(cmd, a.fs.Rename(ctx, args[0], args[1]))
			})
		},
	}
}

// withResidue prints the paths a partial failure left behind.
func withResidue(cmd *cobra.Command, err error) error {
	for _, p := range fserr.ResidueOf(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "left behind: %s\n", p)
	}
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
