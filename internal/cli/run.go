package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"platesolver/internal/fits"
	"platesolver/internal/metadb"
	"platesolver/internal/pipeline"
	"platesolver/internal/queue"
	"platesolver/internal/server"
	"platesolver/internal/solver"
	"platesolver/internal/storage"
)

func newRunCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume jobs from the Pub/Sub subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			store, err := storage.NewGCS(ctx, root.cfg.Bucket)
			if err != nil {
				return err
			}
			src, err := queue.NewPubSub(ctx, root.cfg.Project, root.cfg.Subscription)
			if err != nil {
				return err
			}

			root.log.Info("subscriber starting",
				"project", root.cfg.Project,
				"subscription", root.cfg.Subscription,
				"bucket", root.cfg.Bucket,
			)
			return root.serve(ctx, store, src)
		},
	}
}

func newWatchCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <directory>",
		Short: "Process compressed FITS files appearing under a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			store, err := storage.NewLocal(args[0])
			if err != nil {
				return err
			}
			src := queue.NewWatch(args[0], root.log)
			return root.serve(ctx, store, src)
		},
	}
}

// serve builds the pipeline and worker around the given store and
// source, optionally starts the status server, and blocks consuming
// jobs.
func (root *Root) serve(ctx context.Context, store storage.ObjectStore, src queue.Source) error {
	pipe := pipeline.New(
		store,
		solver.Astrometry{},
		fits.Reader{},
		root.log,
		root.cfg.Scratch.Root,
		root.cfg.Stamps.Size,
		solver.SolveOptions{
			Timeout:    time.Duration(root.cfg.Solver.Timeout),
			Overwrite:  true,
			Downsample: root.cfg.Solver.Downsample,
			ExtraArgs:  root.cfg.Solver.ExtraArgs,
		},
	)
	worker := pipeline.NewWorker(pipe, root.log, root.cfg.Databases.CatalogPath, root.cfg.Databases.MetadataPath)

	if root.cfg.Server.Enabled {
		history, err := metadb.Open(root.cfg.Databases.MetadataPath, root.log)
		if err != nil {
			return fmt.Errorf("status server metadata: %w", err)
		}
		defer history.Close()
		go func() {
			if err := server.Serve(ctx, root.cfg.Server.Addr, worker, history, root.log); err != nil {
				root.log.Error("status server failed", "error", err)
			}
		}()
	}

	err := worker.Run(ctx, src)
	if err == context.Canceled {
		return nil
	}
	return err
}

func newSolveCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "solve <file.fits[.fz]>",
		Short: "Plate-solve a single local file and report the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			path := args[0]
			tool := solver.Astrometry{}

			if filepath.Ext(path) == ".fz" {
				unpacked, err := tool.Unpack(ctx, path)
				if err != nil {
					return err
				}
				defer os.Remove(unpacked)
				path = unpacked
			}

			opts := solver.SolveOptions{
				Timeout:    time.Duration(root.cfg.Solver.Timeout),
				Overwrite:  true,
				Downsample: root.cfg.Solver.Downsample,
				ExtraArgs:  root.cfg.Solver.ExtraArgs,
			}
			sol, err := tool.Solve(ctx, path, opts)
			if err != nil {
				fmt.Printf("unsolved: %v\n", err)
				return nil
			}
			fmt.Printf("solved in %s\n", sol.Duration.Round(time.Millisecond))

			hdr, err := fits.Reader{}.ReadHeader(path)
			if err == nil && hdr.WCS != nil {
				fmt.Printf("center ra=%.5f dec=%.5f scale=%.2f arcsec/px\n",
					hdr.WCS.CRVal1, hdr.WCS.CRVal2, hdr.WCS.PixelScale()*3600)
			}
			return nil
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
