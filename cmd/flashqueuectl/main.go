// Command flashqueuectl drives the flash queue engine against a real
// memory-mapped backing file, for smoke-testing and operator poking
// without writing Go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jphickey/bplib"
	"github.com/jphickey/bplib/sim"
)

var (
	numBlocks     int32
	pagesPerBlock int32
	pageSize      int32
)

func main() {
	root := &cobra.Command{
		Use:   "flashqueuectl",
		Short: "Drive the flash-backed object queue against a file-backed simulator",
	}
	root.PersistentFlags().Int32Var(&numBlocks, "blocks", 256, "number of blocks in the simulated device")
	root.PersistentFlags().Int32Var(&pagesPerBlock, "pages-per-block", 128, "pages per block")
	root.PersistentFlags().Int32Var(&pageSize, "page-size", 512, "bytes per page")

	root.AddCommand(formatCmd(), statsCmd(), enqueueCmd(), dequeueCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openQueue(path string, mode bplib.InitMode) (*bplib.Queue, *sim.MappedFile, int, error) {
	driver, err := sim.OpenMappedFile(path, numBlocks, pagesPerBlock, pageSize)
	if err != nil {
		return nil, nil, 0, err
	}

	logger, _ := zap.NewProduction()
	q, reclaimed, err := bplib.Init(bplib.Config{
		Driver: driver,
		Logger: bplib.NewZapLogger(logger),
	}, mode)
	if err != nil {
		driver.Close()
		return nil, nil, 0, err
	}
	return q, driver, reclaimed, nil
}

func formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <file>",
		Short: "Format (reclaim every block of) a backing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, driver, reclaimed, err := openQueue(args[0], bplib.ModeFormat)
			if err != nil {
				return err
			}
			defer driver.Close()
			fmt.Printf("reclaimed %d blocks\n", reclaimed)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print free/used/bad/error counts for a backing file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, driver, _, err := openQueue(args[0], bplib.ModeRecover)
			if err != nil {
				return err
			}
			defer driver.Close()

			s := q.Stats(true, false)
			fmt.Printf("free=%d used=%d bad=%d errors=%d\n", s.FreeBlocks, s.UsedBlocks, s.BadBlocks, s.ErrorCount)
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Enqueue one object into store 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, driver, _, err := openQueue(args[0], bplib.ModeRecover)
			if err != nil {
				return err
			}
			defer driver.Close()

			h := q.Create(nil)
			if h == bplib.InvalidHandle {
				return fmt.Errorf("could not create store")
			}
			sid, err := q.Enqueue(h, []byte(data), nil, 0)
			if err != nil {
				return err
			}
			fmt.Printf("enqueued sid=%d\n", sid)
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "payload to enqueue")
	return cmd
}

func dequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dequeue <file>",
		Short: "Dequeue one object from store 0",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, driver, _, err := openQueue(args[0], bplib.ModeRecover)
			if err != nil {
				return err
			}
			defer driver.Close()

			h := q.Create(nil)
			if h == bplib.InvalidHandle {
				return fmt.Errorf("could not create store")
			}
			obj, err := q.Dequeue(h, 0)
			if err != nil {
				return err
			}
			fmt.Printf("dequeued sid=%d size=%d payload=%q\n", obj.SID, obj.Size, obj.Payload)
			return nil
		},
	}
}
