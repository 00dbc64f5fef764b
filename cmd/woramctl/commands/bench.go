package commands

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/woram/pkg/config"
)

var (
	benchOps  int
	benchSeed uint64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic random-write workload against the configured stack",
	Long: `bench assembles the configured stack, performs a burst of random block
writes followed by a full read-back verification, and reports the
achieved throughput. The RNG is seeded, so two runs against the same
configuration issue the same logical workload.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		mem, err := config.Build(cfg)
		if err != nil {
			return err
		}

		rng := rand.New(rand.NewPCG(benchSeed, benchSeed^0x9e3779b97f4a7c15))
		n := mem.Size()
		bs := mem.Blocksize()
		want := make(map[uint64]byte, n)

		buf := make([]byte, bs)
		start := time.Now()
		for i := 0; i < benchOps; i++ {
			index := rng.Uint64N(n)
			fill := byte(rng.Uint64N(256))
			for j := range buf {
				buf[j] = fill
			}
			if err := mem.Store(index, buf); err != nil {
				return fmt.Errorf("store %d failed after %d ops: %w", index, i, err)
			}
			want[index] = fill
		}
		writeDur := time.Since(start)

		start = time.Now()
		for index, fill := range want {
			if err := mem.Load(index, buf); err != nil {
				return fmt.Errorf("load %d failed: %w", index, err)
			}
			for j := range buf {
				if buf[j] != fill {
					return fmt.Errorf("verification failed at block %d byte %d: got %#x, want %#x", index, j, buf[j], fill)
				}
			}
		}
		readDur := time.Since(start)

		if err := mem.Flush(); err != nil {
			return fmt.Errorf("flush failed: %w", err)
		}

		out := cmd.OutOrStdout()
		mbWritten := float64(benchOps*bs) / (1 << 20)
		fmt.Fprintf(out, "wrote %d blocks (%.2f MiB) in %v (%.2f MiB/s)\n",
			benchOps, mbWritten, writeDur.Round(time.Millisecond), mbWritten/writeDur.Seconds())
		fmt.Fprintf(out, "verified %d distinct blocks in %v\n", len(want), readDur.Round(time.Millisecond))
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchOps, "ops", 1000, "number of block writes to issue")
	benchCmd.Flags().Uint64Var(&benchSeed, "seed", 1, "workload RNG seed")
}
