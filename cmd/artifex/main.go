// Command artifex is the artifact-storage engine of a
// computational-experiment manager: content hashing with a
// staleness-aware sidecar cache, compute-section signatures, and
// concurrent archive pack/unpack. Dependency-graph orchestration and
// experiment configuration live in the surrounding tool; this binary
// only exposes the storage engine.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mwhitt/artifex/internal/archive"
	"github.com/mwhitt/artifex/internal/cache"
	"github.com/mwhitt/artifex/internal/config"
	"github.com/mwhitt/artifex/internal/hashing"
	"github.com/mwhitt/artifex/internal/ledger"
	"github.com/mwhitt/artifex/internal/pattern"
	"github.com/mwhitt/artifex/internal/stats"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		verbose     bool
		quiet       bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "artifex",
		Short:         "Content hashing and archiving for experiment artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			} else if !quiet {
				level = slog.LevelInfo
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "artifex %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "warnings and errors only")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")

	rootCmd.AddCommand(newHashCmd(), newPackCmd(), newUnpackCmd(), newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "artifex: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the optional config file, downgrading failures to a
// warning: a broken config must not block hashing.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
		return config.Config{}
	}
	return cfg
}

func openLedger(cfg config.Config, disabled bool) *ledger.Ledger {
	if disabled {
		return nil
	}
	if cfg.Ledger.Enabled != nil && !*cfg.Ledger.Enabled {
		return nil
	}
	path := ledger.DefaultPath()
	if cfg.Ledger.Path != nil {
		path = *cfg.Ledger.Path
	}
	l, err := ledger.Open(path)
	if err != nil {
		slog.Warn("hash ledger unavailable", "path", path, "error", err)
		return nil
	}
	return l
}

func newHashCmd() *cobra.Command {
	var (
		patternMode bool
		noLedger    bool
		chunkSize   int
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "hash <path>...",
		Short: "Compute or reuse cached artifact hashes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if !cmd.Flags().Changed("chunk-size") && cfg.Hash.ChunkSize != nil {
				chunkSize = *cfg.Hash.ChunkSize
			}
			if !cmd.Flags().Changed("workers") && cfg.Hash.Workers != nil {
				workers = *cfg.Hash.Workers
			}

			led := openLedger(cfg, noLedger)
			if led != nil {
				defer led.Close()
			}

			col := stats.NewCollector()
			c := cache.New(cache.Config{
				ChunkSize: chunkSize,
				Workers:   workers,
				Stats:     col,
				Ledger:    led,
				Log:       slog.Default(),
			})

			for _, arg := range args {
				if patternMode {
					results, err := c.FastHashPattern(arg, pattern.Glob{})
					if err != nil {
						return err
					}
					for _, r := range results {
						printHash(r.Hash, r.Present, r.Path)
					}
					continue
				}

				h, ok, err := c.FastHash(arg)
				if err != nil {
					return err
				}
				printHash(h, ok, arg)
			}

			s := col.Snapshot()
			slog.Info("hashing finished",
				"hashed", s.FilesHashed, "cache_hits", s.CacheHits,
				"cache_misses", s.CacheMisses, "elapsed", s.Elapsed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&patternMode, "pattern", "p", false, "treat arguments as glob patterns (vector artifacts)")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "skip recording results in the hash ledger")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", hashing.DefaultChunkSize, "hashing read window in bytes")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file reads while hashing trees (0 = auto)")
	return cmd
}

func printHash(hash string, present bool, path string) {
	if !present {
		fmt.Fprintf(os.Stdout, "%-64s  %s\n", "absent", path)
		return
	}
	fmt.Fprintf(os.Stdout, "%s  %s\n", hash, path)
}

func newPackCmd() *cobra.Command {
	var (
		methodName string
		readers    int
	)

	cmd := &cobra.Command{
		Use:   "pack <source> <archive>",
		Short: "Pack a file or directory tree into one archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, out := args[0], args[1]

			cfg := loadConfig()
			if !cmd.Flags().Changed("method") && cfg.Archive.Method != nil {
				methodName = *cfg.Archive.Method
			}
			if !cmd.Flags().Changed("readers") && cfg.Archive.Readers != nil {
				readers = *cfg.Archive.Readers
			}
			method, err := archive.ParseMethod(methodName)
			if err != nil {
				return err
			}

			info, err := os.Stat(src)
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create archive: %w", err)
			}
			defer f.Close()

			col := stats.NewCollector()
			pcfg := archive.PackerConfig{
				ReaderSlots: readers,
				Method:      method,
				Stats:       col,
				Log:         slog.Default(),
				OnComplete: func(path string) {
					slog.Debug("archived", "path", path)
				},
			}

			if info.IsDir() {
				files, err := collectFiles(src)
				if err != nil {
					return err
				}
				err = archive.Pack(f, src, files, pcfg)
				if err != nil {
					return err
				}
			} else {
				if err := archive.PackFile(f, src, pcfg); err != nil {
					return err
				}
			}

			if err := f.Close(); err != nil {
				return fmt.Errorf("close archive: %w", err)
			}

			s := col.Snapshot()
			slog.Info("archive written", "path", out,
				"entries", s.EntriesWritten, "bytes_in", s.BytesLoaded, "elapsed", s.Elapsed)
			return nil
		},
	}

	cmd.Flags().StringVar(&methodName, "method", "deflate", "entry compression: deflate, zstd, or store")
	cmd.Flags().IntVar(&readers, "readers", archive.DefaultReaderSlots, "concurrent file readers")
	return cmd
}

// collectFiles walks root and returns every regular file, skipping
// sidecars and descriptors: archives carry content, not cache state.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if hashing.IsMetadata(d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func newUnpackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack <archive> <target>",
		Short: "Restore an archive to a file or directory tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			src, target := args[0], args[1]

			single, err := archive.IsSingleFile(src)
			if err != nil {
				return err
			}

			col := stats.NewCollector()
			ucfg := archive.UnpackConfig{Stats: col, Log: slog.Default()}

			if single {
				err = archive.ExtractFile(src, target, ucfg)
			} else {
				err = archive.ExtractTree(src, target, ucfg)
			}
			if err != nil {
				return err
			}

			s := col.Snapshot()
			slog.Info("archive restored", "target", target,
				"files", s.FilesExtracted, "elapsed", s.Elapsed)
			return nil
		},
	}
	return cmd
}

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recently recorded artifact hashes",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg := loadConfig()
			led := openLedger(cfg, false)
			if led == nil {
				return fmt.Errorf("hash ledger unavailable")
			}
			defer led.Close()

			entries, err := led.Recent(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stdout, "no recorded hashes")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(os.Stdout, "%s  %10d  %s  %s\n",
					e.Hash, e.Size, e.RecordedAt.Format("2006-01-02 15:04:05"), e.Path)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show")
	return cmd
}
