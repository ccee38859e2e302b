package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/logbowl"
	"vbs2exe-tools/go/pkg/pipeline"
)

// batchError reports how many scripts of a batch failed.
type batchError struct {
	failed, total int
}

func (e *batchError) Error() string {
	return fmt.Sprintf("%d of %d scripts failed to convert", e.failed, e.total)
}

func matchAny(log logbowl.Logger, patterns []string, rel string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, errors.Wrapf(err, "pattern %q", pattern)
		}
		if match {
			log.Debug("batch", "select", "progress", "Pattern matched", "path", rel, "pattern", pattern)
			return true, nil
		}
	}
	return false, nil
}

// selectScripts walks root and returns the files matching an include pattern
// and no exclude pattern, as paths joined onto root, in lexical order.
// Patterns are matched against slash-separated paths relative to root; an
// excluded directory is not descended into.
func selectScripts(log logbowl.Logger, root string, include, exclude []string) ([]string, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &pipeline.InputError{Field: "pattern", Message: fmt.Sprintf("%q is not a valid pattern", p)}
		}
	}
	var scripts []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		excluded, err := matchAny(log, exclude, rel)
		if err != nil {
			return err
		}
		if excluded {
			log.Debug("batch", "select", "skip", "Excluding path based on pattern", "path", rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		included, err := matchAny(log, include, rel)
		if err != nil {
			return err
		}
		if included {
			scripts = append(scripts, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(scripts)
	return scripts, nil
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		include []string
		exclude []string
		outDir  string
	)
	batchCmd := &cobra.Command{
		Use:   "batch <root> --out-dir <folder>",
		Short: "Converts every matching script under a directory tree, one at a time.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			if outDir == "" {
				return &pipeline.InputError{Field: "output folder", Message: "--out-dir is required"}
			}
			scripts, err := selectScripts(a.log, root, include, exclude)
			if err != nil {
				return err
			}
			if len(scripts) == 0 {
				a.log.Warn("batch", "select", "skip", "No scripts matched", "root", root, "include", include)
				return nil
			}
			a.log.Info("batch", "start", "progress", "Converting scripts", "count", len(scripts))

			// Scripts in one directory share the wrapper path, so this stays sequential.
			p := a.newPipeline()
			claimed := map[string]string{}
			failed := 0
			for _, script := range scripts {
				req := pipeline.NewRequest(script, defaultOutputName(script), outDir)
				out := req.OutputPath(a.cfg.OutputExt)
				if prev, ok := claimed[out]; ok {
					failed++
					fmt.Fprintf(a.stdout, "FAIL %s: output %s already produced from %s\n", script, out, prev)
					continue
				}
				claimed[out] = script

				resp, err := p.Run(cmd.Context(), req)
				if err == nil {
					err = resp.Err()
				}
				var inErr *pipeline.InputError
				if errors.As(err, &inErr) && inErr.Field == "output folder" {
					return err
				}
				if err != nil {
					failed++
					fmt.Fprintf(a.stdout, "FAIL %s: %v\n", script, err)
					continue
				}
				fmt.Fprintf(a.stdout, "OK   %s -> %s\n", script, resp.OutputPath)
			}

			a.log.Info("batch", "finish", "info", "Batch complete", "total", len(scripts), "failed", failed)
			if failed > 0 {
				return &batchError{failed: failed, total: len(scripts)}
			}
			return nil
		},
	}
	batchCmd.Flags().StringArrayVar(&include, "include", []string{"**/*.vbs"}, "Glob pattern selecting scripts, repeatable.")
	batchCmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Glob pattern to skip, repeatable.")
	batchCmd.Flags().StringVarP(&outDir, "out-dir", "d", "", "Existing folder receiving every executable.")
	return batchCmd
}
