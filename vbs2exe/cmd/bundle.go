package cmd

import (
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/builder"
	"vbs2exe-tools/go/pkg/bundle"
	"vbs2exe-tools/go/pkg/logbowl"
	"vbs2exe-tools/go/pkg/pipeline"
)

func newBundleCmd(a *app) *cobra.Command {
	var (
		outPath    string
		outputName string
		attach     []string
		signKey    string
	)
	bundleCmd := &cobra.Command{
		Use:   "bundle <script>",
		Short: "Packs a script and its wrapper source into a tar.zst for building elsewhere.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := args[0]
			if info, err := os.Stat(scriptPath); err != nil || info.IsDir() {
				return &pipeline.InputError{Field: "script", Message: fmt.Sprintf("%s is not a readable file", scriptPath)}
			}
			if outputName == "" {
				outputName = defaultOutputName(scriptPath)
			}
			if outPath == "" {
				outPath = outputName + ".tar.zst"
			}

			sourcePath, err := a.newEmbedder().Embed(scriptPath)
			if err != nil {
				return err
			}
			scriptName := filepath.Base(scriptPath)
			wrapperName := filepath.Base(sourcePath)
			files := []bundle.File{
				{Name: scriptName, Path: scriptPath},
				{Name: wrapperName, Path: sourcePath},
			}
			if len(attach) > 0 {
				extra, err := bundle.Attachments(filepath.Dir(scriptPath), attach)
				if err != nil {
					return &pipeline.InputError{Field: "attach", Message: err.Error()}
				}
				files = append(files, lo.Filter(extra, func(f bundle.File, _ int) bool {
					return f.Name != scriptName && f.Name != wrapperName
				})...)
			}

			exe := pipeline.NewRequest(scriptPath, outputName, ".").OutputPath(a.cfg.OutputExt)
			manifest := bundle.Manifest{
				ToolVersion:  Version,
				Script:       scriptName,
				Wrapper:      wrapperName,
				BuildCommand: builder.Command(a.cfg.BuilderOptions(), wrapperName, filepath.Base(exe)),
			}

			write := bundle.Write
			if signKey != "" {
				key, err := bundle.LoadPrivateKey(signKey)
				if err != nil {
					a.log.Error("signing", "load", "error", "Failed to load private key", "path", signKey, "error", err)
					return &usageError{err}
				}
				write = func(log logbowl.Logger, w io.Writer, files []bundle.File, m bundle.Manifest) error {
					return bundle.WriteSigned(log, w, files, m, key)
				}
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := write(a.log, f, files, manifest); err != nil {
				f.Close()
				os.Remove(outPath)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Bundle created at: %s\n", outPath)
			return nil
		},
	}
	bundleCmd.Flags().StringVarP(&outPath, "out", "o", "", "Bundle path (default: <name>.tar.zst).")
	bundleCmd.Flags().StringVarP(&outputName, "name", "n", "", "Executable name recorded in the build command (default: script name).")
	bundleCmd.Flags().StringVar(&signKey, "sign-key", "", "PEM RSA private key to sign the manifest with.")
	bundleCmd.Flags().StringArrayVar(&attach, "attach", nil, "Glob pattern, relative to the script folder, of extra files to pack. Repeatable.")
	return bundleCmd
}

func newUnbundleCmd(a *app) *cobra.Command {
	var (
		dest      string
		publicKey string
	)
	unbundleCmd := &cobra.Command{
		Use:   "unbundle <bundle.tar.zst>",
		Short: "Unpacks a bundle and verifies its checksums.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return &pipeline.InputError{Field: "bundle", Message: err.Error()}
			}
			defer f.Close()
			var pub *rsa.PublicKey
			if publicKey != "" {
				if pub, err = bundle.LoadPublicKey(publicKey); err != nil {
					a.log.Error("signing", "load", "error", "Could not load public key", "path", publicKey, "error", err)
					return &usageError{err}
				}
			}
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			m, err := bundle.Extract(a.log, f, dest)
			if err != nil {
				return err
			}
			if pub != nil {
				if err := bundle.VerifySignature(dest, pub); err != nil {
					a.log.Error("signing", "verify", "failure", "Bundle signature check failed", "error", err)
					return err
				}
				a.log.Info("signing", "verify", "success", "Bundle signature is valid.")
			}
			fmt.Fprintf(a.stdout, "Unpacked %d files into %s\n", len(m.Files), dest)
			if len(m.BuildCommand) > 0 {
				fmt.Fprintf(a.stdout, "Build with: %s\n", shellJoin(m.BuildCommand))
			}
			return nil
		},
	}
	unbundleCmd.Flags().StringVar(&publicKey, "public-key", "", "PEM RSA public key the bundle must be signed with.")
	unbundleCmd.Flags().StringVarP(&dest, "dest", "d", ".", "Folder to unpack into.")
	return unbundleCmd
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <bundle.tar.zst>",
		Short: "Displays the manifest of a bundle without unpacking it.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return &usageError{err}
			}
			defer f.Close()
			m, signed, err := bundle.Inspect(f)
			if err != nil {
				a.log.Error("bundle", "inspect", "error", "Could not read bundle manifest", "path", args[0], "error", err)
				return err
			}
			w := a.stdout
			fmt.Fprintf(w, "Bundle: %s\n", args[0])
			fmt.Fprintf(w, "  Format version: %d\n", m.FormatVersion)
			fmt.Fprintf(w, "  Tool version: %s\n", m.ToolVersion)
			fmt.Fprintf(w, "  Script: %s\n", m.Script)
			fmt.Fprintf(w, "  Wrapper: %s\n", m.Wrapper)
			fmt.Fprintf(w, "  Signed: %t\n", signed)
			fmt.Fprintf(w, "  Build command: %s\n", shellJoin(m.BuildCommand))
			for _, e := range m.Files {
				fmt.Fprintf(w, "  %s  %8d  %s\n", e.Sha256, e.Size, e.Name)
			}
			return nil
		},
	}
}
