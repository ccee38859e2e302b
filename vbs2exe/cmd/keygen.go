package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"vbs2exe-tools/go/pkg/bundle"
)

func newKeygenCmd(a *app) *cobra.Command {
	var (
		outDir         string
		privateKeyFile string
		publicKeyFile  string
		bits           int
	)
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generates an RSA key pair for signing bundles.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			privOutPath := filepath.Join(outDir, privateKeyFile)
			pubOutPath := filepath.Join(outDir, publicKeyFile)
			for _, p := range []string{privOutPath, pubOutPath} {
				if info, err := os.Stat(p); err == nil {
					a.log.Warn("keymgmt", "generate", "skip", "Key already exists, skipping generation.", "path", p, "created", info.ModTime().Format("2006-01-02 15:04:05"))
					return &usageError{errors.Errorf("%s already exists", p)}
				}
			}

			a.log.Info("keymgmt", "generate", "progress", "Generating new RSA key pair...", "bits", bits)
			privPEM, pubPEM, err := bundle.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			if err := os.WriteFile(privOutPath, privPEM, 0600); err != nil {
				a.log.Error("keymgmt", "write", "error", "Failed to write private key", "path", privOutPath, "error", err)
				return err
			}
			a.log.Info("keymgmt", "write", "success", "Private key saved", "path", privOutPath)
			if err := os.WriteFile(pubOutPath, pubPEM, 0644); err != nil {
				a.log.Error("keymgmt", "write", "error", "Failed to write public key", "path", pubOutPath, "error", err)
				return err
			}
			a.log.Info("keymgmt", "write", "success", "Public key saved", "path", pubOutPath)
			return nil
		},
	}
	keygenCmd.Flags().StringVarP(&outDir, "out-dir", "d", ".", "Directory to save the key pair.")
	keygenCmd.Flags().StringVar(&privateKeyFile, "private-key-file", "vbs2exe-private.key", "Filename for the private key.")
	keygenCmd.Flags().StringVar(&publicKeyFile, "public-key-file", "vbs2exe-public.key", "Filename for the public key.")
	keygenCmd.Flags().IntVar(&bits, "bits", bundle.DefaultKeyBits, "RSA key size.")
	return keygenCmd
}
