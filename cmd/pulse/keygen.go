package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pulse/internal/errors"
	"github.com/vango-dev/pulse/pkg/encryption"
)

func keygenCmd() *cobra.Command {
	var (
		bits       int
		passphrase string
		salt       string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a channel cipher key",
		Long: `Generate a base64 AES key for encrypted channels.

The key goes in the channels section of pulse.json:

  "channels": {"secret-room": {"cipherKey": "<key>"}}

With --passphrase, the key is derived from the passphrase and salt
instead of generated at random.

Examples:
  pulse keygen
  pulse keygen --bits=128
  pulse keygen --passphrase="correct horse" --salt=room-salt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				key []byte
				err error
			)
			if passphrase != "" {
				if salt == "" {
					return errors.Newf(errors.CodeCLIUsage, "--salt is required with --passphrase")
				}
				key, err = encryption.DeriveKey(passphrase, []byte(salt), bits)
			} else {
				key, err = encryption.GenerateKey(bits)
			}
			if err != nil {
				return errors.Wrap(errors.CodeCLIUsage, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", encryption.DefaultKeyBits, "Key size in bits (128 or 256)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Derive the key from a passphrase")
	cmd.Flags().StringVar(&salt, "salt", "", "Salt for --passphrase (at least 8 bytes)")

	return cmd
}
