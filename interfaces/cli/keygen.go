package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

// newKeygenCmd creates the keygen command.
func (a *App) newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen <name>",
		Short: "Generate a signing keypair",
		Long: `Keygen generates an Ed25519 keypair for signing metadata records.
The name identifies the key in signatures (e.g. "cache.example.org-1").
The secret key is printed first, the public key second, both in
name:base64 form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			public, private, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}

			fmt.Fprintf(a.stdout, "%s:%s\n", name, base64.StdEncoding.EncodeToString(private))
			fmt.Fprintf(a.stdout, "%s:%s\n", name, base64.StdEncoding.EncodeToString(public))

			return nil
		},
	}
}
