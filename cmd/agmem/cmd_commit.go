package main

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/crypto"
	"github.com/vivek-tiwari-vt/agmem/pkg/object"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string
	var sign bool

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record changes to the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if author == "" {
				author = os.Getenv("USER")
				if author == "" {
					author = "unknown"
				}
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}

			var h object.Hash
			if sign || cfg.Signing.Enabled {
				signer, err := commitSignerFromKeys(filepath.Join(r.GotDir, "keys"))
				if err != nil {
					return err
				}
				h, err = r.CommitWithSigner(message, author, signer)
				if err != nil {
					return err
				}
			} else {
				h, err = r.Commit(message, author)
				if err != nil {
					return err
				}
			}

			// Determine current branch name for output.
			branch := "HEAD"
			head, err := r.Head()
			if err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}

			// Short hash: first 8 characters.
			short := string(h)
			if len(short) > 8 {
				short = short[:8]
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, short, message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: $USER)")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit's Merkle root with the repository's Ed25519 key")

	return cmd
}

// commitSignerFromKeys loads the Ed25519 keypair under keysDir, generating
// one on first use, and returns a repo.CommitSigner bound to it.
func commitSignerFromKeys(keysDir string) (repo.CommitSigner, error) {
	priv, err := crypto.LoadPrivateKey(keysDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		kp, genErr := crypto.GenerateKeyPair()
		if genErr != nil {
			return nil, fmt.Errorf("generate signing key: %w", genErr)
		}
		if saveErr := crypto.SaveKeyPair(keysDir, kp); saveErr != nil {
			return nil, fmt.Errorf("save signing key: %w", saveErr)
		}
		priv = kp.Private
	}
	keyID := crypto.Fingerprint(priv.Public().(ed25519.PublicKey))
	return func(payload []byte) (string, string, error) {
		return crypto.SignMerkleRoot(priv, string(payload)), keyID, nil
	}, nil
}
