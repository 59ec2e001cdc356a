package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/vivek-tiwari-vt/agmem/pkg/trust"
	"github.com/spf13/cobra"
)

func openTrustStore(r *repo.Repo) (*trust.Store, string, error) {
	path := filepath.Join(r.GotDir, "trust", "trust.json")
	s, err := trust.Open(path)
	return s, path, err
}

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage trusted signing keys for remote commits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			store, _, err := openTrustStore(r)
			if err != nil {
				return err
			}
			entries := store.Entries()
			sort.Slice(entries, func(i, j int) bool { return entries[i].KeyID < entries[j].KeyID })
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.KeyID, e.Level)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <public-key-file> <level>",
		Short: "Register a signing key under full, conditional, or untrusted trust",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			pub, err := loadTrustPublicKeyFile(args[0])
			if err != nil {
				return err
			}
			store, _, err := openTrustStore(r)
			if err != nil {
				return err
			}
			keyID, err := store.Trust(pub, trust.Level(args[1]))
			if err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trusted %s as %s\n", keyID, args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Remove a key from the trust store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			store, _, err := openTrustStore(r)
			if err != nil {
				return err
			}
			store.Revoke(args[0])
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func loadTrustPublicKeyFile(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("load public key: %s has wrong length %d, want %d", path, len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}
