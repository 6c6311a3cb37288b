// Copyright 2026 The Biscuit Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	biscuit "github.com/eclipse-biscuit/biscuit-go"
	"github.com/eclipse-biscuit/biscuit-go/crypto"
)

func parseAlgorithm(name string) (crypto.Algorithm, error) {
	switch name {
	case "ed25519":
		return crypto.Ed25519, nil
	case "secp256r1":
		return crypto.Secp256r1, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q (ed25519 or secp256r1)", name)
	}
}

// addRootKeyFlags registers the flags shared by the commands that verify a
// signature chain.
func addRootKeyFlags(flags *pflag.FlagSet, rootKeyHex, algorithm *string) {
	flags.StringVar(rootKeyHex, "root-key", "", "hex root public key used to verify the signature chain")
	flags.StringVar(algorithm, "algorithm", "ed25519", "root key algorithm")
}

func keygenCommand() *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a root key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			kp, err := crypto.Generate(alg, nil)
			if err != nil {
				return err
			}
			defer kp.Close()
			fmt.Printf("private key: %s/%s\n", alg, hex.EncodeToString(kp.SecretBytes()))
			fmt.Printf("public key:  %s\n", kp.Public())
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "ed25519", "signature algorithm (ed25519 or secp256r1)")
	return cmd
}

// readToken loads a token from a file path or, with "-", from stdin. Both
// the raw binary format and the base64 envelope are accepted.
func readToken(path string) (*biscuit.UnverifiedBiscuit, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if token, err := biscuit.UnverifiedFromBytes(data); err == nil {
		return token, nil
	}
	return biscuit.UnverifiedFromBase64(strings.TrimSpace(string(data)))
}

func inspectCommand() *cobra.Command {
	var rootKeyHex string
	var algorithm string
	cmd := &cobra.Command{
		Use:   "inspect <token-file>",
		Short: "Print the blocks of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(args[0])
			if err != nil {
				return err
			}

			if rootKeyHex != "" {
				alg, err := parseAlgorithm(algorithm)
				if err != nil {
					return err
				}
				rootKey, err := crypto.PublicKeyFromHex(alg, rootKeyHex)
				if err != nil {
					return err
				}
				verified, err := token.Verify(biscuit.RootKey(rootKey))
				if err != nil {
					return fmt.Errorf("signature verification failed: %w", err)
				}
				fmt.Println("signatures: valid")
				printRevocationIDs(verified.RevocationIdentifiers())
			} else {
				fmt.Println("signatures: not checked (pass --root-key to verify)")
			}

			externalKeys := token.ExternalPublicKeys()
			contexts := token.Context()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"block", "version", "external key", "context"})
			for i := 0; i < token.BlockCount(); i++ {
				version, _ := token.BlockVersion(i)
				external := ""
				if externalKeys[i] != nil {
					external = externalKeys[i].String()
				}
				table.Append([]string{
					fmt.Sprintf("%d", i),
					fmt.Sprintf("%d", version),
					external,
					contexts[i],
				})
			}
			table.Render()

			for i := 0; i < token.BlockCount(); i++ {
				src, err := token.PrintBlockSource(i)
				if err != nil {
					return err
				}
				fmt.Printf("\nblock %d:\n%s\n", i, src)
			}
			return nil
		},
	}
	addRootKeyFlags(cmd.Flags(), &rootKeyHex, &algorithm)
	return cmd
}

func printRevocationIDs(ids [][]byte) {
	for i, id := range ids {
		fmt.Printf("revocation id %d: %s\n", i, hex.EncodeToString(id))
	}
}

func sealCommand() *cobra.Command {
	var rootKeyHex string
	var algorithm string
	var output string
	cmd := &cobra.Command{
		Use:   "seal <token-file>",
		Short: "Produce a sealed, non-attenuable copy of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootKeyHex == "" {
				return fmt.Errorf("--root-key is required: sealing verifies the chain first")
			}
			alg, err := parseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			rootKey, err := crypto.PublicKeyFromHex(alg, rootKeyHex)
			if err != nil {
				return err
			}

			unverified, err := readToken(args[0])
			if err != nil {
				return err
			}
			token, err := unverified.Verify(biscuit.RootKey(rootKey))
			if err != nil {
				return err
			}
			sealed, err := token.Seal()
			if err != nil {
				return err
			}

			encoded := sealed.ToBase64()
			if output == "" || output == "-" {
				fmt.Println(encoded)
				return nil
			}
			return os.WriteFile(output, []byte(encoded+"\n"), 0o644)
		},
	}
	addRootKeyFlags(cmd.Flags(), &rootKeyHex, &algorithm)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
