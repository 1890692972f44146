package main

import (
	"encoding/hex"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"github.com/riscvbooks/eventrelay/internal/keys"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relaykey",
		Short: "Generate and inspect relay signing keys",
	}

	rootCmd.AddCommand(generateCommand(), deriveCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func generateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Create a new keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := keys.GeneratePrivateKey()
			if err != nil {
				return err
			}
			return printKeypair(cmd, priv)
		},
	}
}

func deriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <private-key-hex|esec...>",
		Short: "Derive the public key from an existing private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := args[0]
			if raw, err := keys.EsecDecode(value); err == nil {
				value = hex.EncodeToString(raw)
			}
			priv, err := keys.PrivateKeyFromHex(value)
			if err != nil {
				return err
			}
			return printKeypair(cmd, priv)
		},
	}
}

func printKeypair(cmd *cobra.Command, priv *btcec.PrivateKey) error {
	pubHex := keys.PublicKeyHex(priv)
	epub, err := keys.EpubEncode(pubHex)
	if err != nil {
		return err
	}
	esec, err := keys.EsecEncode(priv.Serialize())
	if err != nil {
		return err
	}

	cmd.Printf("public:  %s\n         %s\n", pubHex, epub)
	cmd.Printf("private: %s\n         %s\n", keys.PrivateKeyHex(priv), esec)
	return nil
}
