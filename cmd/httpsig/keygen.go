package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/keys"
)

func newKeygenCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen NAME",
		Short: "Generate a key pair, written to NAME.key and NAME.pem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			alg, ok := signing.ParseKeyAlgorithm(v.GetString("type"))
			if !ok {
				return fmt.Errorf("unknown key type %q", v.GetString("type"))
			}

			priv, err := keys.Generate(alg)
			if err != nil {
				return err
			}
			pub, err := keys.PublicKey(priv)
			if err != nil {
				return err
			}

			privPEM, err := keys.MarshalPrivateKey(priv)
			if err != nil {
				return err
			}
			pubPEM, err := keys.MarshalPublicKey(pub)
			if err != nil {
				return err
			}
			if err := os.WriteFile(name+".key", privPEM, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(name+".pem", pubPEM, 0o644); err != nil {
				return err
			}

			fp, err := keys.Fingerprint(pub)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", fp, name, alg)
			return nil
		},
	}

	cmd.Flags().String("type", "ed25519", "key type: rsa, ecdsa or ed25519")

	return cmd
}
