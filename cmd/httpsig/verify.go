package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fedsig/go/http/signing"
)

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [FILE]",
		Short: "Verify the signature of a raw HTTP/1.x request read from FILE or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			resolver, cleanup, err := newResolver(v)
			if err != nil {
				return err
			}
			defer cleanup()

			return verifyRequest(cmd, in, verifyConfig(v, resolver))
		},
	}

	addVerifyFlags(cmd)

	return cmd
}

func verifyRequest(cmd *cobra.Command, in io.Reader, cfg signing.MiddlewareConfig) error {
	req, err := http.ReadRequest(bufio.NewReader(in))
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}
	defer req.Body.Close()

	parsed, err := signing.VerifyRequest(cmd.Context(), req, cfg)
	if err != nil {
		return fmt.Errorf("rejected with status %d: %w", signing.StatusCode(err), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "verified keyId=%q algorithm=%s headers=%q\n",
		parsed.KeyID(), parsed.Params().Algorithm, parsed.Params().Headers)
	return nil
}
