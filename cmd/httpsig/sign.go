package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fedsig/go/http/digest"
	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/httpclient"
)

func newSignCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign METHOD URL",
		Short: "Sign a request and print its headers, or send it with --send",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := newSigner(v)
			if err != nil {
				return err
			}

			data, _ := cmd.Flags().GetString("data")
			body, err := readBody(data)
			if err != nil {
				return err
			}

			var r io.Reader
			if body != nil {
				r = strings.NewReader(string(body))
			}
			req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(args[0]), args[1], r)
			if err != nil {
				return err
			}

			headers, _ := cmd.Flags().GetStringArray("header")
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("header %q is not of the form Name: value", h)
				}
				req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			out := cmd.OutOrStdout()

			if v.GetBool("send") {
				resp, err := httpclient.NewEgressSigningClient(signer, http.ProxyFromEnvironment).Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				fmt.Fprintln(out, resp.Status)
				_, err = io.Copy(out, resp.Body)
				return err
			}

			if body != nil {
				d, err := digest.Compute(digest.SHA256, body)
				if err != nil {
					return err
				}
				req.Header.Set(digest.Header, d)
			}

			sig, err := signer.Sign(signing.WrapRequest(req))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Host: %s\r\n", req.Host)
			if err := req.Header.Write(out); err != nil {
				return err
			}
			if v.GetBool("show-signing-string") {
				fmt.Fprintf(out, "\n%s\n", sig.SigningString)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("key-id", "", "keyId to sign with")
	f.String("key", "", "private key file, or a .secret file for hmac")
	f.StringSlice("headers", nil, "headers to sign (default date)")
	f.String("algorithm", "", "algorithm parameter, e.g. hs2019 (default derived from the key)")
	f.Duration("expires", 0, "add an expires parameter this far in the future")
	f.Bool("created", false, "add a created parameter")
	f.Bool("strict", false, "use the strict dialect")
	f.String("authorization-header", "", "header to write the signature to (default Authorization)")
	f.Bool("random-opaque", false, "add a random opaque parameter")
	f.StringArrayP("header", "H", nil, "extra request header, Name: value")
	f.StringP("data", "d", "", "request body, or @file to read it from a file")
	f.Bool("send", false, "send the request and print the response")
	f.Bool("show-signing-string", false, "also print the signing string")

	return cmd
}

func newSigner(v *viper.Viper) (signing.Signer, error) {
	keyID, path := v.GetString("key-id"), v.GetString("key")
	if keyID == "" || path == "" {
		return nil, fmt.Errorf("--key-id and --key are required")
	}
	key, err := loadSigningKey(path)
	if err != nil {
		return nil, err
	}

	var opts []signing.Option
	if h := v.GetStringSlice("headers"); len(h) > 0 {
		opts = append(opts, signing.WithHeaders(h...))
	}
	if a := v.GetString("algorithm"); a != "" {
		opts = append(opts, signing.WithAlgorithm(a))
	}
	if d := v.GetDuration("expires"); d > 0 {
		opts = append(opts, signing.WithExpiry(d))
	}
	if v.GetBool("created") {
		opts = append(opts, signing.WithCreated())
	}
	if v.GetBool("strict") {
		opts = append(opts, signing.Strict())
	}
	if h := v.GetString("authorization-header"); h != "" {
		opts = append(opts, signing.WithAuthorizationHeader(h))
	}
	if v.GetBool("random-opaque") {
		opts = append(opts, signing.WithRandomOpaque())
	}

	return signing.NewSigner(keyID, key, opts...)
}

func readBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(data, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(data), nil
}
