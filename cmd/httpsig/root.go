package main

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fedsig/go/http/signing"
	"github.com/fedsig/go/keys"
	"github.com/fedsig/go/logging"
)

const envPrefix = "HTTPSIG"

var logger = logging.New("httpsig")

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("clock-skew", signing.DefaultClockSkew)
	v.SetDefault("addr", ":8080")
	v.SetDefault("cache-fresh", 5*time.Minute)
	v.SetDefault("cache-stale", time.Hour)
	v.SetDefault("cache-negative", time.Minute)

	return v
}

func newRootCmd() *cobra.Command {
	v := newViper()
	var cfgFile string

	root := &cobra.Command{
		Use:          "httpsig",
		Short:        "Sign and verify HTTP requests with draft-cavage HTTP signatures",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return logging.SetLevel(v.GetString("log-level"))
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level")

	root.AddCommand(
		newKeygenCmd(v),
		newSignCmd(v),
		newVerifyCmd(v),
		newServeCmd(v),
	)

	return root
}

// addVerifyFlags registers the flags shared by verify and serve.
func addVerifyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("clock-skew", signing.DefaultClockSkew, "maximum accepted clock skew")
	f.Bool("strict", false, "use the strict dialect")
	f.StringSlice("required-headers", nil, "headers every signature must cover")
	f.String("authorization-header", "", "header carrying the signature (default Authorization, then Signature)")
	f.Bool("verify-digest", true, "check the Digest header against the body when it is signed")
	f.Int64("max-body-bytes", signing.DefaultMaxBodyBytes, "largest body read to check its digest, negative for no limit")
	f.String("key-dir", "", "directory of public keys, see keys.Dir")
	f.String("public-key", "", "public key file used for every keyId, or for --key-id only")
	f.String("key-id", "", "keyId accepted with --public-key")
	f.String("redis-url", "", "cache resolved keys in this redis")
	f.Duration("cache-fresh", 5*time.Minute, "how long cached keys are used without a refresh")
	f.Duration("cache-stale", time.Hour, "how long cached keys are kept")
	f.Duration("cache-negative", time.Minute, "how long unknown keyIds are remembered")
}

func verifyConfig(v *viper.Viper, resolver signing.KeyResolver) signing.MiddlewareConfig {
	opts := []signing.Option{signing.WithClockSkew(v.GetDuration("clock-skew"))}
	if v.GetBool("strict") {
		opts = append(opts, signing.Strict())
	}
	if h := v.GetStringSlice("required-headers"); len(h) > 0 {
		opts = append(opts, signing.WithRequiredHeaders(h...))
	}
	if h := v.GetString("authorization-header"); h != "" {
		opts = append(opts, signing.WithAuthorizationHeader(h))
	}

	return signing.MiddlewareConfig{
		Resolver:     resolver,
		Options:      opts,
		VerifyDigest: v.GetBool("verify-digest"),
		MaxBodyBytes: v.GetInt64("max-body-bytes"),
	}
}

// newResolver builds the key resolver described by the configuration. The
// returned function releases its resources.
func newResolver(v *viper.Viper) (signing.KeyResolver, func(), error) {
	var resolver signing.KeyResolver

	switch {
	case v.GetString("public-key") != "":
		data, err := os.ReadFile(v.GetString("public-key"))
		if err != nil {
			return nil, nil, err
		}
		key, err := keys.ParsePublicKey(data)
		if err != nil {
			return nil, nil, err
		}
		if keyID := v.GetString("key-id"); keyID != "" {
			resolver = keys.Static{keyID: key}
		} else {
			resolver = signing.KeyResolverFunc(func(context.Context, string) (crypto.PublicKey, error) {
				return key, nil
			})
		}
	case v.GetString("key-dir") != "":
		resolver = keys.Dir{Path: v.GetString("key-dir")}
	default:
		return nil, nil, fmt.Errorf("one of --public-key or --key-dir is required")
	}

	redisURL := v.GetString("redis-url")
	if redisURL == "" {
		return resolver, func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	cache := keys.NewCache(rdb, "httpsig", resolver,
		v.GetDuration("cache-fresh"),
		v.GetDuration("cache-stale"),
		keys.WithNegativeCaching(v.GetDuration("cache-negative")),
	)
	return cache, func() { _ = rdb.Close() }, nil
}

// loadSigningKey reads a private key, or an HMAC secret from a .secret file.
func loadSigningKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".secret") {
		secret := bytes.TrimSpace(data)
		if len(secret) == 0 {
			return nil, fmt.Errorf("%s is empty", path)
		}
		return secret, nil
	}
	return keys.ParsePrivateKey(data)
}
