package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/mnemonic-no/act-api-go/internal/pkg/config"
	acterrors "github.com/mnemonic-no/act-api-go/pkg/act/errors"
	"github.com/mnemonic-no/act-api-go/pkg/act/worker"
	"github.com/spf13/cobra"
)

type flagValues struct {
	configPath string
	cfg        config.Config
}

func newRootCmd(version string, in io.Reader, out io.Writer) *cobra.Command {
	flags := &flagValues{}

	cmd := &cobra.Command{
		Use:     appName + " [uri ...]",
		Short:   "Extract facts from URIs",
		Long:    "Extract facts from URIs given as arguments, or one per line on stdin, and submit them to the ACT platform or print them.",
		Version: version,

		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				args, err = readURIs(in)
				if err != nil {
					return err
				}
			}

			return run(cmd.Context(), cfg, args, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "yaml configuration file")
	f.StringVar(&flags.cfg.BaseURL, "act-baseurl", "", "ACT API URI")
	f.StringVar(&flags.cfg.UserID, "user-id", "", "User ID")
	f.StringVar(&flags.cfg.HTTPHeader, "http-header", "", `comma separated list of HTTP headers, e.g. "HeaderA: val1, HeaderB: comma\,val2"`)
	f.StringVar(&flags.cfg.HTTPUser, "http-user", "", "ACT HTTP Basic Auth user")
	f.StringVar(&flags.cfg.HTTPPassword, "http-password", "", "ACT HTTP Basic Auth password")
	f.IntVar(&flags.cfg.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "timeout in seconds")
	f.StringVar(&flags.cfg.ProxyString, "proxy-string", "", "proxy to use for external queries")
	f.BoolVar(&flags.cfg.ProxyPlatform, "proxy-platform", false, "use proxy-string towards the ACT platform")
	f.StringVar(&flags.cfg.CertFile, "cert-file", "", "certificate to add if you are behind a TLS interception proxy")
	f.StringVar(&flags.cfg.LogLevel, "loglevel", "info", "log level")
	f.StringVar(&flags.cfg.OutputFormat, "output-format", worker.FormatJSON, "output format for facts (json or str)")
	f.StringVar(&flags.cfg.AccessMode, "access-mode", "", "default access mode used for all facts")
	f.StringVar(&flags.cfg.Organization, "organization", "", "default organization applied to all facts")
	f.StringVar(&flags.cfg.OriginName, "origin-name", "", "origin name, must be defined in the platform")
	f.StringVar(&flags.cfg.OriginID, "origin-id", "", "origin id, must be the UUID of an origin in the platform")
	f.StringVar(&flags.cfg.PolicyFile, "policy-file", "", "rego policies used to validate objects")
	f.BoolVar(&flags.cfg.StrictValidator, "strict-validator", false, "reject facts with objects that fail validation")

	return cmd
}

// loadConfig applies the configuration file, then the environment and finally
// any flags given on the command line.
func loadConfig(cmd *cobra.Command, flags *flagValues) (*config.Config, error) {
	var data io.Reader

	if flags.configPath != "" {
		file, err := os.Open(flags.configPath)
		if err != nil {
			return nil, acterrors.NewArgumentError("unable to open configuration file: %s", err.Error())
		}
		defer file.Close()
		data = file
	}

	cfg, err := config.Load(cmd.Context(), data)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	override := func(name string, dst *string, src string) {
		if f.Changed(name) {
			*dst = src
		}
	}

	override("act-baseurl", &cfg.BaseURL, flags.cfg.BaseURL)
	override("user-id", &cfg.UserID, flags.cfg.UserID)
	override("http-header", &cfg.HTTPHeader, flags.cfg.HTTPHeader)
	override("http-user", &cfg.HTTPUser, flags.cfg.HTTPUser)
	override("http-password", &cfg.HTTPPassword, flags.cfg.HTTPPassword)
	override("proxy-string", &cfg.ProxyString, flags.cfg.ProxyString)
	override("cert-file", &cfg.CertFile, flags.cfg.CertFile)
	override("loglevel", &cfg.LogLevel, flags.cfg.LogLevel)
	override("output-format", &cfg.OutputFormat, flags.cfg.OutputFormat)
	override("access-mode", &cfg.AccessMode, flags.cfg.AccessMode)
	override("organization", &cfg.Organization, flags.cfg.Organization)
	override("origin-name", &cfg.OriginName, flags.cfg.OriginName)
	override("origin-id", &cfg.OriginID, flags.cfg.OriginID)
	override("policy-file", &cfg.PolicyFile, flags.cfg.PolicyFile)

	if f.Changed("http-timeout") {
		cfg.HTTPTimeout = flags.cfg.HTTPTimeout
	}
	if f.Changed("proxy-platform") {
		cfg.ProxyPlatform = flags.cfg.ProxyPlatform
	}
	if f.Changed("strict-validator") {
		cfg.StrictValidator = flags.cfg.StrictValidator
	}

	return cfg, nil
}

func readURIs(in io.Reader) ([]string, error) {
	uris := []string{}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			uris = append(uris, line)
		}
	}

	return uris, scanner.Err()
}

func run(ctx context.Context, cfg *config.Config, uris []string, out io.Writer) error {
	log := logging.GetFromContext(ctx)

	a, err := cfg.NewAct(ctx)
	if err != nil {
		return err
	}

	h, err := worker.NewFactHandler(out, worker.Format(cfg.OutputFormat))
	if err != nil {
		return err
	}

	for _, uri := range uris {
		err = worker.HandleURI(ctx, a, h, uri)
		if errors.Is(err, acterrors.ErrValidation) {
			log.Warn("skipping uri", slog.String("uri", uri), "err", err.Error())
			continue
		}
		if err != nil {
			return err
		}
	}

	log.Debug("done handling uris", slog.Int("count", len(uris)), slog.Int("facts", h.Len()))

	return nil
}
