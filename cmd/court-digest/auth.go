package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ryosukesatoh/court-digest/internal/mailbox"
	"github.com/spf13/cobra"
)

type authOptions struct {
	credentials string
	token       string
	code        string
}

func newAuthCmd(g *globalOptions) *cobra.Command {
	o := &authOptions{}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize the Gmail account and store the OAuth token",
		Long: `auth prints the Google consent URL, reads the authorization code, and
writes the token file used by "check". Run it once, and again whenever the
refresh token is revoked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, g)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.credentials, "credentials", "", "OAuth client credentials JSON")
	f.StringVar(&o.token, "token", "", "OAuth token file to write")
	f.StringVar(&o.code, "code", "", "Authorization code (prompted for when empty)")

	return cmd
}

func (o *authOptions) run(cmd *cobra.Command, g *globalOptions) error {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if o.credentials != "" {
		cfg.Mailbox.CredentialsFile = o.credentials
	}
	if o.token != "" {
		cfg.Mailbox.TokenFile = o.token
	}

	session, err := mailbox.LoadSession(cfg.Mailbox.CredentialsFile, cfg.Mailbox.TokenFile, logger)
	if err != nil {
		return err
	}

	code := strings.TrimSpace(o.code)
	if code == "" {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Open this URL in a browser and authorize access:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  "+session.AuthCodeURL("court-digest"))
		fmt.Fprintln(out)
		fmt.Fprint(out, "Authorization code: ")

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}
	if code == "" {
		return fmt.Errorf("empty authorization code")
	}

	if err := session.Exchange(cmd.Context(), code); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", cfg.Mailbox.TokenFile)
	return nil
}
