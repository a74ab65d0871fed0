package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docmail/docmail/pkg/config"
)

func NewSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the mail API client secret in the OS keyring",
	}
	cmd.AddCommand(newSecretSetCommand())
	return cmd
}

func newSecretSetCommand() *cobra.Command {
	var service, clientID string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the client secret read from stdin",
		Example: `  printf '%s' "$SECRET" | docmail secret set --service docmail --client-id 00000000-0000-0000-0000-000000000000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading secret from stdin: %w", err)
			}
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				return errors.New("secret must not be empty")
			}

			if err := config.StoreClientSecret(service, clientID, secret); err != nil {
				return fmt.Errorf("storing secret: %w", err)
			}
			rt.log.Infow("Client secret stored", "service", service, "clientID", clientID)
			_, _ = fmt.Fprintf(rt.Writer(), "Secret stored for client %s in %s\n", clientID, service)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "docmail", "Keyring service name (identity.keyringService)")
	cmd.Flags().StringVar(&clientID, "client-id", getEnvString("CLIENT_ID", ""), "Application client id (identity.clientID)")
	return cmd
}
