package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/disaster-sms/internal/adapter/twilio"
)

// newSignCmd prints the signature Twilio would send for a webhook call, so
// the server can be exercised with curl.
func newSignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sign URL [name=value ...]",
		Short: "Compute the X-Twilio-Signature for a webhook request",
		Example: `  sig=$(disastersms sign https://sms.example.org/sms From=+15551230000 Body=help)
  curl -H "X-Twilio-Signature: $sig" -d From=+15551230000 -d Body=help https://sms.example.org/sms`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.TwilioAuthToken == "" {
				return errors.New("TWILIO_AUTH_TOKEN is not set")
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), twilio.Sign(a.cfg.TwilioAuthToken, args[0], params))
			return nil
		},
	}
}

func parseParams(args []string) (url.Values, error) {
	params := url.Values{}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, want name=value", arg)
		}
		params.Add(name, value)
	}
	return params, nil
}
