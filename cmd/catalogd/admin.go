package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogsync/internal/core"
	"github.com/JonMunkholm/catalogsync/internal/pos"
	"github.com/JonMunkholm/catalogsync/internal/web/middleware"
)

func newTemplateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "template <restaurant-id>",
		Short: "Print the spreadsheet header for a restaurant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := core.ContextWithPrincipal(cmd.Context(), core.SystemPrincipal())
			return a.svc.WriteTemplate(ctx, args[0], cmd.OutOrStdout())
		},
	}
}

type tokenOptions struct {
	user         string
	restaurants  []string
	capabilities []string
	ttl          time.Duration
}

func newTokenCommand(root *rootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := root.cfg.Security.JWTSecret
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if opts.user == "" {
				return errors.New("--user is required")
			}

			p := core.Principal{UserID: opts.user, Restaurants: opts.restaurants}
			for _, c := range opts.capabilities {
				p.Capabilities = append(p.Capabilities, core.Capability(strings.TrimSpace(c)))
			}

			token, err := middleware.IssueToken([]byte(secret), p, opts.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.user, "user", "", "user id placed in the token subject")
	cmd.Flags().StringSliceVar(&opts.restaurants, "restaurants", []string{core.Wildcard}, "restaurant ids the token may act on")
	cmd.Flags().StringSliceVar(&opts.capabilities, "capabilities",
		[]string{string(core.CapImport), string(core.CapSync), string(core.CapView)}, "granted capabilities")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

type credentialOptions struct {
	restaurant   string
	merchant     string
	accessToken  string
	refreshToken string
	expiresIn    time.Duration
}

func newCredentialCommand(root *rootOptions) *cobra.Command {
	opts := &credentialOptions{}

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store an encrypted point-of-sale credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !root.cfg.POS.Enabled() {
				return errors.New("POS_CLIENT_ID is not set")
			}
			if opts.restaurant == "" || opts.merchant == "" || opts.accessToken == "" {
				return errors.New("--restaurant, --merchant and --access-token are required")
			}

			a, err := openApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cred := &pos.Credential{
				RestaurantID: opts.restaurant,
				Vendor:       "clover",
				MerchantID:   opts.merchant,
				AccessToken:  opts.accessToken,
				RefreshToken: opts.refreshToken,
				ExpiresAt:    time.Now().Add(opts.expiresIn),
			}
			if err := a.vault.Save(cmd.Context(), cred); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cred.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.restaurant, "restaurant", "", "restaurant id")
	cmd.Flags().StringVar(&opts.merchant, "merchant", "", "merchant id at the point of sale")
	cmd.Flags().StringVar(&opts.accessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&opts.refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().DurationVar(&opts.expiresIn, "expires-in", time.Hour, "access token lifetime from now")

	return cmd
}
