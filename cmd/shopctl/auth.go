package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errAuthFailed = errors.New("authentication failed")

type statusView struct {
	Status  string   `json:"status" yaml:"status"`
	User    string   `json:"user,omitempty" yaml:"user,omitempty"`
	Email   string   `json:"email,omitempty" yaml:"email,omitempty"`
	Roles   []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	IsAdmin bool     `json:"isAdmin" yaml:"isAdmin"`
}

func (c *cli) status() statusView {
	s := c.app.Session
	v := statusView{Status: s.Status().String(), IsAdmin: s.IsAdmin()}
	if u := s.User(); u != nil {
		v.User, v.Email, v.Roles = u.FullName, u.Email, u.Roles
	}
	return v
}

func (c *cli) authCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "auth", Short: "Sign in and out"}

	var email, password, fullName string
	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.app.Session.Login(cmd.Context(), email, password) {
				return errAuthFailed
			}
			return c.print(cmd.OutOrStdout(), c.status())
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	login.Flags().StringVar(&password, "password", "", "account password")
	_ = login.MarkFlagRequired("email")
	_ = login.MarkFlagRequired("password")

	register := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.app.Session.Register(cmd.Context(), fullName, email, password) {
				return errAuthFailed
			}
			return c.print(cmd.OutOrStdout(), c.status())
		},
	}
	register.Flags().StringVar(&fullName, "name", "", "full name")
	register.Flags().StringVar(&email, "email", "", "account email")
	register.Flags().StringVar(&password, "password", "", "account password")
	for _, f := range []string{"name", "email", "password"} {
		_ = register.MarkFlagRequired(f)
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Verify the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Session.CheckStatus(cmd.Context())
			return c.print(cmd.OutOrStdout(), c.status())
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Session.Logout(cmd.Context())
			return c.print(cmd.OutOrStdout(), c.status())
		},
	}

	cmd.AddCommand(login, register, status, logout)
	return cmd
}
