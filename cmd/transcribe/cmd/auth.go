package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/session"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			if err := p.fill(&username, "Username: "); err != nil {
				return err
			}
			if err := p.fillSecret(&password, "Password: "); err != nil {
				return err
			}

			mgr := opts.app.session
			if err := mgr.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			user := mgr.State().User
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var form session.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account on the transcription service.

Registration does not log in; run "transcribe login" afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			for _, field := range []struct {
				value    *string
				question string
				secret   bool
			}{
				{&form.Username, "Username: ", false},
				{&form.Email, "Email: ", false},
				{&form.Password, "Password: ", true},
				{&form.ConfirmPassword, "Confirm password: ", true},
			} {
				fill := p.fill
				if field.secret {
					fill = p.fillSecret
				}
				if err := fill(field.value, field.question); err != nil {
					return err
				}
			}

			user, err := opts.app.session.Register(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created. Run `transcribe login` to sign in.\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&form.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "password (at least 8 characters)")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "password again")
	cmd.Flags().StringVar(&form.FullName, "full-name", "", "display name (optional)")
	return cmd
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile behind the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := opts.app.session.FetchProfile(cmd.Context())
			if err != nil {
				return err
			}
			return renderUser(cmd.OutOrStdout(), opts.output, user)
		},
	}
}
