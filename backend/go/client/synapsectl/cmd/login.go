package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password and save the access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var session struct {
			Token string `json:"token"`
			User  struct {
				UserID      string `json:"userId"`
				DisplayName string `json:"displayName"`
			} `json:"user"`
		}
		body := map[string]string{"email": loginEmail, "password": loginPassword}
		if err := newRESTClient(authURL, "").do(http.MethodPost, "/api/v1/auth/login", body, &session); err != nil {
			return err
		}
		if err := saveToken(session.Token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", session.User.DisplayName, session.User.UserID)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}
