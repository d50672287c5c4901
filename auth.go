package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/clouddrive/clouddrive-go/internal/api"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with email and password",
		RunE:  runLogin,
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		RunE:  runRegister,
	}

	cmd.Flags().String("first-name", "", "first name")
	cmd.Flags().String("last-name", "", "last name")
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the saved credential",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated user",
		RunE:  runWhoami,
	}
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <token>",
		Short: "Activate an account with an emailed token",
		Args:  cobra.ExactArgs(1),
		RunE:  runActivate,
	}
}

func newForgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE:  runForgotPassword,
	}
}

func newResetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password <token>",
		Short: "Set a new password with an emailed reset token",
		Args:  cobra.ExactArgs(1),
		RunE:  runResetPassword,
	}

	cmd.Flags().String("password", "", "new password (prompted when omitted)")

	return cmd
}

// promptValue returns the flag value when set, else prompts on stderr and
// reads a line from stdin.
func promptValue(cmd *cobra.Command, flag, prompt string) (string, error) {
	v, err := cmd.Flags().GetString(flag)
	if err != nil {
		return "", err
	}

	if v != "" {
		return v, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", flag, err)
	}

	return strings.TrimSpace(line), nil
}

// promptPassword returns the flag value when set, else prompts without echo
// when stdin is a terminal.
func promptPassword(cmd *cobra.Command, flag, prompt string) (string, error) {
	v, err := cmd.Flags().GetString(flag)
	if err != nil {
		return "", err
	}

	if v != "" {
		return v, nil
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return promptValue(cmd, flag, prompt)
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return string(raw), nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	email, err := promptValue(cmd, "email", "Email")
	if err != nil {
		return err
	}

	password, err := promptPassword(cmd, "password", "Password")
	if err != nil {
		return err
	}

	identity, cred, err := a.client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %s", api.UserMessage(err, "is the server running?"))
	}

	a.store.Login(identity, cred)

	return nil
}

func runRegister(cmd *cobra.Command, _ []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	firstName, err := promptValue(cmd, "first-name", "First name")
	if err != nil {
		return err
	}

	lastName, err := promptValue(cmd, "last-name", "Last name")
	if err != nil {
		return err
	}

	email, err := promptValue(cmd, "email", "Email")
	if err != nil {
		return err
	}

	password, err := promptPassword(cmd, "password", "Password")
	if err != nil {
		return err
	}

	msg, err := a.client.Register(ctx, firstName, lastName, email, password)
	if err != nil {
		return fmt.Errorf("registration failed: %s", api.UserMessage(err, "is the server running?"))
	}

	statusf("%s\n", msg)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a.store.Hydrate(ctx)
	a.store.Logout(ctx)

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	IsActive     bool   `json:"is_active"`
	RootFolderID string `json:"root_folder_id,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	snap, err := a.requireSession(ctx)
	if err != nil {
		return err
	}

	identity := snap.Identity

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(whoamiOutput{
			ID:           identity.ID,
			Email:        identity.Email,
			DisplayName:  identity.DisplayName(),
			IsActive:     identity.IsActive,
			RootFolderID: identity.RootFolderID,
		})
	}

	fmt.Printf("User:  %s (%s)\n", identity.DisplayName(), identity.Email)
	fmt.Printf("ID:    %s\n", identity.ID)

	return nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	msg, err := a.client.Activate(ctx, args[0])
	if err != nil {
		return fmt.Errorf("activation failed: %s", api.UserMessage(err, "invalid or expired token"))
	}

	statusf("%s\n", msg)

	return nil
}

func runForgotPassword(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	msg, err := a.client.ForgotPassword(ctx, args[0])
	if err != nil {
		return fmt.Errorf("request failed: %s", api.UserMessage(err, "is the server running?"))
	}

	statusf("%s\n", msg)

	return nil
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	a := newApp()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	password, err := promptPassword(cmd, "password", "New password")
	if err != nil {
		return err
	}

	msg, err := a.client.ResetPassword(ctx, args[0], password)
	if err != nil {
		return fmt.Errorf("reset failed: %s", api.UserMessage(err, "invalid or expired token"))
	}

	statusf("%s\n", msg)

	return nil
}
