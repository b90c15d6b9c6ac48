package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/fixit/internal/models"
	"github.com/joescharf/fixit/internal/output"
)

var (
	userName  string
	userEmail string
	userRole  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the identities issues are created and assigned by",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(cmd.Context())
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun(cmd.Context())
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name (required)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userRole, "role", "user", "Role: user, admin")
	_ = userAddCmd.MarkFlagRequired("name")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun(ctx context.Context) error {
	role, ok := models.ParseRole(userRole)
	if !ok {
		return fmt.Errorf("invalid role %q: must be user or admin", userRole)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add user %s [%s]", userName, role)
		return nil
	}

	u := &models.User{Name: userName, Email: userEmail, Role: role}
	if err := s.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	ui.Success("Created user %s: %s [%s]", output.Cyan(u.ID), u.Name, u.Role)
	return nil
}

func userListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		ui.Info("No users found. Add one with 'fixit user add --name <name>'.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Email", "Role"})
	for _, u := range users {
		role := string(u.Role)
		if u.Role == models.RoleAdmin {
			role = output.Yellow(role)
		}
		_ = table.Append([]string{u.ID, u.Name, u.Email, role})
	}
	_ = table.Render()
	return nil
}
