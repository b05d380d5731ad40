package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/QMSVault/internal/app"
	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

func (c *cli) departmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "department",
		Aliases: []string{"dept"},
		Short:   "Manage departments",
	}
	cmd.AddCommand(c.departmentCreateCmd(), c.departmentListCmd(), c.departmentDeactivateCmd())
	return cmd
}

func (c *cli) departmentCreateCmd() *cobra.Command {
	var name, code string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &model.Department{Name: strings.TrimSpace(name), IsActive: true}
			if d.Name == "" {
				return fmt.Errorf("--name is required")
			}
			if code = strings.TrimSpace(code); code != "" {
				d.Code = &code
			}
			return c.withStore(cmd.Context(), func(store app.Store) error {
				if err := store.CreateDepartment(cmd.Context(), d); err != nil {
					return fmt.Errorf("create department: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created department %d %s\n", d.ID, d.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Department name (unique)")
	cmd.Flags().StringVar(&code, "code", "", "Optional short code (unique)")
	return cmd
}

func (c *cli) departmentListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store app.Store) error {
				depts, err := store.ListDepartments(cmd.Context(), !all)
				if err != nil {
					return fmt.Errorf("list departments: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCODE\tACTIVE")
				for _, d := range depts {
					code := "-"
					if d.Code != nil {
						code = *d.Code
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", d.ID, d.Name, code, d.IsActive)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive departments")
	return cmd
}

func (c *cli) departmentDeactivateCmd() *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Hide a department from pickers (use --activate to undo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid department id %q", args[0])
			}
			return c.withStore(cmd.Context(), func(store app.Store) error {
				if err := store.SetDepartmentActive(cmd.Context(), id, activate); err != nil {
					return fmt.Errorf("update department: %w", err)
				}
				state := "deactivated"
				if activate {
					state = "activated"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s department %d\n", state, id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", false, "Reactivate instead")
	return cmd
}

func (c *cli) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their groups",
	}
	cmd.AddCommand(
		c.userCreateCmd(),
		c.userGroupCmd("grant", "Add a user to a group", true),
		c.userGroupCmd("revoke", "Remove a user from a group", false),
		c.userDeleteCmd(),
		c.userListCmd(),
	)
	return cmd
}

func checkGroups(groups []string) error {
	for _, g := range groups {
		if !identity.IsKnownGroup(g) {
			return fmt.Errorf("unknown group %q (known: %s)", g, strings.Join(identity.KnownGroups, ", "))
		}
	}
	return nil
}

func (c *cli) userCreateCmd() *cobra.Command {
	var (
		username, password, email string
		department                int64
		groups                    []string
		superuser                 bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if err := checkGroups(groups); err != nil {
				return err
			}
			hash, err := identity.HashPassword(password)
			if err != nil {
				return err
			}
			u := &model.User{
				Username:     username,
				Email:        email,
				PasswordHash: hash,
				IsSuperuser:  superuser,
				IsActive:     true,
				Groups:       groups,
			}
			if department > 0 {
				u.DepartmentID = &department
			}
			return c.withStore(cmd.Context(), func(store app.Store) error {
				if err := store.CreateUser(cmd.Context(), u); err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d %s (%s)\n", u.ID, u.Username, identity.RoleOf(u))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name (unique)")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (at least 8 characters)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().Int64Var(&department, "department", 0, "Department id")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "Group membership, repeatable")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "Grant the superuser flag")
	return cmd
}

func (c *cli) userGroupCmd(use, short string, add bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username> <group>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, group := args[0], args[1]
			if err := checkGroups([]string{group}); err != nil {
				return err
			}
			return c.withStore(cmd.Context(), func(store app.Store) error {
				u, err := store.GetUserByUsername(cmd.Context(), username)
				if err != nil {
					return fmt.Errorf("load user %q: %w", username, err)
				}
				groups := make([]string, 0, len(u.Groups)+1)
				for _, g := range u.Groups {
					if g != group {
						groups = append(groups, g)
					}
				}
				if add {
					groups = append(groups, group)
				}
				if err := store.SetUserGroups(cmd.Context(), u.ID, groups); err != nil {
					return fmt.Errorf("update groups: %w", err)
				}
				u.Groups = groups
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Username, identity.RoleOf(u))
				return nil
			})
		},
	}
}

func (c *cli) userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user; their audit records remain as System",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store app.Store) error {
				u, err := store.GetUserByUsername(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load user %q: %w", args[0], err)
				}
				if err := store.DeleteUser(cmd.Context(), u.ID); err != nil {
					return fmt.Errorf("delete user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", u.Username)
				return nil
			})
		},
	}
}

func (c *cli) userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users with their derived role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store app.Store) error {
				users, err := store.ListUsers(cmd.Context())
				if err != nil {
					return fmt.Errorf("list users: %w", err)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tDEPARTMENT\tROLE\tGROUPS\tACTIVE")
				for i := range users {
					u := &users[i]
					dept := u.DepartmentName
					if dept == "" {
						dept = "-"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, dept, identity.RoleOf(u), strings.Join(u.Groups, ","), u.IsActive)
				}
				return tw.Flush()
			})
		},
	}
}
