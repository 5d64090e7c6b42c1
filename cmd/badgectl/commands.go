package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"skillbadge/internal/access"
	"skillbadge/internal/client"
	"skillbadge/internal/domain"
	"skillbadge/internal/format"
)

var errNotSignedIn = errors.New("not signed in: run \"badgectl login\" or pass --token")

var allCapabilities = []access.Capability{
	access.VerifyBadge,
	access.ViewPortfolio,
	access.ManageProfile,
	access.MintBadge,
	access.AssignRole,
}

func newHomeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show who you are and what you can do",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Skill badges: verifiable credentials for what you know.")
			if id, ok := a.session.Identity(); ok {
				fmt.Fprintf(out, "Signed in as %s (%s)\n", id.Username, format.Principal(id.Principal.String()))
			} else {
				fmt.Fprintln(out, "Not signed in. You can still verify badges.")
			}

			role, err := a.client.CallerRole(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Role: %s\n", role)
			var allowed []string
			for _, c := range allCapabilities {
				if access.Allows(role, c) {
					allowed = append(allowed, string(c))
				}
			}
			fmt.Fprintf(out, "Allowed: %s\n", strings.Join(allowed, ", "))
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var password, secret string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a ledger account",
		Long: `Create a ledger account and print its identity token.

The first account registered on a ledger becomes its admin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.backend.Register(cmd.Context(), args[0], password, secret)
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), resp.Principal, resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&secret, "secret", "", "registration secret configured on the ledger")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and print an identity token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session.Login(cmd.Context(), a.backend, args[0], password)
			if err != nil {
				return err
			}
			printToken(cmd.OutOrStdout(), id.Principal.String(), id.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func printToken(w io.Writer, principal, token string) {
	fmt.Fprintf(w, "Principal: %s\n", principal)
	fmt.Fprintf(w, "export SKILLBADGE_CLIENT_TOKEN=%s\n", token)
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, ok := a.session.Identity()
			if !ok {
				return errNotSignedIn
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Username:  %s\n", id.Username)
			fmt.Fprintf(out, "Principal: %s\n", id.Principal)
			if !id.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "Expires:   %s\n", id.ExpiresAt.Format("January 2, 2006 15:04 MST"))
			}
			return nil
		},
	}
}

func newPortfolioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "List the badges you own",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.session.Identity(); !ok {
				return errNotSignedIn
			}
			if err := a.client.RequireCapability(cmd.Context(), access.ViewPortfolio); err != nil {
				return err
			}
			badges, err := a.client.CallerBadges(cmd.Context())
			if err != nil {
				return err
			}
			printBadgeList(cmd.OutOrStdout(), badges, "You have no badges yet.")
			return nil
		},
	}
}

func newBadgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "badge <id>",
		Short: "Show a badge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			badge, err := a.client.BadgeByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if badge == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Badge not found.")
				return nil
			}
			printBadge(cmd.OutOrStdout(), *badge)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Verify a badge by its ID",
		Long:  `Look up a badge on the ledger and report whether it is an authentic, verified credential.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			badge, err := a.client.VerifyBadge(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, client.ErrInvalidBadgeID) {
					return fmt.Errorf("%q is not a badge ID: %w", args[0], err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			if badge == nil {
				fmt.Fprintf(out, "No badge with ID %s exists on the ledger.\n", args[0])
				return nil
			}
			if badge.Verified {
				fmt.Fprintln(out, "Verified credential")
			} else {
				fmt.Fprintln(out, "Badge exists but is NOT verified")
			}
			printBadge(out, *badge)
			return nil
		},
	}
}

func newMintCmd(a *app) *cobra.Command {
	var p client.IssueBadgeParams
	var owner string
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue a new badge (admins only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.session.Identity(); !ok {
				return errNotSignedIn
			}
			recipient, err := domain.ParsePrincipal(owner)
			if err != nil {
				return fmt.Errorf("--owner: %w", err)
			}
			if err := a.client.RequireCapability(cmd.Context(), access.MintBadge); err != nil {
				return err
			}
			p.Owner = recipient
			id, err := a.client.IssueBadge(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issued badge %s\n", format.BadgeID(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "principal receiving the badge")
	cmd.Flags().StringVar(&p.SkillName, "skill", "", "skill name")
	cmd.Flags().StringVar(&p.Description, "description", "", "optional description")
	cmd.Flags().StringVar(&p.Level, "level", "", "optional level, e.g. Beginner")
	return cmd
}

func newBadgesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "badges",
		Short: "List every badge on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			badges, err := a.client.AllBadges(cmd.Context())
			if err != nil {
				return err
			}
			printBadgeList(cmd.OutOrStdout(), badges, "No badges have been issued.")
			return nil
		},
	}
}

func newCertificateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "certificate <id>",
		Short: "Print a download link for a badge's archived certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseBadgeID(args[0])
			if err != nil {
				return err
			}
			url, err := a.backend.CertificateURL(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update user profiles",
	}

	show := &cobra.Command{
		Use:   "show [principal]",
		Short: "Show your profile, or another user's (admins only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				profile *domain.UserProfile
				err     error
			)
			if len(args) == 1 {
				var user domain.Principal
				user, err = domain.ParsePrincipal(args[0])
				if err != nil {
					return err
				}
				profile, err = a.client.UserProfile(cmd.Context(), user)
			} else {
				if _, ok := a.session.Identity(); !ok {
					return errNotSignedIn
				}
				profile, err = a.client.CallerProfile(cmd.Context())
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if profile == nil {
				fmt.Fprintln(out, "No profile saved.")
				return nil
			}
			fmt.Fprintf(out, "Name:         %s\n", profile.Name)
			if profile.Email != nil {
				fmt.Fprintf(out, "Email:        %s\n", *profile.Email)
			}
			if profile.Organization != nil {
				fmt.Fprintf(out, "Organization: %s\n", *profile.Organization)
			}
			return nil
		},
	}

	var name, email, org string
	save := &cobra.Command{
		Use:   "save",
		Short: "Save your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.session.Identity(); !ok {
				return errNotSignedIn
			}
			if err := a.client.RequireCapability(cmd.Context(), access.ManageProfile); err != nil {
				return err
			}
			err := a.client.SaveCallerProfile(cmd.Context(), domain.UserProfile{
				Name:         name,
				Email:        domain.OptionalString(email),
				Organization: domain.OptionalString(org),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Profile saved.")
			return nil
		},
	}
	save.Flags().StringVar(&name, "name", "", "display name")
	save.Flags().StringVar(&email, "email", "", "contact email")
	save.Flags().StringVar(&org, "organization", "", "organization")

	cmd.AddCommand(show, save)
	return cmd
}

func newRoleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Show or assign ledger roles",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show your role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := a.client.CallerRole(cmd.Context())
			if err != nil {
				return err
			}
			admin, err := a.client.IsCallerAdmin(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role: %s (admin: %t)\n", role, admin)
			return nil
		},
	}

	assign := &cobra.Command{
		Use:   "assign <principal> <role>",
		Short: "Assign a role to a user (admins only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := domain.ParsePrincipal(args[0])
			if err != nil {
				return err
			}
			role, err := domain.ParseUserRole(args[1])
			if err != nil {
				return err
			}
			if err := a.client.RequireCapability(cmd.Context(), access.AssignRole); err != nil {
				return err
			}
			if err := a.client.AssignCallerUserRole(cmd.Context(), user, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", role, format.Principal(user.String()))
			return nil
		},
	}

	cmd.AddCommand(show, assign)
	return cmd
}

func printBadgeList(w io.Writer, badges []domain.SkillBadge, empty string) {
	if len(badges) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, b := range badges {
		line := fmt.Sprintf("%-6s %-28s", format.BadgeID(b.ID), b.SkillName)
		if b.Level != nil {
			line += " [" + *b.Level + "]"
		}
		fmt.Fprintf(w, "%s  %s  owner %s\n", line, format.Timestamp(b.IssueTimestamp), format.Principal(b.Owner.String()))
	}
}

func printBadge(w io.Writer, b domain.SkillBadge) {
	fmt.Fprintf(w, "Badge:     %s\n", format.BadgeID(b.ID))
	fmt.Fprintf(w, "Skill:     %s\n", b.SkillName)
	if b.Level != nil {
		fmt.Fprintf(w, "Level:     %s\n", *b.Level)
	}
	if b.Description != nil {
		fmt.Fprintf(w, "About:     %s\n", *b.Description)
	}
	fmt.Fprintf(w, "Owner:     %s\n", b.Owner)
	fmt.Fprintf(w, "Issuer:    %s\n", b.Issuer)
	fmt.Fprintf(w, "Issued:    %s\n", format.Timestamp(b.IssueTimestamp))
	fmt.Fprintf(w, "Verified:  %t\n", b.Verified)
}
