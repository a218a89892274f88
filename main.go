package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"library-members/auth"
	"library-members/config"
	"library-members/library"
	"library-members/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

type app struct {
	configDir string
	cfg       *config.Config
	log       *slog.Logger
	manager   *library.MemberManager
}

// readPassword securely reads a password with masking
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr) // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library member registration and fee tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config", ".", "directory holding library.env")

	root.AddCommand(
		a.registerCmd(),
		a.listCmd(),
		a.markPaidCmd(),
		a.exportCmd(),
		a.serveCmd(),
		hashPasswordCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configDir)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.NewLogger()

	manager, err := library.NewMemberManager(library.NewRegistryStore(cfg.DataFile, cfg.PhotoDir))
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	a.manager = manager
	return nil
}

// withDashboard prompts for the admin password and runs fn inside a session
// that is revoked afterwards.
func (a *app) withDashboard(fn func(d *auth.Dashboard, sess *auth.Session) error) error {
	sessions, err := auth.NewSessionStore(a.cfg.SessionDB)
	if err != nil {
		return fmt.Errorf("open sessions: %w", err)
	}
	defer sessions.Close()

	authn, err := auth.NewAuthenticator(sessions, a.cfg.AdminPassword, a.cfg.AdminPasswordHash, a.cfg.SessionTTL)
	if err != nil {
		return err
	}

	password, err := readPassword("Enter Admin Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	sess, err := authn.Login(password)
	if err != nil {
		return err
	}
	defer authn.Logout(sess)

	return fn(auth.NewDashboard(authn, a.manager), sess)
}

// ------------------ Commands ------------------

func (a *app) registerCmd() *cobra.Command {
	var (
		req       library.RegisterRequest
		photoPath string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new library member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if photoPath != "" {
				data, err := os.ReadFile(filepath.Clean(photoPath))
				if err != nil {
					return fmt.Errorf("read photo: %w", err)
				}
				req.Photo = data
			}
			m, err := a.manager.Register(req)
			if err != nil {
				var verr *library.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("please fill in all required fields: %w", err)
				}
				return err
			}
			a.log.Debug("member registered", "id", m.ID, "photo", m.Photo)
			fmt.Printf("Member %s registered successfully (ID %s)\n", m.Name, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "full name (required)")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number (required)")
	cmd.Flags().StringVar(&req.CNIC, "cnic", "", "CNIC (required)")
	cmd.Flags().StringVar(&req.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&req.FeePaid, "fee", string(library.FeePaid), "fee paid? Yes or No")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to a photo to upload")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered members (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDashboard(func(d *auth.Dashboard, sess *auth.Session) error {
				members, err := d.List(sess)
				if err != nil {
					return err
				}
				printMembers(members)
				return nil
			})
		},
	}
}

func (a *app) markPaidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-paid <index|id>",
		Short: "Mark a member's fee as paid (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDashboard(func(d *auth.Dashboard, sess *auth.Session) error {
				var (
					m   *library.Member
					err error
				)
				if index, convErr := strconv.Atoi(args[0]); convErr == nil {
					m, err = d.MarkPaid(sess, index)
				} else {
					id, parseErr := uuid.Parse(args[0])
					if parseErr != nil {
						return fmt.Errorf("invalid member index or id: %s", args[0])
					}
					m, err = d.MarkPaidByID(sess, id)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Fee marked as paid for %s (%s)\n", m.Name, m.LastUpdated.Format(library.DateLayout))
				return nil
			})
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the full member report as CSV (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDashboard(func(d *auth.Dashboard, sess *auth.Session) error {
				data, err := d.Export(sess)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Report written to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "library_members.csv", "output file, - for stdout")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve registration and the admin dashboard over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := auth.NewSessionStore(a.cfg.SessionDB)
			if err != nil {
				return fmt.Errorf("open sessions: %w", err)
			}
			defer sessions.Close()

			authn, err := auth.NewAuthenticator(sessions, a.cfg.AdminPassword, a.cfg.AdminPasswordHash, a.cfg.SessionTTL)
			if err != nil {
				return err
			}
			if n, err := authn.Purge(); err != nil {
				a.log.Warn("purge sessions", "err", err)
			} else if n > 0 {
				a.log.Info("purged stale sessions", "count", n)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(a.manager, authn, a.log, a.cfg.MaxPhotoBytes)
			return srv.ListenAndServe(ctx, a.cfg.ListenAddr)
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Println(string(hash))
			return nil
		},
	}
}

// ------------------ Output ------------------

func printMembers(members []*library.Member) {
	if len(members) == 0 {
		fmt.Println("No members registered yet.")
		return
	}

	fmt.Printf("%-5s %-25s %-15s %-17s %-25s %-9s %-8s %-10s\n", "#", "Name", "Phone", "CNIC", "Address", "Photo", "Fee Paid", "Updated")
	fmt.Println(strings.Repeat("-", 125))

	for i, m := range members {
		photo := "No Photo"
		if library.PhotoExists(m) {
			photo = "Yes"
		}
		fee := "❌ " + string(m.FeePaid)
		if m.FeePaid == library.FeePaid {
			fee = "✅ " + string(m.FeePaid)
		}
		fmt.Printf("%-5d %-25s %-15s %-17s %-25s %-9s %-8s %-10s\n",
			i,
			truncateString(m.Name, 25),
			truncateString(m.Phone, 15),
			truncateString(m.CNIC, 17),
			truncateString(m.Address, 25),
			photo,
			fee,
			m.LastUpdated.Format(library.DateLayout))
	}
	fmt.Printf("\nTotal members: %d\n", len(members))
}

// truncateString shortens s to maxLength characters, counting runes so
// multi-byte names are never cut mid-character.
func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(r[:maxLength])
	}
	return string(r[:maxLength-3]) + "..."
}
