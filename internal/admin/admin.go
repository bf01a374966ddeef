// Package admin implements authctl, the operator command line for authcore:
// schema migrations, account bootstrap and maintenance of sessions and the
// audit trail.
package admin

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

const usage = `Usage: authctl [-c config.json] [-d dsn] <command> [arguments]

Commands:
  migrate                                    apply database migrations
  create-user [-email e] [-role r] <name>    create an account (password is prompted)
  hash-password                              print a digest and salt for a prompted password
  cleanup-sessions                           retire expired sessions
  audit-tail [N]                             print the N most recent audit events (default 20)
`

// Runner executes one authctl command.
type Runner struct {
	repomanager repomanager.RepositoryManager
	auth        *services.AuthService
	hasher      services.Hasher
	in          *bufio.Reader
	out         io.Writer
}

func NewRunner(m repomanager.RepositoryManager, auth *services.AuthService, hasher services.Hasher, in io.Reader, out io.Writer) *Runner {
	return &Runner{
		repomanager: m,
		auth:        auth,
		hasher:      hasher,
		in:          bufio.NewReader(in),
		out:         out,
	}
}

// Run dispatches args[0] with the remaining arguments.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(r.out, usage)
		return ErrUnknownCommand
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return r.migrate(ctx)
	case "create-user":
		return r.createUser(ctx, rest)
	case "hash-password":
		return r.hashPassword()
	case "cleanup-sessions":
		return r.cleanupSessions(ctx)
	case "audit-tail":
		return r.auditTail(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(r.out, usage)
		return nil
	default:
		fmt.Fprint(r.out, usage)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (r *Runner) migrate(ctx context.Context) error {
	if err := r.repomanager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(r.out, "migrations applied")
	return nil
}

// readNewPassword prompts twice and enforces the password policy.
func (r *Runner) readNewPassword() (string, error) {
	pw, err := GetPassword(r.in, "New password", r.out)
	if err != nil {
		return "", err
	}
	defer cryptox.WipeByteArray(pw)

	confirm, err := GetPassword(r.in, "Repeat password", r.out)
	if err != nil {
		return "", err
	}
	defer cryptox.WipeByteArray(confirm)

	if string(pw) != string(confirm) {
		return "", ErrPasswordMismatch
	}

	password := string(pw)
	check := r.auth.Policy().Check(password)
	if !check.Valid() {
		for _, reason := range check.Reasons {
			fmt.Fprintln(r.out, "  - "+reason)
		}
		return "", &common.ValidationError{Reasons: check.Reasons, Strength: check.Strength}
	}
	fmt.Fprintf(r.out, "password strength: %s\n", check.Strength)
	return password, nil
}

func (r *Runner) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(r.out)
	email := fs.String("email", "", "email address")
	role := fs.String("role", string(models.RoleEmployee), "admin or employee")
	if err := fs.Parse(args); err != nil {
		return err
	}

	username := strings.TrimSpace(fs.Arg(0))
	if username == "" {
		var err error
		username, err = GetSimpleText(r.in, "Username", r.out)
		if err != nil {
			return err
		}
	}
	if username == "" {
		return errors.New("username is required")
	}
	if !models.Role(*role).Valid() {
		return fmt.Errorf("invalid role %q", *role)
	}
	if *email == "" {
		*email = username
	}

	password, err := r.readNewPassword()
	if err != nil {
		return err
	}

	digest, salt, err := r.hasher.Hash(password, nil)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := r.repomanager.Users(r.repomanager.Conn()).Create(ctx, &models.User{
		Username:     username,
		Email:        *email,
		PasswordHash: digest,
		Salt:         salt,
		Role:         models.Role(*role),
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(r.out, "created %s %s (id %s)\n", user.Role, user.Username, user.ID)
	return nil
}

func (r *Runner) hashPassword() error {
	password, err := r.readNewPassword()
	if err != nil {
		return err
	}

	digest, salt, err := r.hasher.Hash(password, nil)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Fprintf(r.out, "hash: %s\nsalt: %s\n", hex.EncodeToString(digest), hex.EncodeToString(salt))
	return nil
}

func (r *Runner) cleanupSessions(ctx context.Context) error {
	n, err := r.auth.CleanupExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	fmt.Fprintf(r.out, "%d expired session(s) retired\n", n)
	return nil
}

func (r *Runner) auditTail(ctx context.Context, args []string) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}

	events, err := r.auth.RecentAuditEvents(ctx, limit)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tUSER\tIP\tOK\tDETAILS")
	for _, e := range events {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err == nil {
				details = string(b)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.EventType, deref(e.Username), deref(e.ClientIP), e.Success, details)
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
