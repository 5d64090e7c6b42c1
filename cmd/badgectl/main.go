package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skillbadge/internal/client"
	"skillbadge/internal/config"
	"skillbadge/internal/identity"
	"skillbadge/internal/ledger"
	"skillbadge/internal/metrics"
	"skillbadge/internal/query"
)

func main() {
	if err := newRootCmd(config.Load).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the per-invocation wiring shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *logrus.Logger
	session  *identity.Session
	backend  *ledger.HTTPBackend
	client   *client.Client
	registry *prometheus.Registry
}

type rootFlags struct {
	ledgerURL string
	token     string
	verbose   bool
	stats     bool
}

func newRootCmd(load func() (config.Config, error)) *cobra.Command {
	var (
		flags rootFlags
		a     = &app{}
	)

	root := &cobra.Command{
		Use:   "badgectl",
		Short: "Issue, browse and verify skill badges",
		Long: `badgectl talks to a skill badge ledger.

Students list their portfolio, employers verify a badge by its ID and
admins mint new badges and assign roles. Identity comes from a token
obtained with "badgectl login", passed with --token or set in
SKILLBADGE_CLIENT_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(load, flags, cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if flags.stats {
				return a.printStats(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flags.ledgerURL, "ledger", "", "ledger base URL (overrides client.ledgerurl)")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "identity token (overrides client.token)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flags.stats, "stats", false, "print query cache counters after the command")

	root.AddCommand(
		newHomeCmd(a),
		newRegisterCmd(a),
		newLoginCmd(a),
		newWhoamiCmd(a),
		newPortfolioCmd(a),
		newBadgeCmd(a),
		newVerifyCmd(a),
		newMintCmd(a),
		newBadgesCmd(a),
		newCertificateCmd(a),
		newProfileCmd(a),
		newRoleCmd(a),
	)
	return root
}

func (a *app) init(load func() (config.Config, error), flags rootFlags, logOut io.Writer) error {
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.ledgerURL != "" {
		cfg.Client.LedgerURL = flags.ledgerURL
	}
	if flags.token != "" {
		cfg.Client.Token = flags.token
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(logOut)
	logger.SetLevel(logrus.WarnLevel)
	if flags.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	session := identity.NewSession()
	if token := strings.TrimSpace(cfg.Client.Token); token != "" {
		if err := session.Restore(token); err != nil {
			logger.Warnf("ignoring stored token: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	backend := ledger.NewHTTPBackend(ledger.HTTPConfig{
		BaseURL: cfg.Client.LedgerURL,
		Timeout: cfg.Client.Timeout,
		Tokens:  session,
	})
	cache := query.NewCache(query.Options{
		StaleTime: cfg.Client.StaleTime,
		Observer:  metrics.NewCacheMetrics(registry),
		Logger:    logger,
	})

	*a = app{
		cfg:     cfg,
		logger:  logger,
		session: session,
		backend: backend,
		client: client.New(client.Config{
			Backend:  ledger.NewHandle(backend),
			Identity: session,
			Cache:    cache,
			Logger:   logger,
		}),
		registry: registry,
	}
	return nil
}

func (a *app) printStats(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather cache metrics: %w", err)
	}
	var lines []string
	for _, family := range families {
		for _, m := range family.GetMetric() {
			op := ""
			for _, label := range m.GetLabel() {
				if label.GetName() == "operation" {
					op = label.GetValue()
				}
			}
			lines = append(lines, fmt.Sprintf("%s{operation=%q} %g", family.GetName(), op, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}
