package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"f0oster/lineage/config"
	"f0oster/lineage/database"
	"f0oster/lineage/events"
	"f0oster/lineage/identity"
	"f0oster/lineage/logging"
	"f0oster/lineage/modules"
	"f0oster/lineage/permissions"
	"f0oster/lineage/relations"
	"f0oster/lineage/snapshot"
	"f0oster/lineage/versioning"
	"f0oster/lineage/web"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// setup loads the configuration and builds the logger every command needs.
func setup() (config.LineageConfiguration, *zap.Logger, error) {
	cfg, err := config.LoadEnvConfig(envFile)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func connect(ctx context.Context, cfg config.LineageConfiguration, logger *zap.Logger) (*database.Database, error) {
	db := database.NewDatabase(cfg.DSN, cfg.ManagementDSN, logger)
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newPublisher(cfg config.LineageConfiguration) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "nats":
		return events.NewNATSPublisher(cfg.NATSURL, "lineage")
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	}
	return events.Nop{}, nil
}

func newPolicy(cfg config.LineageConfiguration) (permissions.Policy, error) {
	if cfg.PolicyFile == "" {
		return permissions.DefaultPolicy(), nil
	}
	return permissions.LoadPolicy(cfg.PolicyFile)
}

// newIdentity trusts the role header unless a directory is configured.
func newIdentity(cfg config.LineageConfiguration, logger *zap.Logger) (identity.Resolver, func(), error) {
	if cfg.LDAP.URL == "" {
		logger.Warn("no directory configured, trusting the role header")
		return identity.NewHeaderResolver(), func() {}, nil
	}
	groupRoles, err := identity.ParseGroupRoles(cfg.LDAP.GroupRoles)
	if err != nil {
		return nil, nil, err
	}
	dir := identity.NewDirectory(identity.DirectoryConfig{
		URL:           cfg.LDAP.URL,
		BindDN:        cfg.LDAP.BindDN,
		BindPassword:  cfg.LDAP.BindPassword,
		BaseDN:        cfg.LDAP.BaseDN,
		UUIDAttribute: cfg.LDAP.UUIDAttribute,
		GroupRoles:    groupRoles,
	}, logger)
	if err := dir.Connect(); err != nil {
		return nil, nil, err
	}
	return identity.NewDirectoryResolver(dir), dir.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("events backend %s: %w", cfg.EventsBackend, err)
	}
	defer publisher.Close()

	policy, err := newPolicy(cfg)
	if err != nil {
		return err
	}
	checker := permissions.NewChecker(policy)

	resolver, closeIdentity, err := newIdentity(cfg, logger)
	if err != nil {
		return err
	}
	defer closeIdentity()

	services := web.Services{
		Modules: modules.NewService(db, checker, versioning.NewService(logger), publisher, logger,
			modules.Options{AllowedObjectTypes: cfg.AllowedObjectTypes}),
		Snapshots: snapshot.NewService(db, logger),
		Relations: relations.NewService(db, checker, publisher, logger,
			relations.Options{AllowedObjectTypes: cfg.AllowedObjectTypes}),
	}

	logger.Info("lineage starting",
		zap.String("addr", cfg.ListenAddr),
		zap.String("events_backend", cfg.EventsBackend),
		zap.Strings("object_types", cfg.AllowedObjectTypes),
	)
	return web.NewServer(cfg.ListenAddr, services, resolver, logger).Start(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := connect(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(cmd.Context())
}

func runReset(cmd *cobra.Command, args []string) error {
	confirmed, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}
	if !confirmed {
		return fmt.Errorf("reset drops the database; pass --yes to confirm")
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.ManagementDSN == "" {
		return fmt.Errorf("LINEAGE_MANAGEMENT_DSN is required for reset")
	}

	db := database.NewDatabase(cfg.DSN, cfg.ManagementDSN, logger)
	defer db.Close()
	return db.ResetDatabase(cmd.Context())
}
