// Package node defines the bonding engine node: it opens the database, wires
// the engine services together and handles the process lifecycle.
package node

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/db/kv"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/evidence"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/flags"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/ledger"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/relay"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/reputation"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement"
	mock "github.com/bytewizard42i/selectConnect-app-pro/bonding/settlement/testing"
	"github.com/bytewizard42i/selectConnect-app-pro/bonding/slashing"
	"github.com/bytewizard42i/selectConnect-app-pro/shared"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/cmd"
	"github.com/bytewizard42i/selectConnect-app-pro/shared/prometheus"
)

var log = logrus.WithField("prefix", "node")

const bondingDBDirName = "bondingdata"
const evidenceKeyFileName = "evidence.key"

// BondingNode handles the lifecycle of the entire system and registers
// services to a service registry.
type BondingNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *shared.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       db.Database
}

// NewBondingNode creates a new node instance, sets up configuration options,
// and registers every required service.
func NewBondingNode(cliCtx *cli.Context) (*BondingNode, error) {
	registry := shared.NewServiceRegistry()
	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &BondingNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: registry,
		stop:     make(chan struct{}),
	}

	if err := node.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerServices(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerPrometheusService(cliCtx); err != nil {
		cancel()
		return nil, err
	}
	return node, nil
}

// Start the bonding node and kick off every registered service.
func (n *BondingNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the bonding node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *BondingNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping bonding node")
	n.services.StopAll()
	if err := n.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	n.cancel()
	close(n.stop)
}

func (n *BondingNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	dbPath := filepath.Join(baseDir, bondingDBDirName)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("databasePath", dbPath).Info("Checking DB")
	d, err := db.NewDB(dbPath, &kv.Config{
		EvidenceCacheItems: int64(cliCtx.Int(flags.EvidenceCacheItemsFlag.Name)),
	})
	if err != nil {
		return err
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your bonding database stored in your data directory. " +
			"Bonds, reputation records and evidence will be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(dbPath, &kv.Config{
			EvidenceCacheItems: int64(cliCtx.Int(flags.EvidenceCacheItemsFlag.Name)),
		})
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	n.db = d
	return nil
}

func (n *BondingNode) registerServices(cliCtx *cli.Context) error {
	evidenceKey, err := loadOrCreateEvidenceKey(cliCtx)
	if err != nil {
		return err
	}
	evidenceStore, err := evidence.NewStore(n.db, evidenceKey)
	if err != nil {
		return err
	}

	// Without a settlement adapter configured the node runs against the
	// in-memory fake: useful for development, never for production custody.
	var settler settlement.Settler = mock.NewMockSettler()
	var authorizer settlement.Authorizer = mock.NewMockAuthorizer()
	log.Warn("No settlement adapter configured, using in-memory settlement")

	repStore := reputation.NewStore(n.db)
	ledgerSvc := ledger.NewService(n.ctx, &ledger.Config{
		Database:   n.db,
		Reputation: repStore,
		Settler:    settler,
	})
	if err := n.services.RegisterService(ledgerSvc); err != nil {
		return err
	}

	if err := n.services.RegisterService(evidence.NewService(n.ctx, n.db)); err != nil {
		return err
	}

	slashingSvc := slashing.NewService(n.ctx, &slashing.Config{
		Database:   n.db,
		Ledger:     ledgerSvc,
		Evidence:   evidenceStore,
		Settler:    settler,
		Authorizer: authorizer,
	})
	if err := n.services.RegisterService(slashingSvc); err != nil {
		return err
	}

	relaySvc, err := relay.NewService(n.ctx, &relay.Config{
		Ledger:     ledgerSvc,
		Reputation: repStore,
		Evidence:   evidenceStore,
		Settler:    settler,
		Deliverer:  &logDeliverer{},
	})
	if err != nil {
		return err
	}
	return n.services.RegisterService(relaySvc)
}

func (n *BondingNode) registerPrometheusService(cliCtx *cli.Context) error {
	service := prometheus.NewPrometheusService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		n.services,
	)
	return n.services.RegisterService(service)
}

// loadOrCreateEvidenceKey reads the evidence sealing key, generating one on
// first start. The key lives next to the database unless pointed elsewhere.
func loadOrCreateEvidenceKey(cliCtx *cli.Context) ([]byte, error) {
	keyPath := cliCtx.String(flags.EvidenceKeyFileFlag.Name)
	if keyPath == "" {
		keyPath = filepath.Join(cliCtx.String(cmd.DataDirFlag.Name), evidenceKeyFileName)
	}
	enc, err := os.ReadFile(keyPath)
	if err == nil {
		key, err := hex.DecodeString(string(enc))
		if err != nil {
			return nil, errors.Wrapf(err, "malformed evidence key file %s", keyPath)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, errors.Wrap(err, "could not persist evidence key")
	}
	log.WithField("path", keyPath).Info("Generated new evidence sealing key")
	return key, nil
}

// logDeliverer is the development transport: it logs instead of delivering.
type logDeliverer struct{}

func (d *logDeliverer) Deliver(_ context.Context, msg *relay.Message) error {
	log.WithFields(logrus.Fields{
		"context":   msg.ContextID,
		"recipient": msg.Recipient,
	}).Info("Delivering message (log transport)")
	return nil
}
