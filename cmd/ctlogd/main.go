// Command ctlogd wires together one node of the CT log coordination
// engine: entry database, consistent store, leader election, tree
// signer and cluster state controller. Key loading, the HTTP frontend
// and the persistent entry database backend are all external
// collaborators wired in here only at their interfaces.
package main

import (
	"context"
	"crypto"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/yungchin/certificate-transparency/cluster"
	"github.com/yungchin/certificate-transparency/ctcrypto"
	"github.com/yungchin/certificate-transparency/ctlog"
	"github.com/yungchin/certificate-transparency/election"
	"github.com/yungchin/certificate-transparency/election/etcdelection"
	"github.com/yungchin/certificate-transparency/internal/clock"
	"github.com/yungchin/certificate-transparency/logsigner"
	"github.com/yungchin/certificate-transparency/merkle/rfc6962"
	"github.com/yungchin/certificate-transparency/storage/consistentstore"
	"github.com/yungchin/certificate-transparency/storage/entrydb"
)

var (
	logIDs      = flag.String("log_ids", "", "comma-separated identifiers of the logs this node serves")
	nodeID      = flag.String("node_id", "", "identifier of this cluster node")
	etcdServers = flag.String("etcd_servers", "localhost:2379", "comma-separated etcd endpoints")
)

// newSigningKey is a placeholder for externally supplied key loading:
// per scope, this repository treats key material as supplied by the
// caller at its interface, never parsed or stored here.
func newSigningKey(logID string) (crypto.Signer, error) {
	return nil, os.ErrNotExist
}

// managedLog bundles everything one log needs to run its own
// independently elected sequencing loop and cluster state pass. One
// process holds one of these per log ID it's configured to serve, so
// a single ctlogd can serve a fleet of logs the way a single
// OperationManager in the teacher drives multiple trees.
type managedLog struct {
	logID      string
	treeSigner *logsigner.Signer
	controller *cluster.Controller
	election   election.Election
}

func newManagedLog(client *clientv3.Client, logID, nodeID string) (*managedLog, error) {
	cfg := ctlog.NewConfig(logID)
	hasher := rfc6962.New()
	db := entrydb.NewMemoryDB()
	store := consistentstore.NewEtcdStore(client, logID)

	key, err := newSigningKey(logID)
	if err != nil {
		return nil, fmt.Errorf("load signing key for log %q (external collaborator, not implemented here): %w", logID, err)
	}
	signer := ctcrypto.NewSigner([32]byte{}, key)

	ts := clock.System{}
	treeSigner := logsigner.New(cfg, hasher, db, store, signer, ts)
	controller := cluster.New(cfg, nodeID, store, db, ts)

	electionFactory := &etcdelection.Factory{Client: client, LeaseTTL: cfg.LeaderLeaseTTL}
	elec, err := electionFactory.NewElection(context.Background(), logID)
	if err != nil {
		return nil, fmt.Errorf("construct election for log %q: %w", logID, err)
	}

	return &managedLog{logID: logID, treeSigner: treeSigner, controller: controller, election: elec}, nil
}

func (m *managedLog) run(ctx context.Context) {
	go m.treeSigner.RunLoop(ctx, m.election)
	go m.controller.RunLoop(ctx)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if *logIDs == "" || *nodeID == "" {
		glog.Exit("log_ids and node_id are required")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(*etcdServers, ","),
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		glog.Exitf("connect to etcd: %v", err)
	}
	defer client.Close()

	var managed []*managedLog
	for _, logID := range strings.Split(*logIDs, ",") {
		m, err := newManagedLog(client, logID, *nodeID)
		if err != nil {
			glog.Exitf("set up log %q: %v", logID, err)
		}
		managed = append(managed, m)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	for _, m := range managed {
		m.run(ctx)
	}

	<-ctx.Done()
	glog.Infof("ctlogd: shutting down")
}
