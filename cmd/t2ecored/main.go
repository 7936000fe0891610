// Command t2ecored is the trace2e node daemon: it loads a node's YAML
// configuration, wires the Sequencer, Provenance, Compliance, and P2M
// Orchestrator, and serves the M2M/P2M/O2M gRPC surfaces (spec §6),
// following go.ref's cmd/* thin-main convention (flag parsing, a setup
// step, then serve-until-signal) without its v23/cmdline plumbing.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/trace2e/t2ecore/compliance"
	"github.com/trace2e/t2ecore/config"
	"github.com/trace2e/t2ecore/consent"
	"github.com/trace2e/t2ecore/p2m"
	"github.com/trace2e/t2ecore/provenance"
	"github.com/trace2e/t2ecore/sequencer"
	"github.com/trace2e/t2ecore/sequencer/waitqueue"
	"github.com/trace2e/t2ecore/transport"
)

func main() {
	configPath := flag.String("config", "/etc/trace2e/node.yaml", "path to the node's YAML configuration file")
	m2mAddr := flag.String("m2m-addr", ":4300", "listen address for the M2M (peer-to-peer) gRPC surface")
	p2mAddr := flag.String("p2m-addr", ":4301", "listen address for the P2M (interception library) gRPC surface")
	o2mAddr := flag.String("o2m-addr", ":4302", "listen address for the O2M (operator) gRPC surface")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(1)
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log)

	node, err := config.Load(*configPath)
	if err != nil {
		entry.WithError(err).Fatal("loading node configuration")
	}
	entry = entry.WithField("node_id", node.NodeID)

	_, m2mPort, err := net.SplitHostPort(*m2mAddr)
	if err != nil {
		entry.WithError(err).Fatalf("parsing -m2m-addr %q", *m2mAddr)
	}
	dialer := transport.NewCachingDialer(m2mPort)

	seq := sequencer.New(entry)
	queue := waitqueue.New(seq, node.Sequencer.MaxRetries, entry)
	prov := provenance.New(node.NodeID)
	consentSvc := consent.New()
	complianceEngine := compliance.New(compliance.Config{
		SelfNodeID:               node.NodeID,
		ConsentTimeout:           node.ConsentTimeout(),
		ConfidentialityCacheSize: node.Compliance.ConfidentialityCacheSize,
	}, consentSvc, entry)

	m2mClient := transport.NewGRPCM2MClient(node.NodeID, dialer).WithCallTimeout(node.M2MDialTimeout())
	orchestrator := p2m.New(p2m.Config{
		SelfNodeID: node.NodeID,
		Mode:       node.P2MMode(),
		Sequencer:  queue,
		Provenance: prov,
		Compliance: complianceEngine,
		M2M:        m2mClient,
	}, entry)

	servers := []*grpc.Server{
		serve(entry, *m2mAddr, "m2m", transport.NewM2MServer(complianceEngine, prov, entry).ServiceDesc()),
		serve(entry, *p2mAddr, "p2m", transport.NewP2MServer(orchestrator, entry).ServiceDesc()),
		serve(entry, *o2mAddr, "o2m", transport.NewO2MServer(complianceEngine, consentSvc, prov, entry).ServiceDesc()),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	entry.Info("shutting down")
	for _, s := range servers {
		s.GracefulStop()
	}
	if err := dialer.Close(); err != nil {
		entry.WithError(err).Warn("closing peer connections")
	}
}

func serve(log *logrus.Entry, addr, name string, desc *grpc.ServiceDesc) *grpc.Server {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).Fatalf("listening for %s surface on %s", name, addr)
	}
	srv := grpc.NewServer()
	srv.RegisterService(desc, nil)
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.WithError(err).Errorf("%s server stopped serving", name)
		}
	}()
	log.WithField("addr", addr).Infof("serving %s surface", name)
	return srv
}
