// Command consensusnode runs one cluster member: it wires the consensus
// Agent to a gRPC consensus transport, a bbolt-backed archive, a
// Prometheus metrics endpoint, and the clusterkv demo application service,
// then drives the Agent's tick loop with a BackoffIdleStrategy.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nodeforge/consensus"
	"github.com/nodeforge/consensus/archive"
	"github.com/nodeforge/consensus/internal/clusterkv"
	"github.com/nodeforge/consensus/metrics"
	"github.com/nodeforge/consensus/recordinglog"
	"github.com/nodeforge/consensus/transport"
	"github.com/nodeforge/consensus/transport/grpcnet"
)

func main() {
	flags := nodeFlags{}
	flag.IntVar(&flags.memberId, "member-id", 0, "this node's cluster memberId")
	flag.StringVar(&flags.listenAddr, "listen-addr", "127.0.0.1:9090", "address this node's consensus transport listens on")
	flag.StringVar(&flags.metricsAddr, "metrics-addr", "127.0.0.1:9100", "address to serve /metrics on")
	flag.StringVar(&flags.clusterDir, "cluster-dir", ".", "directory holding the recording log and mark file")
	flag.StringVar(&flags.archiveDir, "archive-dir", "cluster.archive", "path to the bbolt-backed archive file")
	flag.StringVar(&flags.members, "members", "", "comma-separated id=host:port entries for every active member, including self")
	flag.IntVar(&flags.serviceCount, "service-count", 1, "number of application services whose snapshots a recovery plan requires")
	flag.IntVar(&flags.consensusStreamId, "consensus-stream-id", 0, "consensus channel streamId")
	flag.Parse()

	if err := run(flags); err != nil {
		fmt.Fprintln(os.Stderr, "consensusnode:", err)
		os.Exit(1)
	}
}

func run(flags nodeFlags) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	specs, err := parseMembers(flags.members)
	if err != nil {
		return err
	}
	memberId := int32(flags.memberId)
	members := buildMemberTable(memberId, specs)
	if members.Self() == nil {
		return fmt.Errorf("memberId %d not present in --members", memberId)
	}

	cfg := consensus.NewConfig(memberId)

	recLog, err := recordinglog.OpenRecordingLog(
		filepath.Join(flags.clusterDir, "recording.log"),
		recordinglog.FileSyncLevel(cfg.FileSyncLevel),
	)
	if err != nil {
		return fmt.Errorf("open recording log: %w", err)
	}
	defer recLog.Close()

	var arc archive.Archive
	if flags.archiveDir != "" {
		bbolt, err := archive.OpenBboltArchive(flags.archiveDir)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer bbolt.Close()
		arc = bbolt
	} else {
		arc = archive.NewMemoryArchive()
	}

	reg := prometheus.NewRegistry()
	counters := metrics.NewCounters(reg, memberId)
	go serveMetrics(flags.metricsAddr, reg, sugar)

	grpcServer := grpcnet.NewServer()
	lis, err := net.Listen("tcp", flags.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", flags.listenAddr, err)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			sugar.Errorw("consensus transport server stopped", "error", err)
		}
	}()
	defer grpcServer.Stop()

	transp := grpcnet.NewTransport(func(target string) (*grpc.ClientConn, error) {
		return grpc.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})

	kv := clusterkv.NewStateMachine()

	var agent *consensus.Agent
	agent = consensus.NewAgent(cfg, consensus.SystemClock{}, members, consensus.AgentCollaborators{
		Transport: transp,
		Archive:   arc,
		Log:       recLog,
		Metrics:   counters,
		Logger:    sugar,
		ServiceHandler: func(serviceId int32, clusterSessionId int64, payload []byte, position int64) {
			cmd, err := clusterkv.DecodeCommand(payload)
			if err != nil {
				sugar.Warnw("dropped malformed kv command", "error", err)
				return
			}
			kv.Apply(agent.LeadershipTermId(), position, cmd)
		},
	}, flags.serviceCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self := members.Self()
	electionAdapter := consensus.NewConsensusAdapter(ctx, transp, members, int32(flags.consensusStreamId), sugar)

	view := consensus.RecordingElectionView{}
	if last, ok := recLog.FindLastTerm(); ok {
		view.LastLeadershipTermId = last.LeadershipTermId
		view.LastLogPosition = last.LogPosition
		view.RecordingId = last.RecordingId
	} else {
		recordingId, err := arc.StartRecording(ctx, self.Endpoints.Archive, int32(flags.consensusStreamId), archive.SourceLocal)
		if err != nil {
			return fmt.Errorf("start initial recording: %w", err)
		}
		view.RecordingId = recordingId
	}

	hooks := consensus.ElectionHooks{
		ReplicateLog: func(nowNs int64, leaderMemberId int32) bool { return true },
		ReplayTerm:   func(nowNs int64) bool { return true },
		JoinLiveLog:  func(nowNs int64) bool { return true },
		AwaitServiceAcks: func(nowNs int64, termBaseLogPosition int64) bool {
			return agent.ServiceAcked()
		},
	}

	if err := agent.OnStart(ctx, transport.Endpoint(self.Endpoints.Consensus), int32(flags.consensusStreamId), transp, view, electionAdapter, hooks); err != nil {
		return fmt.Errorf("agent OnStart: %w", err)
	}
	defer agent.OnClose()

	sugar.Infow("consensus node started", "memberId", memberId, "listenAddr", flags.listenAddr, "metricsAddr", flags.metricsAddr)

	idle := consensus.NewBackoffIdleStrategy(100, 100, time.Millisecond, 100*time.Millisecond)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	clock := consensus.SystemClock{}
	for {
		select {
		case <-sigCh:
			sugar.Infow("shutdown signal received")
			return nil
		default:
		}
		work := agent.DoWork(clock.NowNs())
		idle.Idle(work)
		if agent.State() == consensus.ModuleQuitting {
			sugar.Infow("module reached quitting state, exiting tick loop")
			return nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorw("metrics server stopped", "error", err)
	}
}
