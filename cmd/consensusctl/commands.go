package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nodeforge/consensus"
	"github.com/nodeforge/consensus/archive"
	"github.com/nodeforge/consensus/recordinglog"
	"github.com/nodeforge/consensus/snapshot"
	"github.com/nodeforge/consensus/transport"
	"github.com/nodeforge/consensus/transport/grpcnet"
	"github.com/nodeforge/consensus/wire"
)

func openLog(cfg *ctlConfig) (*recordinglog.RecordingLog, error) {
	return recordinglog.OpenRecordingLog(cfg.recordingLogPath(), recordinglog.SyncData)
}

func newDescribeCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print a summary of the node's recording log",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			entries := l.Entries()
			fmt.Printf("recording log: %s (%d entries)\n", cfg.recordingLogPath(), len(entries))
			last, ok := l.FindLastTerm()
			if ok {
				fmt.Printf("last valid term: leadershipTermId=%d termBaseLogPosition=%d logPosition=%d\n",
					last.LeadershipTermId, last.TermBaseLogPosition, last.LogPosition)
			} else {
				fmt.Println("no valid term recorded")
			}
			return nil
		},
	}
}

func newPidCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "pid",
		Short: "Print the running node's process id from its mark file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(cfg.pidPath())
			if err != nil {
				return fmt.Errorf("read mark file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newRecoveryPlanCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "recovery-plan <serviceCount>",
		Short: "Print the RecoveryPlan a restart would derive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceCount, err := parseInt(args[0])
			if err != nil {
				return err
			}
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			var querier recordinglog.ArchiveQuerier
			if cfg.archiveDir != "" {
				a, err := archive.OpenBboltArchive(cfg.archiveDir)
				if err != nil {
					return err
				}
				defer a.Close()
				querier = archive.QuerierAdapter{Archive: a}
			}
			plan, err := l.CreateRecoveryPlan(querier, serviceCount, 0)
			if err != nil {
				return err
			}
			fmt.Printf("lastLeadershipTermId=%d lastTermBaseLogPosition=%d appendedLogPosition=%d hasSnapshot=%v\n",
				plan.LastLeadershipTermId, plan.LastTermBaseLogPosition, plan.AppendedLogPosition, plan.HasSnapshot())
			return nil
		},
	}
}

func newRecordingLogCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "recording-log",
		Short: "Dump every entry in logical sort order",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			for _, e := range l.Entries() {
				fmt.Printf("%-8s termId=%-6d termBase=%-10d logPos=%-10d serviceId=%-4d recordingId=%-6d valid=%v idx=%d\n",
					e.Type, e.LeadershipTermId, e.TermBaseLogPosition, e.LogPosition, e.ServiceId, e.RecordingId, e.IsValid, e.EntryIndex)
			}
			return nil
		},
	}
}

func newSortRecordingLogCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sort-recording-log",
		Short: "Rewrite the recording log file in logical sort order",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.SortRecordingLog()
		},
	}
}

func newSeedRecordingLogCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-recording-log-from-snapshot <serviceCount>",
		Short: "Rewrite the recording log to contain only the latest snapshot group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceCount, err := parseInt(args[0])
			if err != nil {
				return err
			}
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.SeedRecordingLogFromSnapshot(serviceCount)
		},
	}
}

func newErrorsCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "Print the node's accumulated error log",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(cfg.errorsPath())
			if os.IsNotExist(err) {
				fmt.Println("no errors recorded")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newInvalidateLatestSnapshotCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-latest-snapshot",
		Short: "Mark the latest consensus-module snapshot group invalid",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			return l.InvalidateLatestSnapshot()
		},
	}
}

func newDescribeLatestSnapshotCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "describe-latest-cm-snapshot",
		Short: "Decode and print the latest consensus-module snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.archiveDir == "" {
				return fmt.Errorf("--archive-dir is required")
			}
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			var latest *recordinglog.Entry
			for _, e := range l.Entries() {
				if e.Type != recordinglog.EntryTypeSnapshot || !e.IsValid || e.ServiceId != recordinglog.ServiceIdConsensusModule {
					continue
				}
				if latest == nil || e.LeadershipTermId > latest.LeadershipTermId ||
					(e.LeadershipTermId == latest.LeadershipTermId && e.LogPosition > latest.LogPosition) {
					ev := e
					latest = &ev
				}
			}
			if latest == nil {
				fmt.Println("no consensus-module snapshot present")
				return nil
			}
			a, err := archive.OpenBboltArchive(cfg.archiveDir)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := context.Background()
			stop, err := a.GetStopPosition(ctx, latest.RecordingId)
			if err != nil {
				return err
			}
			data, err := a.Read(ctx, latest.RecordingId, 0, stop)
			if err != nil {
				return err
			}
			loaded, err := snapshot.Load(bytes.NewReader(data), 0, 0)
			if err != nil {
				return err
			}
			fmt.Printf("snapshot leadershipTermId=%d logPosition=%d nextSessionId=%d openSessions=%d pendingServices=%d\n",
				loaded.Begin.LeadershipTermId, loaded.Begin.LogPosition, loaded.State.NextSessionId, len(loaded.Sessions), len(loaded.PendingByService))
			fmt.Printf("members: highMemberId=%d encoded=%q\n", loaded.Members.HighMemberId, loaded.Members.EncodedMembers)
			return nil
		},
	}
}

// newListMembersCommand is file-based rather than live: the consensus wire
// protocol carries membership changes (ClusterMembersChange) but has no
// request/response query pair, so this verb derives the member view the
// node itself would recover with rather than round-tripping to it live.
func newListMembersCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list-members",
		Short: "Print the cluster membership recorded in the recording log",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(cfg)
			if err != nil {
				return err
			}
			defer l.Close()
			last, ok := l.FindLastTerm()
			if !ok {
				fmt.Println("no leadership term recorded; membership unknown")
				return nil
			}
			fmt.Printf("leadershipTermId=%d logPosition=%d (member snapshot is carried in the cluster-members snapshot record; use describe-latest-cm-snapshot)\n",
				last.LeadershipTermId, last.LogPosition)
			return nil
		},
	}
}

func newRemoveMemberCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-member <memberId>",
		Short: "Schedule an active member for removal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberId, err := parseInt(args[0])
			if err != nil {
				return err
			}
			frame := (&wire.RemoveMember{MemberId: int32(memberId)}).Marshal()
			return sendFrame(cfg, frame)
		},
	}
}

func newRemovePassiveCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-passive <memberId>",
		Short: "Remove a passive member immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberId, err := parseInt(args[0])
			if err != nil {
				return err
			}
			frame := (&wire.RemoveMember{MemberId: int32(memberId)}).Marshal()
			return sendFrame(cfg, frame)
		},
	}
}

func newBackupQueryCommand(cfg *ctlConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-query [delayNs]",
		Short: "Query for the current leader without joining the cluster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay := cfg.effectiveToolDelay()
			if len(args) == 1 {
				ns, err := parseInt(args[0])
				if err != nil {
					return err
				}
				delay = time.Duration(ns)
			}
			time.Sleep(delay)
			token := uuid.New()
			fmt.Printf("backup-query correlationId=%s\n", token)
			frame := (&wire.BackupQuery{CorrelationId: int64(binary.LittleEndian.Uint64(token[:8]))}).Marshal()
			return sendFrame(cfg, frame)
		},
	}
}

func newToggleCommand(cfg *ctlConfig, name string, toggle consensus.ControlToggle) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Request the running node to %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendToggle(cfg, toggle)
		},
	}
}

func sendToggle(cfg *ctlConfig, toggle consensus.ControlToggle) error {
	return sendFrame(cfg, consensus.EncodeControlToggle(toggle))
}

func sendFrame(cfg *ctlConfig, frame []byte) error {
	transp := grpcnet.NewTransport(func(target string) (*grpc.ClientConn, error) {
		return grpc.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.effectiveToolTimeout())
	defer cancel()
	pub, err := transp.AddPublication(ctx, transport.Endpoint(cfg.nodeAddr), cfg.streamId)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.nodeAddr, err)
	}
	defer pub.Close()
	if result := pub.Offer(frame); result < 0 {
		return fmt.Errorf("offer rejected: result=%d", result)
	}
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
