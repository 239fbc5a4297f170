// Command consensusctl is the operator tool for a consensus module node,
// grounded on the CLI surface. File-based verbs (recording-log,
// sort-recording-log, seed-recording-log-from-snapshot,
// invalidate-latest-snapshot, recovery-plan, describe-latest-cm-snapshot,
// list-members) operate directly on a stopped node's on-disk recording log
// and archive; live verbs (suspend, resume, snapshot, shutdown, abort,
// remove-member, remove-passive, backup-query) dial the running node's
// consensus channel over gRPC and send a control frame, the way the
// teacher's transport_grpc.go dials a peer endpoint on demand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodeforge/consensus"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "consensusctl:", err)
		os.Exit(-1)
	}
	os.Exit(0)
}

func newRootCommand() *cobra.Command {
	cfg := &ctlConfig{}
	root := &cobra.Command{
		Use:   "consensusctl",
		Short: "Operator tool for a consensus module node",
	}
	root.PersistentFlags().StringVar(&cfg.clusterDir, "cluster-dir", ".", "directory holding the node's recording log and mark file")
	root.PersistentFlags().StringVar(&cfg.archiveDir, "archive-dir", "", "path to the node's bbolt-backed archive file (for snapshot-reading verbs)")
	root.PersistentFlags().StringVar(&cfg.nodeAddr, "node-addr", "127.0.0.1:9090", "gRPC address of the running node's consensus channel, for live verbs")
	root.PersistentFlags().Int32Var(&cfg.streamId, "consensus-stream-id", 0, "consensus channel streamId")
	root.PersistentFlags().DurationVar(&cfg.toolTimeout, "tool-timeout", 0, "overrides CONSENSUSCTL_TOOL_TIMEOUT_NS")
	root.PersistentFlags().DurationVar(&cfg.toolDelay, "tool-delay", 0, "overrides CONSENSUSCTL_TOOL_DELAY_NS")

	root.AddCommand(
		newDescribeCommand(cfg),
		newPidCommand(cfg),
		newRecoveryPlanCommand(cfg),
		newRecordingLogCommand(cfg),
		newSortRecordingLogCommand(cfg),
		newSeedRecordingLogCommand(cfg),
		newErrorsCommand(cfg),
		newInvalidateLatestSnapshotCommand(cfg),
		newDescribeLatestSnapshotCommand(cfg),
		newListMembersCommand(cfg),
		newRemoveMemberCommand(cfg),
		newRemovePassiveCommand(cfg),
		newBackupQueryCommand(cfg),
		newToggleCommand(cfg, "suspend", consensus.ToggleSuspend),
		newToggleCommand(cfg, "resume", consensus.ToggleResume),
		newToggleCommand(cfg, "snapshot", consensus.ToggleSnapshot),
		newToggleCommand(cfg, "shutdown", consensus.ToggleShutdown),
		newToggleCommand(cfg, "abort", consensus.ToggleAbort),
	)
	return root
}
