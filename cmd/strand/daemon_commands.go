package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"strand/internal/beadstore"
	"strand/internal/ipc"
	"strand/internal/logging"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopTimeout  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the strand daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startDaemon(ctx, cmd.OutOrStdout())
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the strand daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopDaemon(ctx, cmd.OutOrStdout())
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the strand daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if err := stopDaemon(ctx, stdout); err != nil {
				return err
			}
			return startDaemon(ctx, stdout)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderStatus(ctx, cmd)
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func startDaemon(ctx *commandContext, stdout io.Writer) error {
	if daemonReachable(ctx) {
		fmt.Fprintln(stdout, "Daemon already running")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	fmt.Fprintln(stdout, "Daemon not running, launching...")
	launch := exec.Command(exe, daemonLaunchArgs(ctx)...)
	launch.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	launch.Stdin = nil
	launch.Stdout = nil
	launch.Stderr = nil
	if err := launch.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	if err := launch.Process.Release(); err != nil {
		return fmt.Errorf("detach daemon process: %w", err)
	}

	deadline := time.Now().Add(daemonStartTimeout)
	for time.Now().Before(deadline) {
		if daemonReachable(ctx) {
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become reachable within %s", daemonStartTimeout)
}

func stopDaemon(ctx *commandContext, stdout io.Writer) error {
	// The PID file is gone by the time the IPC stop returns, so capture the
	// daemon's identity before asking it to stop.
	pid := readDaemonPID(ctx)
	stopped := false
	if client, err := ctx.dialClient(); err == nil {
		if status, statusErr := client.Status(); statusErr == nil && status.PID > 0 {
			pid = status.PID
		}
		if _, stopErr := client.Stop(); stopErr == nil {
			stopped = true
		}
		client.Close()
	}

	if !stopped && pid <= 0 {
		fmt.Fprintln(stdout, "Daemon is not running")
		return nil
	}

	if stopped && waitDaemonGone(ctx, daemonStopTimeout) {
		fmt.Fprintln(stdout, "Daemon stopped")
		return nil
	}

	if pid > 0 && pid != os.Getpid() {
		fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", pid)
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			return fmt.Errorf("signal daemon process %d: %w", pid, err)
		}
		if !waitDaemonGone(ctx, daemonStopTimeout) {
			return fmt.Errorf("daemon process %d did not exit within %s", pid, daemonStopTimeout)
		}
	}
	fmt.Fprintln(stdout, "Daemon stopped")
	return nil
}

// waitDaemonGone polls the socket until the daemon stops answering.
func waitDaemonGone(ctx *commandContext, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemonReachable(ctx) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

func renderStatus(ctx *commandContext, cmd *cobra.Command) error {
	cfg := ctx.configValue()
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	var status *ipc.StatusResponse
	if client, err := ctx.dialClient(); err == nil {
		status, err = client.Status()
		client.Close()
		if err != nil {
			return err
		}
	}

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if status == nil {
		fmt.Fprintln(stdout, renderStatusLine("Running", statusWarn, "no (socket unreachable)", colorize))
	} else {
		kind := statusOK
		if !status.Running {
			kind = statusWarn
		}
		fmt.Fprintln(stdout, renderStatusLine("Running", kind, yesNo(status.Running), colorize))
		fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
		if status.LastBeadID != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last bead", statusInfo, status.LastBeadID, colorize))
		}
		if status.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
		}
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Paths", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if cfg != nil {
		fmt.Fprintln(stdout, renderStatusLine("Beads", statusInfo, cfg.Paths.BeadsDir, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Work", statusInfo, cfg.Paths.WorkDir, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Logs", statusInfo, cfg.Paths.LogDir, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Truth ledger", statusInfo, cfg.Paths.TruthPath, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Queue Status", colorize) {
		fmt.Fprintln(stdout, line)
	}

	stats := map[string]int{}
	if status != nil {
		stats = status.QueueStats
	} else if cfg != nil {
		store, err := beadstore.Open(cfg, logging.NewNop())
		if err != nil {
			return err
		}
		stats, err = store.Stats(cmd.Context())
		if err != nil {
			return err
		}
	}

	rows := buildQueueStatusRows(stats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return nil
	}
	table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprint(stdout, table)
	return nil
}

func daemonReachable(ctx *commandContext) bool {
	client, err := ctx.dialClient()
	if err != nil {
		return false
	}
	defer client.Close()
	_, err = client.Status()
	return err == nil
}

func daemonLaunchArgs(ctx *commandContext) []string {
	args := []string{"daemon"}
	if ctx.configFlag != nil {
		if path := strings.TrimSpace(*ctx.configFlag); path != "" {
			args = append(args, "--config", path)
		}
	}
	return args
}

func readDaemonPID(ctx *commandContext) int {
	cfg := ctx.configValue()
	if cfg == nil {
		return 0
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "strand.pid"))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
