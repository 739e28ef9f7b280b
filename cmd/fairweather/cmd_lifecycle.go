package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, reloadCmd)
}

// runningPID reads the serve process's PID and checks it is alive.
func runningPID() (int, error) {
	cfg := loadConfig()
	data, err := os.ReadFile(pidPath(cfg.DataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("fairweather is not running (no PID file)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("fairweather is not running (process %d not found)", pid)
	}
	return pid, nil
}

func signalServe(sig syscall.Signal) (int, error) {
	pid, err := runningPID()
	if err != nil {
		return 0, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process: %w", err)
	}
	if err := proc.Signal(sig); err != nil {
		return 0, fmt.Errorf("send %v: %w", sig, err)
	}
	return pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running serve process",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalServe(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to fairweather (PID %d).\n", pid)
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make a running serve process re-read its briefings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalServe(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGHUP to fairweather (PID %d); briefings will reload.\n", pid)
		return nil
	},
}
