package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kvantos/patchbay/internal/domain"
	"github.com/kvantos/patchbay/internal/events"
	"github.com/kvantos/patchbay/internal/remote"
	"github.com/kvantos/patchbay/internal/shell"
	"github.com/kvantos/patchbay/internal/supervisor"
)

var (
	backendBin string
	baseURL    string
)

func init() {
	for _, c := range []*cobra.Command{startCmd, stopCmd, healthCmd, configCmd, runCmd} {
		c.PersistentFlags().StringVar(&backendBin, "backend", "", "path to the daemon executable (defaults to this binary)")
		c.PersistentFlags().StringVar(&baseURL, "base-url", remote.DefaultBaseURL, "daemon base URL")
		rootCmd.AddCommand(c)
	}

	configCmd.AddCommand(configGetCmd, configSetCmd)
	configSetCmd.Flags().StringVar(&setServerURL, "server-url", "", "base URL files are downloaded from")
	configSetCmd.Flags().StringVar(&setTargetFolder, "target-folder", "patcher", "local folder kept in sync")
	configSetCmd.Flags().StringVar(&setFileListURL, "filelist-url", "", "URL of the file manifest")
	configSetCmd.Flags().Uint64Var(&setSpeedLimit, "speed-limit", 0, "download speed limit in KiB/s (0 = unlimited)")
}

// newShell wires the supervisor, remote client and event bus into the
// facade the commands below drive. The supervised child is this same
// binary invoked in its daemon role.
func newShell() (*shell.Facade, *events.Bus, error) {
	bin := backendBin
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, nil, fmt.Errorf("cannot locate own executable: %w", err)
		}
		bin = exe
	}

	bus := events.NewBus()
	sup := supervisor.New(bin, []string{"daemon", "--config", configPath}, bus)
	client := remote.NewClient(baseURL)
	return shell.NewFacade(sup, client, bus), bus, nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the patcher daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, _, err := newShell()
		if err != nil {
			return err
		}
		result, err := facade.StartBackend()
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the patcher daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, _, err := newShell()
		if err != nil {
			return err
		}
		result, err := facade.StopBackend()
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the daemon is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, _, err := newShell()
		if err != nil {
			return err
		}
		if !facade.CheckHealth() {
			fmt.Println("backend is down")
			os.Exit(1)
		}
		fmt.Println("backend is healthy")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or write the daemon configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the daemon configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, _, err := newShell()
		if err != nil {
			return err
		}
		cfg, err := facade.LoadConfig()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var (
	setServerURL    string
	setTargetFolder string
	setFileListURL  string
	setSpeedLimit   uint64
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Push a configuration to the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, _, err := newShell()
		if err != nil {
			return err
		}
		result, err := facade.SaveConfig(domain.AppConfig{
			ServerURL:          setServerURL,
			TargetFolder:       setTargetFolder,
			FileListURL:        setFileListURL,
			DownloadSpeedLimit: setSpeedLimit,
		})
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon, run one update and stream its progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		facade, bus, err := newShell()
		if err != nil {
			return err
		}
		evts := bus.Subscribe()

		if _, err := facade.StartBackend(); err != nil {
			return err
		}

		if !facade.CheckHealth() {
			_, _ = facade.StopBackend()
			return fmt.Errorf("daemon did not become healthy")
		}

		cfg, err := facade.LoadConfig()
		if err != nil {
			_, _ = facade.StopBackend()
			return err
		}

		if _, err := facade.StartUpdate(cfg); err != nil {
			_, _ = facade.StopBackend()
			return err
		}

		renderEvents(evts)

		// Tears the daemon down and exits 0.
		facade.CloseApp()
		return nil
	},
}

// renderEvents prints the poll run to stdout. update_complete and
// update_error may both fire on the same terminal poll, so after the
// first terminal event we linger briefly for its companion instead of
// returning straight away. A run that loses the daemon ends without a
// terminal event; progress normally arrives every 500ms, so prolonged
// silence means the run is gone.
func renderEvents(evts <-chan events.Event) {
	var terminal bool
	for {
		wait := 5 * time.Second
		if terminal {
			wait = 500 * time.Millisecond
		}

		var evt events.Event
		select {
		case evt = <-evts:
		case <-time.After(wait):
			if !terminal {
				fmt.Println("\nlost contact with the daemon")
			}
			return
		}

		switch evt.Name {
		case events.UpdateProgress:
			p := evt.Payload.(events.ProgressPayload)
			fmt.Printf("\rprogress: %d/%d", p.Progress, p.Total)
		case events.LogMessage:
			entry := evt.Payload.(domain.LogEntry)
			fmt.Printf("\n[%s] %s", entry.Type, entry.Message)
		case events.UpdateComplete:
			report := evt.Payload.(domain.StatusReport)
			fmt.Printf("\nupdate complete: %d updated, %d skipped, %d failed (%d verified, %d corrupted)\n",
				len(report.Updated), len(report.Skipped), len(report.Failed),
				len(report.Verification.Verified), len(report.Verification.Corrupted))
			terminal = true
		case events.UpdateError:
			fmt.Printf("\nupdate error: %v\n", evt.Payload)
			terminal = true
		}
	}
}
