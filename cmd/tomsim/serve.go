package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/tomsim/monitoring"
	"github.com/sarchlab/tomsim/timing/core"
)

var (
	servePort   int
	serveConfig string
	serveOpen   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the simulator over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true

		port := servePort
		if port == 0 {
			port = portFromEnv()
		}

		c := core.NewCore(loadConfig(serveConfig))
		monitor := monitoring.NewMonitor(c)
		if port != 0 {
			monitor = monitor.WithPortNumber(port)
		}

		if err := monitor.StartServer(); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}

		if serveOpen {
			url := fmt.Sprintf("http://localhost:%d", monitor.Port())
			if err := browser.OpenURL(url); err != nil {
				log.Printf("Could not open browser: %v", err)
			}
		}

		select {}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"port to listen on (TOMSIM_PORT or a random port if 0)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "",
		"JSON machine configuration file (default configuration if empty)")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false,
		"open the served address in a browser")

	rootCmd.AddCommand(serveCmd)
}

func portFromEnv() int {
	v := os.Getenv("TOMSIM_PORT")
	if v == "" {
		return 0
	}

	port, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Bad TOMSIM_PORT %q: %v", v, err)
	}
	return port
}
