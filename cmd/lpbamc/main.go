// Command lpbamc builds the descriptor queues of a scenario file, and
// optionally lists them, dumps the arena as Intel HEX and runs the
// scenario script on the simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"lpbam-go/scenario"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to the scenario file")
	hexPath := flag.String("hex", "", "Write the arena image as Intel HEX to this file")
	list := flag.Bool("list", false, "Print every queue node")
	run := flag.Bool("run", false, "Run the scenario script on the simulator")
	metrics := flag.Bool("metrics", false, "Print channel counters after -run")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	printVersion := flag.Bool("version", false, "Print version")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("-config flag must be set")
		flag.Usage()
		os.Exit(1)
	}

	l := logrus.New()
	l.Out = os.Stdout
	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Printf("failed to parse -log-level: %s\n", err)
		os.Exit(1)
	}
	l.SetLevel(lvl)

	f, err := scenario.LoadFile(*configPath)
	if err != nil {
		l.WithError(err).Fatal("Failed to load scenario")
	}
	built, err := scenario.Build(f)
	if err != nil {
		l.WithError(err).Fatal("Failed to build queues")
	}
	l.WithFields(logrus.Fields{"queues": built.Order, "used": built.Arena.Used()}).Info("Queues built")

	if *list {
		if err := built.Listing(os.Stdout); err != nil {
			l.WithError(err).Fatal("Failed to list queues")
		}
	}

	if *hexPath != "" {
		if err := writeHex(built, *hexPath); err != nil {
			l.WithError(err).Fatal("Failed to write hex image")
		}
		l.WithField("path", *hexPath).Info("Arena image written")
	}

	if !*run {
		return
	}
	reg := prometheus.NewRegistry()
	r, err := scenario.NewRunner(f, built, scenario.WithLogger(l), scenario.WithRegisterer(reg), scenario.WithOutput(os.Stdout))
	if err != nil {
		l.WithError(err).Fatal("Failed to start simulator")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := r.Exec(ctx, f.Script); err != nil {
		l.WithError(err).Error("Scenario failed")
		cancel()
		os.Exit(2)
	}
	l.Info("Scenario passed")

	if *metrics {
		if err := printMetrics(reg); err != nil {
			l.WithError(err).Error("Failed to gather metrics")
		}
	}
}

func writeHex(b *scenario.Built, path string) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.DumpHex(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func printMetrics(g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			fmt.Printf("%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}
