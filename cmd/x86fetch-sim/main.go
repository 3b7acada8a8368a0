// Command x86fetch-sim drives the fetch-stage core loop standalone:
// it builds a processor from a config file (or built-in defaults),
// steps its cycle driver for a fixed number of cycles, and reports
// per-thread fetch counters. There is no decode/rename/issue/commit
// here — those stages are explicitly out of scope — this is a demo
// harness for the front end alone, not a full CPU.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kausin97/x86fetchsim/internal/bpred"
	"github.com/kausin97/x86fetchsim/internal/btb"
	"github.com/kausin97/x86fetchsim/internal/config"
	"github.com/kausin97/x86fetchsim/internal/core"
	"github.com/kausin97/x86fetchsim/internal/guest"
	"github.com/kausin97/x86fetchsim/internal/icache"
	"github.com/kausin97/x86fetchsim/internal/logging"
	"github.com/kausin97/x86fetchsim/internal/longlat"
	"github.com/kausin97/x86fetchsim/internal/mmu"
	"github.com/kausin97/x86fetchsim/internal/ooo"
	"github.com/kausin97/x86fetchsim/internal/regfile"
	"github.com/kausin97/x86fetchsim/internal/tracecache"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "x86fetch-sim",
		Short: "Cycle-accurate front-end fetch stage simulator",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built in if omitted)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newRunCmd(&configPath, &verbose))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: fetch_kind=%s threads=%d cores=%d\n",
				cfg.FetchKind, cfg.NumThreads, cfg.NumCores)
			return nil
		},
	}
}

func newRunCmd(configPath *string, verbose *bool) *cobra.Command {
	var cycles uint64
	var trace bool
	var drainToOOO bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fetch stage for a fixed number of cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logging.New(*verbose)
			proc, threads := buildProcessor(cfg, log, trace || cfg.TraceEnabled)

			var scheds []*ooo.Scheduler
			if drainToOOO || cfg.DrainToOOO {
				scheds = make([]*ooo.Scheduler, len(threads))
				for i := range scheds {
					scheds[i] = ooo.New()
				}
			}

			for i := uint64(0); i < cycles; i++ {
				core.CycleDriver(proc)
				if scheds != nil {
					drainFetchQueues(threads, scheds, log)
				}
			}

			for i, t := range threads {
				log.WithFields(logrus.Fields{
					"thread":  i,
					"fetched": t.Fetched,
				}).Info("thread fetch summary")
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&cycles, "cycles", 1000, "number of cycles to simulate")
	cmd.Flags().BoolVar(&trace, "trace", false, "emit one x86.new_inst line per fetched uop")
	cmd.Flags().BoolVar(&drainToOOO, "drain-to-ooo", false, "feed fetched uops into the optional OoO scheduler demo")
	return cmd
}

// buildProcessor wires every collaborator package into a Processor
// with cfg.NumCores cores of cfg.NumThreads threads each, running a
// small built-in guest program so there's something to fetch.
func buildProcessor(cfg *config.Config, log *logrus.Logger, trace bool) (*core.Processor, []*core.Thread) {
	proc := &core.Processor{}
	var allThreads []*core.Thread

	for ci := 0; ci < cfg.NumCores; ci++ {
		c := &core.Core{
			Index:         ci,
			BTB:           btb.New(),
			MMU:           mmu.New(4096),
			Regs:          regfile.New(),
			InstMod:       icache.New(cfg.BlockSize),
			Policy:        core.FetchKind(cfg.FetchKind),
			Quantum:       cfg.ThreadQuantum,
			SwitchPenalty: cfg.ThreadSwitchPenalty,
			BlockSize:     cfg.BlockSize,
			FetchQueueCap: cfg.FetchQueueSize,
			TraceQueueCap: cfg.TraceCacheQueueSize,
			BranchMax:     cfg.TraceCacheBranchMax,
			MMUReport:     cfg.MMUReportEnabled,
			LongLat:       longlat.New(),
		}
		if trace {
			coreIdx := ci
			c.Tracer = func(threadIdx int, line string) {
				logging.ForCore(log, coreIdx, threadIdx).Info(line)
			}
		}

		for ti := 0; ti < cfg.NumThreads; ti++ {
			mem := guest.NewMemory(1 << 20)
			seedProgram(mem)
			ctx := guest.NewContext(mem)

			t := &core.Thread{
				Ctx:   ctx,
				Index: ti,
				BPred: bpred.New(),
				Asid:  ti,
			}
			if cfg.TraceCachePresent {
				t.TraceCache = tracecache.New(cfg.TraceCacheQueueSize, cfg.TraceCacheBranchMax)
			}
			c.Threads = append(c.Threads, t)
			allThreads = append(allThreads, t)
		}
		proc.Cores = append(proc.Cores, c)
	}
	return proc, allThreads
}

// seedProgram writes a short loop (ADDI, CMP, BT back) at address 0 so
// a freshly built context has real control flow to exercise the BTB
// and direction predictor, instead of running through zeroed memory,
// which decodes as ADD R0, R0.
func seedProgram(mem *guest.Memory) {
	program := []uint16{
		0x2101, // ADD #1, R1
		0x2201, // ADD #1, R2
		0x3102, // CMP R1, R2 (Dst=R1, Src2=R2)
		0x9FFC, // BT -4: branch back to address 0 while equal
	}
	for i, word := range program {
		mem.WriteU16(uint64(i*2), word)
	}
}

// drainFetchQueues feeds every thread's newly fetched uops into its
// scheduler and issues whatever becomes ready, completing issued ops
// immediately: this demo has no execution-latency model, since
// execute itself is out of scope here.
func drainFetchQueues(threads []*core.Thread, scheds []*ooo.Scheduler, log *logrus.Logger) {
	for i, t := range threads {
		sched := scheds[i]
		for len(t.FetchQueue) > 0 {
			u := t.FetchQueue[0]
			if !sched.Push(u) {
				break
			}
			t.FetchQueue = t.FetchQueue[1:]
		}

		sched.ScheduleCycle0()
		issued := sched.ScheduleCycle1()
		for _, u := range issued {
			log.WithFields(logrus.Fields{
				"thread": i,
				"uop_id": u.ID,
			}).Debug("ooo: issued")
			// No execution-latency model in this demo: retire
			// immediately, since execute itself is out of scope.
			sched.CompleteUop(u)
		}
	}
}
