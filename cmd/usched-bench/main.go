// Command usched-bench drives a Scheduler against a synthetic arrival
// mix and reports a wire.Summary, either as human-readable text or as
// JSON. It stands up a Scheduler against internal/ingress.Simulated and
// reports throughput/latency once the arrival mix is exhausted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/corelane/usched"
	"github.com/corelane/usched/internal/ingress"
	"github.com/corelane/usched/internal/logging"
	"github.com/corelane/usched/internal/wire"
)

func main() {
	var (
		workers = flag.Int("workers", 0, "worker goroutine count (0 = NumCPU-2)")
		jbsqLen = flag.Int("jbsq-len", 2, "request/response ring depth (1 or 2)")
		timeSlice = flag.Int("time-slice-us", 5, "preemption time slice, microseconds")
		method = flag.String("schedule-method", "posted_signal", "posted_signal|cooperative_yield|none")
		gets = flag.Int("gets", 10000, "number of GET arrivals")
		puts = flag.Int("puts", 2000, "number of PUT arrivals")
		scans = flag.Int("scans", 200, "number of SCAN arrivals")
		batchSize = flag.Int("batch-size", 64, "networker batch size per tick")
		jsonOut = flag.Bool("json", false, "print the summary as JSON")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	scheduleMethod, ok := wire.ParseScheduleMethod(*method)
	if !ok {
		logger.Error("unrecognized schedule method", "method", *method)
		os.Exit(1)
	}

	handler := usched.NewMockHandler()
	seed(handler)

	params := usched.DefaultParams(handler)
	params.WorkerCount = *workers
	params.JBSQLen = *jbsqLen
	params.TimeSliceMicros = *timeSlice
	params.ScheduleMethod = scheduleMethod

	sched, err := usched.NewScheduler(params)
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	logger.Info("starting benchmark",
		"workers", sched.WorkerCount(), "jbsq_len", *jbsqLen, "schedule_method", scheduleMethod.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler run exited with error", "error", err)
		}
	}()

	installStackDumpHandler(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	src := ingress.NewScriptedSource(buildArrivals(*gets, *puts, *scans))
	sim := ingress.NewSimulated(sched.Handoff(), sched.RequestPool(), src, *batchSize)

	driveDone := make(chan struct{})
	go func() {
		driveToExhaustion(sim)
		close(driveDone)
	}()

	select {
	case <-driveDone:
		// Arrival mix exhausted; let the last in-flight requests drain
		// before snapshotting.
		time.Sleep(time.Duration(*timeSlice) * 10 * time.Microsecond)
	case <-sigCh:
		logger.Info("received shutdown signal")
	}

	cancel()
	sched.Stop()

	summary := buildSummary(sched, sim)
	if *jsonOut {
		data, err := summary.Marshal()
		if err != nil {
			logger.Error("failed to marshal summary", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}
	printSummary(summary, sim.Dropped())
}

// driveToExhaustion ticks sim until its Source stops producing new
// arrivals and the handoff has no unconsumed batch left.
func driveToExhaustion(sim *ingress.Simulated) {
	idleTicks := 0
	for idleTicks < 1000 {
		n := sim.Tick(time.Now().UnixNano())
		if n == 0 {
			idleTicks++
			time.Sleep(time.Microsecond)
			continue
		}
		idleTicks = 0
	}
}

func buildArrivals(gets, puts, scans int) []ingress.Arrival {
	arrivals := make([]ingress.Arrival, 0, gets+puts+scans)
	for i := 0; i < gets; i++ {
		arrivals = append(arrivals, ingress.Arrival{Type: wire.Get, Key: keyFor(i)})
	}
	for i := 0; i < puts; i++ {
		arrivals = append(arrivals, ingress.Arrival{Type: wire.Put, Key: keyFor(i), Value: []byte("v")})
	}
	for i := 0; i < scans; i++ {
		arrivals = append(arrivals, ingress.Arrival{Type: wire.Scan, Prefix: []byte("user:"), Limit: 50})
	}
	return arrivals
}

func keyFor(i int) []byte {
	return []byte(fmt.Sprintf("user:%08d", i))
}

func seed(h *usched.MockHandler) {
	for i := 0; i < 1000; i++ {
		h.Seed(string(keyFor(i)), []byte("seed"))
	}
}

// buildSummary condenses a Scheduler's MetricsSnapshot into the
// externally observable wire.Summary, splitting point operations (GET/
// PUT/DELETE/SEEK) from the range operation (SCAN).
func buildSummary(sched *usched.Scheduler, sim *ingress.Simulated) wire.Summary {
	snap := sched.Metrics().Snapshot()

	var short, long uint64
	perType := make(map[string]uint64, wire.NumRequestTypes)
	for _, ts := range snap.ByType {
		perType[ts.Type.String()] = ts.Ops
		if ts.Type == wire.Scan {
			long += ts.Ops
		} else {
			short += ts.Ops
		}
	}

	var slowdown float64
	if snap.AvgLatencyNs > 0 {
		slowdown = float64(snap.LatencyP99Ns) / float64(snap.AvgLatencyNs)
	}

	return wire.Summary{
		TotalProcessed: snap.TotalOps,
		ShortCount: short,
		LongCount: long,
		PreemptionCount: snap.TotalPreempts,
		StartUnixNano: time.Now().Add(-time.Duration(snap.UptimeNs)).UnixNano(),
		EndUnixNano: time.Now().UnixNano(),
		LatencyP50Ns: snap.LatencyP50Ns,
		LatencyP99Ns: snap.LatencyP99Ns,
		LatencyP999Ns: snap.LatencyP999Ns,
		SlowdownP99: slowdown,
		PerTypeProcessed: perType,
	}
}

func printSummary(s wire.Summary, dropped int) {
	fmt.Printf("total processed: %d (short=%d, long=%d)\n", s.TotalProcessed, s.ShortCount, s.LongCount)
	fmt.Printf("preemptions: %d\n", s.PreemptionCount)
	fmt.Printf("dropped: %d\n", dropped)
	fmt.Printf("latency p50/p99/p999 (us): %.2f / %.2f / %.2f\n",
		float64(s.LatencyP50Ns)/1000, float64(s.LatencyP99Ns)/1000, float64(s.LatencyP999Ns)/1000)
	fmt.Printf("p99 slowdown: %.2fx\n", s.SlowdownP99)
	fmt.Printf("per-type:\n")
	for typ, n := range s.PerTypeProcessed {
		fmt.Printf(" %-8s %d\n", strings.ToLower(typ), n)
	}
}

// installStackDumpHandler dumps all goroutine stacks to stderr on
// SIGUSR1, for diagnosing a stalled run without killing it.
func installStackDumpHandler(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	go func() {
		for range ch {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
			logger.Info("stack dump written to stderr")
		}
	}()
}
