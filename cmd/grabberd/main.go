// Command grabberd is the demo composition root for this module: it loads
// a camera list, drives one IpVideoGrabber per camera with a ticking
// goroutine, and exposes /metrics and /debug/pprof via a plain
// http.Server. It can also install and run itself as an OS service via
// kardianos/service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/grabbermetrics"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/servicelog"
	"github.com/warpcomdev/ipvideograbber/internal/grabber/settings"
	"github.com/warpcomdev/ipvideograbber/pkg/grabber"
)

var (
	startMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "start",
		Help: "Start timestamp of the app (unix)",
	})

	cameraCountMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ipvideograbber_camera_count",
		Help: "Number of cameras successfully connected at startup",
	})
)

// program implements service.Interface: Start launches the ingestion loop
// in the background and returns immediately (kardianos/service requires
// Start to not block), Stop tears it down and waits for it to finish.
type program struct {
	settingsPath string
	addr         string
	tickInterval time.Duration
	logger       servicelog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	configs, err := settings.LoadJSON(p.settingsPath)
	if err != nil {
		p.logger.Fatal("failed to load camera settings", servicelog.String("path", p.settingsPath), servicelog.Error(err))
	}

	startMetric.Set(float64(time.Now().Unix()))

	grabbers := make([]*grabber.IpVideoGrabber, 0, len(configs))
	for _, cfg := range configs {
		g := grabber.New(grabber.WithLogger(p.logger))
		if err := g.Configure(cfg); err != nil {
			p.logger.Error("camera configuration rejected", servicelog.String("camera", cfg.Name), servicelog.Error(err))
			continue
		}
		if err := g.Connect(); err != nil {
			p.logger.Error("camera connect failed", servicelog.String("camera", cfg.Name), servicelog.Error(err))
			continue
		}
		grabbers = append(grabbers, g)
		go grabbermetrics.Monitor(ctx, g, 5*time.Second)
		http.Handle("/frame/"+cfg.Name, frameHandler(g))
	}
	cameraCountMetric.Set(float64(len(grabbers)))

	go p.driveTicks(ctx, grabbers)

	http.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:           p.addr,
		Handler:        http.DefaultServeMux,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   7 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	p.logger.Info("listening", servicelog.String("addr", p.addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		p.logger.Error("http server exited", servicelog.Error(err))
	}
}

// driveTicks calls Tick on every connected grabber at p.tickInterval until
// ctx is cancelled, then disconnects them all before returning.
func (p *program) driveTicks(ctx context.Context, grabbers []*grabber.IpVideoGrabber) {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, g := range grabbers {
				g.Disconnect()
			}
			return
		case <-ticker.C:
			for _, g := range grabbers {
				g.Tick()
			}
		}
	}
}

// frameHandler serves the current front buffer as a raw RGB24 blob. A
// debug convenience endpoint; re-encoding back to MJPEG for browsers is
// out of scope (spec Non-goals).
func frameHandler(g *grabber.IpVideoGrabber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := g.Frame()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Frame-Width", strconv.Itoa(frame.Width))
		w.Header().Set("X-Frame-Height", strconv.Itoa(frame.Height))
		w.Header().Set("X-Frame-New", strconv.FormatBool(g.IsFrameNew()))
		w.Write(frame.Bytes)
	}
}

func main() {
	settingsPath := flag.String("settings", "cameras.json", "path to the camera settings JSON file")
	addr := flag.String("addr", ":8080", "address to serve /metrics, /debug/pprof and /frame/<name> on")
	tickInterval := flag.Duration("tick", 200*time.Millisecond, "how often to drive each camera's Tick")
	svcFlag := flag.String("service", "", "service control action: install, uninstall, start, stop, restart")
	flag.Parse()

	logger, err := servicelog.NewProduction("grabberd.log")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	prg := &program{
		settingsPath: *settingsPath,
		addr:         *addr,
		tickInterval: *tickInterval,
		logger:       logger,
	}

	svcConfig := &service.Config{
		Name:        "ipvideograbberd",
		DisplayName: "IP Video Grabber",
		Description: "MJPEG-over-HTTP camera ingestion daemon",
	}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("service.New: %v", err)
	}

	if *svcFlag != "" {
		if err := service.Control(svc, *svcFlag); err != nil {
			log.Fatalf("service control %q: %v", *svcFlag, err)
		}
		fmt.Printf("%s: ok\n", *svcFlag)
		return
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("service run: %v", err)
	}
}
