// Command ndi-ingest is a thin client over the core library: it
// discovers NDI sources, connects to one, and renders/records it in a
// single window. Bootstrap shape (flags, environment init, lifecycle)
// follows a conventional Qt app bootstrap; the per-camera multi-window/tray/
// formation machinery is replaced by the single discover->connect
// pipeline this spec describes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/mappu/miqt/qt"

	"github.com/mackatwentytsuru/ndi-ingest-core/internal/config"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/decode"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/discovery"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/display"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/ndi"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/receive"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/record"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/render"
	"github.com/mackatwentytsuru/ndi-ingest-core/internal/router"
)

var version string
var build string

func main() {
	debugFlag := flag.Bool("debug", false, "General debugging override")
	debugStreams := flag.Bool("debugstreams", false, "Debug ffmpeg/codec internals")
	groups := flag.String("groups", "", "NDI group filter")
	source := flag.String("source", "", "Connect immediately to this source name")
	recordDir := flag.String("record-dir", "", "Directory to write recordings into (defaults to ~/Movies/ndi-ingest)")
	flag.Parse()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := config.InitializeEnvironment(*debugFlag)
	if err != nil {
		log.Fatalf("environment init failed: %v", err)
	}
	log.Printf("Running ndi-ingest v%s (build: %s)", version, build)

	store, err := config.NewStore(env)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	prefs := store.Get()

	if *debugStreams {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, format, msg string) {
			log.Printf("ffmpeg log [%d]: %s", l, msg)
		})
	}

	dir := *recordDir
	if dir == "" {
		dir = defaultRecordDir(env)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("record dir: %v", err)
	}

	rt := ndi.New()
	if err := rt.Initialize(); err != nil {
		log.Fatalf("NDI runtime init failed: %v", err)
	}
	defer rt.Destroy()
	log.Printf("NDI runtime: %s", rt.Version())

	qt.NewQApplication(os.Args)
	qt.QGuiApplication_SetQuitOnLastWindowClosed(true)

	surface := display.New(nil)
	surface.SetWindowTitle("NDI Ingest")
	surface.Resize(1280, 720)
	surface.Show()

	renderer := render.New()
	renderer.SetSurface(surface)
	decoder := decode.New(renderer)
	recorder := record.New(dir)

	rtr := router.New(surface, renderer, decoder, recorder)
	rtr.OnVideoInfo(func(info string) { log.Printf("video: %s", info) })
	rtr.OnBitrate(func(kbps string) { log.Printf("bitrate: %s", kbps) })
	rtr.OnGeometryChange(func(w, h int32) { surface.ResizeCanvas(int(w), int(h)) })

	recvCfg := receive.DefaultConfig()
	recvCfg.AutoReconnect = prefs.AutoReconnect

	receiver := receive.New(rt, recvCfg, rtr.Dispatch)
	receiver.OnStateChange(func(s receive.ConnectionState) {
		log.Printf("connection state: %s", s)
		if s != receive.StateConnected {
			if recorder.Enabled() {
				recorder.StopRecording()
			}
			return
		}
		geo := receiver.Geometry()
		if !geo.Published {
			return
		}
		if name, err := recorder.StartRecording(geo.Width, geo.Height, geo.FourCC, 30, 1); err != nil {
			log.Printf("record: start failed: %v", err)
		} else {
			log.Printf("record: writing %s", name)
		}
	})

	stopWake := receiver.WakeListener()
	defer stopWake()

	finder := discovery.New(rt)
	sourcesCh, err := finder.StartDiscovery(true, *groups, nil)
	if err != nil {
		log.Fatalf("discovery start failed: %v", err)
	}
	defer finder.StopDiscovery()

	connectTarget := *source
	if connectTarget == "" {
		connectTarget = prefs.LastSourceName
	}

	go func() {
		for sources := range sourcesCh {
			if connectTarget == "" {
				continue
			}
			for _, s := range sources {
				if s.Name == connectTarget {
					if err := receiver.Connect(s.Name); err != nil {
						log.Printf("connect %q: %v", s.Name, err)
					}
					connectTarget = "" // connect once per discovery session
				}
			}
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		log.Printf("shutting down...")
		receiver.DisconnectSync()
		recorder.StopRecording()

		latest := store.Get()
		if name, _ := receiver.LastConnected(); name != "" {
			latest.LastSourceName = name
		}
		if err := store.Update(latest); err != nil {
			log.Printf("config save: %v", err)
		}
		qt.QCoreApplication_Quit()
	}()

	go metricsLoop(receiver)

	qt.QApplication_Exec()
}

func metricsLoop(r *receive.Receiver) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m := r.MetricsSnapshot()
		log.Printf("metrics: fps=%.1f bitrate=%.1fkbps drops=%.1f%% health=%d state=%s",
			m.FPS, m.BitrateKbps, m.DropsPct, m.Health, m.State)
	}
}

func defaultRecordDir(env config.Environment) string {
	return fmt.Sprintf("%s/Movies/ndi-ingest", env.HomeDir)
}
