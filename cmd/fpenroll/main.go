package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/config"
	"github.com/VioletBL/fingerprint-sensor/internal/device"
	"github.com/VioletBL/fingerprint-sensor/internal/enroll"
	"github.com/VioletBL/fingerprint-sensor/internal/presence"
	"github.com/VioletBL/fingerprint-sensor/internal/timeutil"
	"github.com/VioletBL/fingerprint-sensor/internal/uart"
	"github.com/VioletBL/fingerprint-sensor/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON config file (built-in defaults when empty)")
	portPath    = flag.String("port", "", "Serial port to use, overrides config (ignored in dev mode)")
	templateID  = flag.Int("template-id", 0, "Template slot to enroll into, overrides config when given")
	devMode     = flag.Bool("dev", false, "Run against an in-memory module and a simulated finger")
	listen      = flag.String("listen", "", "Debug HTTP listen address, overrides config; empty disables")
	presencePin = flag.String("presence-pin", "", "GPIO line of the module's touch output, overrides config")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// Simulated finger timing for dev mode.
const (
	devFingerOn  = 3 * time.Second
	devFingerOff = 5 * time.Second
)

// overrides holds the command-line values that take precedence over the
// config file.
type overrides struct {
	Port        string
	// TemplateID is nil unless -template-id was given.
	TemplateID  *int
	Listen      string
	PresencePin string
}

func flagOverrides() overrides {
	return overridesFrom(flag.CommandLine)
}

// overridesFrom collects the flags that were given explicitly in fs.
func overridesFrom(fs *flag.FlagSet) overrides {
	var o overrides
	fs.Visit(func(f *flag.Flag) {
		g, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch v := g.Get().(type) {
		case string:
			switch f.Name {
			case "port":
				o.Port = v
			case "listen":
				o.Listen = v
			case "presence-pin":
				o.PresencePin = v
			}
		case int:
			if f.Name == "template-id" {
				o.TemplateID = &v
			}
		}
	})
	return o
}

// loadConfig reads the config file, if any, and applies the overrides.
func loadConfig(path string, o overrides) (*config.EnrollConfig, error) {
	cfg := &config.EnrollConfig{}
	if path != "" {
		var err error
		if cfg, err = config.LoadEnrollConfig(path); err != nil {
			return nil, err
		}
	}
	if o.Port != "" {
		cfg.PortPath = &o.Port
	}
	if o.TemplateID != nil {
		cfg.TemplateID = o.TemplateID
	}
	if o.Listen != "" {
		cfg.DebugListen = &o.Listen
	}
	if o.PresencePin != "" {
		cfg.PresencePin = &o.PresencePin
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openHardware returns the serial link and the presence input, real or
// simulated.
func openHardware(cfg *config.EnrollConfig, dev bool) (uart.Port, presence.Sensor, error) {
	if dev {
		log.Printf("dev mode: simulated module at 0x%08X", cfg.GetAddress())
		return device.NewSimulator(cfg.GetAddress()),
			presence.NewPeriodic(timeutil.RealClock{}, devFingerOn, devFingerOff), nil
	}

	opts, err := cfg.PortOptions().Normalize()
	if err != nil {
		return nil, nil, err
	}
	port, err := uart.Open(cfg.GetPortPath(), opts)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("opened %s at %s", cfg.GetPortPath(), opts)

	sensor, err := presence.OpenGPIO(cfg.GetPresencePin(), cfg.GetPresenceActiveLow())
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("open presence input: %w", err)
	}
	log.Printf("watching %s for finger presence", sensor)
	return port, sensor, nil
}

// serveDebug runs the debug HTTP server until ctx is cancelled.
func serveDebug(ctx context.Context, addr string, e *enroll.Enroller) {
	mux := http.NewServeMux()
	e.AttachAdminRoutes(mux)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()
	log.Printf("debug endpoints on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())

	cfg, err := loadConfig(*configPath, flagOverrides())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port, sensor, err := openHardware(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to open hardware: %v", err)
	}
	defer port.Close()

	client := device.NewClient(port,
		device.WithAddress(cfg.GetAddress()),
		device.WithResponseTimeout(cfg.GetResponseTimeout()),
	)
	if cfg.GetHandshake() {
		if err := client.Handshake(ctx, cfg.GetPassword()); err != nil {
			log.Fatalf("did not find fingerprint sensor: %v", err)
		}
		log.Printf("found fingerprint sensor at 0x%08X", client.Address())
	}

	enroller := enroll.New(client, sensor, enroll.FromConfig(cfg))

	var wg sync.WaitGroup
	if addr := cfg.GetDebugListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, addr, enroller)
		}()
	}

	if err := enroller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("enrollment loop stopped: %v", err)
	}
	enroller.Hub().Close()
	wg.Wait()

	st := enroller.Stats()
	log.Printf("shutting down: %d sessions, %d completed, %d failed", st.Started, st.Completed, st.Failed)
}
