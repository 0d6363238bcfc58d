// Command supla-device runs a home-automation end-device: it drives the
// configured GPIO channels and keeps them in sync with a SUPLA-style server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/supla-device/internal/config"
	"github.com/sweeney/supla-device/internal/device"
	"github.com/sweeney/supla-device/internal/gpio"
	"github.com/sweeney/supla-device/internal/mqtt"
	"github.com/sweeney/supla-device/internal/status"
	"github.com/sweeney/supla-device/internal/storage"
	"github.com/sweeney/supla-device/internal/web"
)

const (
	defaultConfigPath = "/etc/supla-device/device.yaml"
	defaultEnvPath    = "/etc/supla-device/.env"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envPath string

	root := &cobra.Command{
		Use:           "supla-device",
		Short:         "SUPLA end-device runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Device configuration file")
	root.PersistentFlags().StringVar(&envPath, "env", defaultEnvPath, "Environment file loaded before the configuration")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the device until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Print the level of every configured input pin and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, envPath)
			if err != nil {
				return err
			}
			drv, err := gpio.NewRealDriver(cfg.GPIO.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer drv.Close()
			return printState(cmd.OutOrStdout(), cfg, drv)
		},
	})

	return root
}

func loadConfig(configPath, envPath string) (config.Config, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	guid, err := cfg.GUID()
	if err != nil {
		return err
	}

	drv, err := gpio.NewRealDriver(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer drv.Close()

	persist, err := storage.OpenFile(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	dev := device.New(device.Options{
		Capacity: config.MaxChannels,
		Driver:   drv,
		Persist:  persist,
		Sink:     tracker,
	})
	if err := configure(dev, cfg); err != nil {
		return err
	}

	transport := mqtt.NewTransport(mqtt.Options{
		GUID:     guid,
		Username: cfg.Server.Username,
		Password: cfg.Server.Password,
	})
	defer transport.Disconnect()

	if err := dev.Begin(identity(cfg, guid), transport); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := "UNKNOWN"
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case s := <-sigCh:
			log.Printf("received %v, shutting down", s)
			reason = signalName(s)
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	if addr := httpAddr(cfg); addr != "" {
		srv := web.New(addr, tracker)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
		log.Printf("http status server listening on %s", addr)
	}

	g.Go(func() error {
		return dev.Run(ctx, device.Loop{
			Iterate:   cfg.Loop.Iterate,
			Timer:     cfg.Loop.Timer,
			Status:    cfg.Loop.Status,
			Tracker:   tracker,
			Heartbeat: cfg.Loop.Heartbeat,
			OnHeartbeat: func(snap status.Snapshot) {
				tracker.SetMQTTConnected(transport.IsConnected())
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				publishStatus(transport, tracker.Snapshot(), "HEARTBEAT", "")
			},
		})
	})

	log.Printf("started: server=%s:%d location=%d channels=%d iterate=%v",
		cfg.Server.Host, cfg.Server.Port, cfg.Server.LocationID, len(cfg.Channels), cfg.Loop.Iterate)

	err = g.Wait()

	tracker.SetMQTTConnected(transport.IsConnected())
	publishStatus(transport, tracker.Snapshot(), "SHUTDOWN", reason)
	return err
}

// systemPublisher is the part of the transport used for system events.
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

func publishStatus(p systemPublisher, snap status.Snapshot, event, reason string) {
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStatus,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := p.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	}
}

func httpAddr(cfg config.Config) string {
	if cfg.HTTP.Disabled {
		return ""
	}
	return cfg.HTTP.Addr
}

func identity(cfg config.Config, guid [16]byte) device.Identity {
	return device.Identity{
		GUID:             guid,
		Server:           cfg.Server.Host,
		Port:             cfg.Server.Port,
		LocationID:       cfg.Server.LocationID,
		LocationPassword: cfg.Server.LocationPassword,
		Name:             cfg.Device.Name,
		SoftVer:          cfg.Device.SoftVer,
		ActivityTimeout:  cfg.Server.ActivityTimeout,
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Name:            cfg.Device.Name,
		Server:          cfg.Server.Host,
		Port:            cfg.Server.Port,
		LocationID:      cfg.Server.LocationID,
		ActivityTimeout: cfg.Server.ActivityTimeout,
		LoopMs:          cfg.Loop.Iterate.Milliseconds(),
		TimerMs:         cfg.Loop.Timer.Milliseconds(),
		HTTPPort:        httpAddr(cfg),
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// printState reads every input pin the configuration names. Outputs are
// listed but left alone so relays keep their state.
func printState(w io.Writer, cfg config.Config, drv gpio.Driver) error {
	for i, ch := range cfg.Channels {
		inputs, outputs := channelPins(ch)
		for _, pin := range outputs {
			fmt.Fprintf(w, "channel %d (%s) pin %d: output\n", i, ch.Kind, pin)
		}
		for _, pin := range inputs {
			if err := drv.Input(pin, inputPull(ch)); err != nil {
				return fmt.Errorf("configure pin %d: %w", pin, err)
			}
			l, err := drv.Read(pin)
			if err != nil {
				return fmt.Errorf("read pin %d: %w", pin, err)
			}
			fmt.Fprintf(w, "channel %d (%s) pin %d: %s\n", i, ch.Kind, pin, l)
		}
	}
	return nil
}

// channelPins splits the pins of a channel into inputs and outputs.
func channelPins(ch config.ChannelConfig) (inputs, outputs []int) {
	switch ch.Kind {
	case config.KindRelay:
		if ch.Bistable && len(ch.Pins) == 2 {
			return ch.Pins[1:], ch.Pins[:1]
		}
		return nil, ch.Pins
	case config.KindRelayButton:
		return ch.Pins[1:], ch.Pins[:1]
	case config.KindSensorNO:
		return ch.Pins, nil
	case config.KindRollerShutter:
		return ch.Buttons, ch.Pins
	}
	return nil, nil
}

func inputPull(ch config.ChannelConfig) gpio.Pull {
	switch ch.Kind {
	case config.KindRelayButton, config.KindRollerShutter:
		return gpio.PullUp
	case config.KindSensorNO:
		if ch.PullUp {
			return gpio.PullUp
		}
	}
	return gpio.PullNone
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
